// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package models

import (
	"errors"
	"math"
	"time"
)

// ErrNoDeviceHandle is returned by TrackingCredential.Validate when neither
// device handle is present.
var ErrNoDeviceHandle = errors.New("tracking credential has no device handle")

// ErrNoProviderToken is returned by TrackingCredential.Validate when the
// provider token is empty.
var ErrNoProviderToken = errors.New("tracking credential has no provider token")

// TrackingCredential is a short-lived, provider-scoped credential for one
// vehicle's telemetry. It lives in memory for the duration of a tracking
// session and is never persisted.
type TrackingCredential struct {
	// ProviderToken is the opaque bearer value for the telemetry provider.
	ProviderToken string `json:"-"`

	// DeviceID is the provider-side handle for the physical tracker (may be empty).
	DeviceID string `json:"device_id,omitempty"`

	// DeviceIMEI is the fallback handle when DeviceID is unavailable.
	DeviceIMEI string `json:"device_imei,omitempty"`

	// ExpiresAt is the absolute expiry instant. Zero means the provider did not say.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Handle returns the device handle used for provider lookups and topics:
// DeviceID when present, otherwise DeviceIMEI.
func (c *TrackingCredential) Handle() string {
	if c.DeviceID != "" {
		return c.DeviceID
	}
	return c.DeviceIMEI
}

// Validate checks the credential carries a token and at least one device handle.
func (c *TrackingCredential) Validate() error {
	if c.ProviderToken == "" {
		return ErrNoProviderToken
	}
	if c.Handle() == "" {
		return ErrNoDeviceHandle
	}
	return nil
}

// Expired reports whether the credential is past its expiry at now.
// A credential with unknown expiry never reports expired.
func (c *TrackingCredential) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// LocationSample is the canonical, producer-agnostic location record.
type LocationSample struct {
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"lng"`
	Speed     *float64 `json:"speed,omitempty"`
	Timestamp *int64   `json:"timestamp,omitempty"` // epoch seconds
}

// Valid reports whether the sample can reach the reconciler: both coordinates
// finite and speed, when present, finite and non-negative.
func (s *LocationSample) Valid() bool {
	if !isFinite(s.Latitude) || !isFinite(s.Longitude) {
		return false
	}
	if s.Speed != nil && (!isFinite(*s.Speed) || *s.Speed < 0) {
		return false
	}
	return true
}

// SameFix reports whether two samples describe the same fix: latitude,
// longitude and timestamp all equal. Speed is not part of the identity.
func (s *LocationSample) SameFix(other *LocationSample) bool {
	if s == nil || other == nil {
		return false
	}
	if s.Latitude != other.Latitude || s.Longitude != other.Longitude {
		return false
	}
	switch {
	case s.Timestamp == nil && other.Timestamp == nil:
		return true
	case s.Timestamp == nil || other.Timestamp == nil:
		return false
	default:
		return *s.Timestamp == *other.Timestamp
	}
}

// Clone returns a deep copy so snapshots never share pointers with the owner.
func (s *LocationSample) Clone() *LocationSample {
	if s == nil {
		return nil
	}
	out := &LocationSample{Latitude: s.Latitude, Longitude: s.Longitude}
	if s.Speed != nil {
		v := *s.Speed
		out.Speed = &v
	}
	if s.Timestamp != nil {
		v := *s.Timestamp
		out.Timestamp = &v
	}
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Source identifies which path a candidate sample came through.
type Source string

const (
	// SourcePush is the publish/subscribe channel.
	SourcePush Source = "push"
	// SourcePoll is the latest-telemetry polling channel.
	SourcePoll Source = "poll"
	// SourceSeed is the coordinate convenience field of the credential response.
	SourceSeed Source = "seed"
)

// ChannelStatus is the health of a tracking session as shown on the status line.
type ChannelStatus string

const (
	StatusIdle         ChannelStatus = "Idle"
	StatusConnecting   ChannelStatus = "Connecting"
	StatusLive         ChannelStatus = "Live"
	StatusReconnecting ChannelStatus = "Reconnecting"
	StatusDegraded     ChannelStatus = "Degraded"
	StatusError        ChannelStatus = "Error"
)

// LinkState is a per-channel status signal sent to the reconciler.
type LinkState string

const (
	// LinkConnecting means the channel is establishing its transport.
	LinkConnecting LinkState = "connecting"
	// LinkUp means the channel's last operation succeeded.
	LinkUp LinkState = "up"
	// LinkDown means the channel's last operation failed.
	LinkDown LinkState = "down"
	// LinkClosed means the channel was torn down.
	LinkClosed LinkState = "closed"
)

// TrackedVehicleState is the single authoritative position for one viewing
// session. Only the reconciler mutates it; everyone else reads copies.
type TrackedVehicleState struct {
	VehicleID       string          `json:"vehicle_id"`
	CurrentPosition *LocationSample `json:"current_position,omitempty"`
	ChannelStatus   ChannelStatus   `json:"channel_status"`
	LastSource      Source          `json:"last_source,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at,omitempty"`
}

// TrackingView is what the map widget consumes: the state plus the
// "waiting for signal" affordance and a status line.
type TrackingView struct {
	SessionID string              `json:"session_id"`
	State     TrackedVehicleState `json:"state"`
	Waiting   bool                `json:"waiting"`
	// Marker is only set when the status is Live.
	Marker     *LocationSample `json:"marker,omitempty"`
	StatusText string          `json:"status_text"`
	ExpiresAt  time.Time       `json:"expires_at,omitempty"`
	Ended      bool            `json:"ended,omitempty"`
}

// NewTrackingView builds the presentation read model for a state snapshot.
// Anything other than Live shows the waiting affordance instead of a marker;
// the last known position stays in State for continuity.
func NewTrackingView(sessionID string, state TrackedVehicleState) TrackingView {
	view := TrackingView{
		SessionID:  sessionID,
		State:      state,
		Waiting:    true,
		StatusText: StatusText(state.ChannelStatus),
	}
	if state.ChannelStatus == StatusLive && state.CurrentPosition != nil {
		view.Waiting = false
		view.Marker = state.CurrentPosition.Clone()
	}
	return view
}

// StatusText maps a channel status to the status line shown under the map.
func StatusText(status ChannelStatus) string {
	switch status {
	case StatusIdle:
		return "Tracking not started"
	case StatusConnecting:
		return "Connecting to vehicle tracker..."
	case StatusLive:
		return "Live"
	case StatusReconnecting:
		return "Waiting for signal (reconnecting)"
	case StatusDegraded:
		return "Waiting for signal (live feed interrupted, polling)"
	case StatusError:
		return "Waiting for signal (tracker unreachable)"
	default:
		return "Waiting for signal"
	}
}
