// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package telemetry

import (
	"errors"
	"fmt"
	"net/http"
)

// Credential errors are fatal to the session that requested them and are
// never retried by this package.
var (
	// ErrUnauthorized means the caller has no valid session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means the vehicle has no tracking capability provisioned.
	ErrNotFound = errors.New("vehicle tracking not found")

	// ErrUpstream means credential issuance failed or returned unusable data.
	ErrUpstream = errors.New("tracking unavailable")
)

// Channel errors are recovered locally.
var (
	// ErrFetch is a single failed poll.
	ErrFetch = errors.New("telemetry fetch failed")

	// ErrInvalidPayload means a body carried no usable location.
	ErrInvalidPayload = errors.New("telemetry payload has no usable location")
)

// ProviderStatusError is a non-2xx answer from the latest-telemetry
// endpoint. It matches ErrFetch.
type ProviderStatusError struct {
	StatusCode int
}

func (e *ProviderStatusError) Error() string {
	return fmt.Sprintf("%s: provider returned status %d", ErrFetch, e.StatusCode)
}

func (e *ProviderStatusError) Unwrap() error { return ErrFetch }

// CredentialScoped reports whether the status concerns one credential or
// device (rejected token, unknown device) rather than provider health.
func (e *ProviderStatusError) CredentialScoped() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

// Tracker errors.
var (
	ErrSessionNotFound   = errors.New("tracking session not found")
	ErrTooManySessions   = errors.New("too many tracking sessions")
	ErrTrackerClosed     = errors.New("tracker is shut down")
	ErrViewerAttached    = errors.New("tracking session already has a viewer")
	ErrCredentialExpired = errors.New("tracking credential expired")
)
