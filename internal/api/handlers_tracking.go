// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/middleware"
	"github.com/tomtom215/fleettrack/internal/models"
	"github.com/tomtom215/fleettrack/internal/telemetry"
	"github.com/tomtom215/fleettrack/internal/validation"
	ws "github.com/tomtom215/fleettrack/internal/websocket"
)

type openTrackingRequest struct {
	VehicleID string `validate:"required,resourceid"`
}

type sessionRequest struct {
	SessionID string `validate:"required,uuid"`
}

// TrackingSessionResponse is returned when a session is opened.
type TrackingSessionResponse struct {
	SessionID string              `json:"session_id"`
	VehicleID string              `json:"vehicle_id"`
	ExpiresAt time.Time           `json:"expires_at,omitempty"`
	StreamURL string              `json:"stream_url"`
	View      models.TrackingView `json:"view"`
}

// OpenTracking acquires a tracking credential for the vehicle on behalf of
// the caller and starts a tracking session.
func (h *Handler) OpenTracking(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req := openTrackingRequest{VehicleID: chi.URLParam(r, "vehicleID")}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	session, err := h.tracker.Open(r.Context(), req.VehicleID, middleware.BearerFromContext(r.Context()))
	if err != nil {
		logging.Ctx(r.Context()).Info().Err(err).Str("vehicle_id", req.VehicleID).Msg("Tracking session not opened")
		rw.respondTrackingError(err)
		return
	}

	rw.Created(TrackingSessionResponse{
		SessionID: session.ID,
		VehicleID: session.VehicleID,
		ExpiresAt: session.ExpiresAt(),
		StreamURL: "/api/v1/tracking/" + session.ID + "/stream",
		View:      session.View(),
	})
}

// GetTracking returns the session's current view.
func (h *Handler) GetTracking(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	session, ok := h.lookupSession(rw, r)
	if !ok {
		return
	}
	rw.Success(session.View())
}

// CloseTracking tears the session down.
func (h *Handler) CloseTracking(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	session, ok := h.lookupSession(rw, r)
	if !ok {
		return
	}
	if err := h.tracker.Close(session.ID); err != nil {
		rw.respondTrackingError(err)
		return
	}
	rw.NoContent()
}

// StreamTracking upgrades to a WebSocket and streams the session's views
// until the session ends or the viewer goes away.
func (h *Handler) StreamTracking(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	session, ok := h.lookupSession(rw, r)
	if !ok {
		return
	}

	release, err := session.AttachViewer()
	if err != nil {
		rw.respondTrackingError(err)
		return
	}
	defer release()

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("session_id", session.ID).Msg("WebSocket upgrade error")
		return
	}

	logging.Ctx(r.Context()).Debug().Str("session_id", session.ID).Msg("Viewer stream attached")
	ws.NewClient(conn, session).Run(h.streamCtx)
	logging.Ctx(r.Context()).Debug().Str("session_id", session.ID).Msg("Viewer stream detached")
}

// lookupSession resolves the sessionID path parameter to a session owned by
// the caller. Sessions owned by someone else are reported as not found.
func (h *Handler) lookupSession(rw *ResponseWriter, r *http.Request) (*telemetry.Session, bool) {
	req := sessionRequest{SessionID: chi.URLParam(r, "sessionID")}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return nil, false
	}

	session, err := h.tracker.Get(req.SessionID)
	if err == nil && !session.OwnedBy(middleware.BearerFromContext(r.Context())) {
		err = telemetry.ErrSessionNotFound
	}
	if err != nil {
		rw.respondTrackingError(err)
		return nil, false
	}
	return session, true
}
