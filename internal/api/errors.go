// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package api

import (
	"errors"

	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/telemetry"
)

// respondTrackingError maps a telemetry error onto the response envelope.
// Messages stay generic; the wrapped detail goes to the log only.
func (rw *ResponseWriter) respondTrackingError(err error) {
	switch {
	case errors.Is(err, telemetry.ErrUnauthorized):
		rw.Unauthorized("Not authorized to track this vehicle")
	case errors.Is(err, telemetry.ErrNotFound):
		rw.NotFound("Vehicle has no tracking device")
	case errors.Is(err, telemetry.ErrSessionNotFound):
		rw.NotFound("Tracking session not found")
	case errors.Is(err, telemetry.ErrUpstream):
		rw.ExternalServiceError("tracking credentials", err)
	case errors.Is(err, telemetry.ErrTooManySessions):
		rw.ServiceUnavailable("Tracking capacity reached, try again later")
	case errors.Is(err, telemetry.ErrTrackerClosed):
		rw.ServiceUnavailable("Tracking is shutting down")
	case errors.Is(err, telemetry.ErrViewerAttached):
		rw.Conflict("Tracking session already has a viewer")
	default:
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("Unhandled tracking error")
		rw.InternalError("Tracking failed")
	}
}
