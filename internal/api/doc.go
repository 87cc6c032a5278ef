// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
Package api provides the HTTP surface of the tracking service.

The API is the boundary between the operations frontend and the telemetry
machinery: it relays the caller's session bearer to the credential broker,
opens and tears down tracking sessions, and serves the presentation read
model (models.TrackingView) either on request or as a WebSocket stream.

Routes (Chi router):

	POST   /api/v1/vehicles/{vehicleID}/tracking   open a tracking session
	GET    /api/v1/tracking/{sessionID}            current TrackingView
	DELETE /api/v1/tracking/{sessionID}            tear the session down
	GET    /api/v1/tracking/{sessionID}/stream     WebSocket stream of views
	GET    /api/v1/health/live                     liveness probe
	GET    /api/v1/health/ready                    readiness probe
	GET    /metrics                                Prometheus metrics

Every JSON response uses the same envelope:

	{"success": true, "data": {...}, "meta": {...}}
	{"success": false, "message": "...", "error": {"code": "...", "message": "..."}}

Error Mapping:

  - telemetry.ErrUnauthorized: 401 UNAUTHORIZED
  - telemetry.ErrNotFound, telemetry.ErrSessionNotFound: 404 NOT_FOUND
  - telemetry.ErrUpstream: 502 EXTERNAL_SERVICE_FAILED
  - validation failures: 400 VALIDATION_FAILED
  - telemetry.ErrTooManySessions, telemetry.ErrTrackerClosed: 503 SERVICE_UNAVAILABLE
  - telemetry.ErrViewerAttached: 409 CONFLICT

Tracking routes require a bearer (Authorization header or the configured auth
cookie). Sessions can only be read, streamed or closed by the bearer that
opened them; other callers get 404.
*/
package api
