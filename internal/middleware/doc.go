// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
Package middleware provides HTTP middleware components for the tracking API.

All middleware uses Chi's func(http.Handler) http.Handler shape so it can be
applied with r.Use().

Key Components:

  - RequestID: request and correlation IDs for structured logging
  - PrometheusMetrics: request counts and latency labelled by route pattern
  - SessionBearer: the session boundary; pulls the caller's bearer from the
    Authorization header or the auth cookie so it can be relayed to the
    operations backend when a tracking credential is requested

Middleware Stack:

	r.Use(middleware.RequestID)
	r.Route("/api/v1/tracking", func(r chi.Router) {
	    r.Use(middleware.PrometheusMetrics)
	    r.Use(middleware.SessionBearer("access_token", unauthorized))
	    ...
	})

The bearer is never logged; use logging.SanitizeToken when it has to be
referenced in diagnostics.
*/
package middleware
