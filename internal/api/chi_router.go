// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/fleettrack/internal/middleware"
)

// Router sets up HTTP routes using Chi router.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	sessionCookie string
}

// NewRouter creates a router. sessionCookie names the auth cookie used when
// no Authorization header is sent.
func NewRouter(handler *Handler, chiMiddleware *ChiMiddleware, sessionCookie string) *Router {
	if chiMiddleware == nil {
		chiMiddleware = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: chiMiddleware,
		sessionCookie: sessionCookie,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	// ========================
	// Health Endpoints
	// ========================
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom("health", RateLimitHealth))
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	unauthorized := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Unauthorized("Authentication required")
	})

	// ========================
	// Tracking Endpoints
	// ========================
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit("tracking"))
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.SessionBearer(router.sessionCookie, unauthorized))

		r.With(router.chiMiddleware.RateLimitCustom("tracking_open", RateLimitOpen)).
			Post("/api/v1/vehicles/{vehicleID}/tracking", router.handler.OpenTracking)

		r.Route("/api/v1/tracking/{sessionID}", func(r chi.Router) {
			r.Get("/", router.handler.GetTracking)
			r.Delete("/", router.handler.CloseTracking)
			r.Get("/stream", router.handler.StreamTracking)
		})
	})

	return r
}
