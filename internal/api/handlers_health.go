// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package api

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ReadinessStatus is the readiness probe payload.
type ReadinessStatus struct {
	Status          string  `json:"status"` // "ready", "degraded" or "not_ready"
	Sessions        int     `json:"sessions"`
	MaxSessions     int     `json:"max_sessions"`
	ProviderBreaker string  `json:"provider_breaker,omitempty"`
	Uptime          float64 `json:"uptime_seconds"`
}

// HealthLive handles liveness probe requests (Kubernetes-style).
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests (Kubernetes-style).
// The service is not ready once the tracker has shut down. An open provider
// breaker is reported as degraded but stays ready: push keeps sessions live.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := ReadinessStatus{
		Status:      "ready",
		Sessions:    h.tracker.Len(),
		MaxSessions: h.tracker.MaxSessions(),
		Uptime:      time.Since(h.startTime).Seconds(),
	}
	if h.breaker != nil {
		state := h.breaker.State()
		status.ProviderBreaker = state.String()
		if state == gobreaker.StateOpen {
			status.Status = "degraded"
		}
	}

	if h.tracker.Closed() {
		status.Status = "not_ready"
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Tracker is shut down", status)
		return
	}
	rw.Success(status)
}
