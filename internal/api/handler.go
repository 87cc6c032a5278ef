// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/fleettrack/internal/config"
	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/telemetry"
)

// SessionManager is the subset of telemetry.Tracker the handlers use.
type SessionManager interface {
	Open(ctx context.Context, vehicleID, bearer string) (*telemetry.Session, error)
	Get(id string) (*telemetry.Session, error)
	Close(id string) error
	Len() int
	MaxSessions() int
	Closed() bool
}

// BreakerState reports the provider circuit breaker state for readiness.
type BreakerState interface {
	State() gobreaker.State
}

var (
	_ SessionManager = (*telemetry.Tracker)(nil)
	_ BreakerState   = (*telemetry.ProviderCircuitBreakerClient)(nil)
)

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handler.go: Handler struct, constructor, WebSocket upgrader
//   - handlers_tracking.go: tracking session endpoints
//   - handlers_health.go: liveness and readiness probes
type Handler struct {
	tracker   SessionManager
	breaker   BreakerState // optional
	config    *config.Config
	startTime time.Time

	// streamCtx is cancelled on shutdown to close open viewer streams.
	streamCtx context.Context
}

// NewHandler creates the API handler. breaker may be nil.
func NewHandler(tracker SessionManager, breaker BreakerState, cfg *config.Config) *Handler {
	return &Handler{
		tracker:   tracker,
		breaker:   breaker,
		config:    cfg,
		startTime: time.Now(),
		streamCtx: context.Background(),
	}
}

// SetStreamContext bounds the lifetime of viewer streams. Cancelling ctx
// closes every open stream with a going-away frame.
func (h *Handler) SetStreamContext(ctx context.Context) {
	h.streamCtx = ctx
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins against the
// CORS allow list. Browsers always send Origin, so a missing one is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	if h.config == nil {
		return true
	}

	for _, allowed := range h.config.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected: origin not allowed")
	return false
}
