// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package config

import (
	"fmt"
	"time"
)

// Push transport names accepted by provider.push_transport.
const (
	PushTransportWebSocket = "websocket"
	PushTransportNATS      = "nats"
	PushTransportNone      = "none"
)

// Config holds all application configuration.
type Config struct {
	Backend  BackendConfig  `koanf:"backend"`
	Provider ProviderConfig `koanf:"provider"`
	Tracking TrackingConfig `koanf:"tracking"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// BackendConfig points at the operations REST API that issues tracking credentials.
type BackendConfig struct {
	URL string `koanf:"url"`

	// TokenPath is appended to URL; {vehicle} is replaced by the escaped vehicle ID.
	TokenPath string `koanf:"token_path"`

	// Timeout bounds credential acquisition.
	Timeout time.Duration `koanf:"timeout"`
}

// ProviderConfig holds telemetry provider settings.
type ProviderConfig struct {
	// URL is the provider REST base URL for latest-telemetry lookups.
	URL string `koanf:"url"`

	// LatestPath is appended to URL; {device} is replaced by the device handle.
	LatestPath string `koanf:"latest_path"`

	// PushTransport selects the publish/subscribe transport: websocket, nats or none.
	PushTransport string `koanf:"push_transport"`

	// PushURL is the ws(s):// or nats:// endpoint of the push channel.
	PushURL string `koanf:"push_url"`

	// PollInterval is the fixed polling cadence. It is also the grace period
	// before a silent push channel marks the session Degraded.
	PollInterval time.Duration `koanf:"poll_interval"`

	// PushBackoff is the fixed delay between push reconnect attempts.
	PushBackoff time.Duration `koanf:"push_backoff"`

	// RequestTimeout bounds a single latest-telemetry request.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RateLimit is the sustained provider request rate (requests/second) across sessions.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// TrackingConfig holds tracking session settings.
type TrackingConfig struct {
	MaxSessions  int           `koanf:"max_sessions"`
	ReapInterval time.Duration `koanf:"reap_interval"`

	// StatusTick is how often reconcilers re-derive time-based status.
	StatusTick time.Duration `koanf:"status_tick"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds the session boundary settings.
type SecurityConfig struct {
	// SessionCookie is the auth cookie relayed as a bearer when no
	// Authorization header is present.
	SessionCookie string `koanf:"session_cookie"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
