// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

// Package logging provides centralized zerolog-based structured logging for Fleettrack.
//
// All packages log through the global helpers so output format and level are
// configured once at startup:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("vehicle_id", id).Msg("Tracking session opened")
//	logging.Warn().Err(err).Str("source", "poll").Msg("Telemetry fetch failed")
//
// Context-aware logging carries correlation and request IDs set by the HTTP
// middleware:
//
//	logging.Ctx(ctx).Info().Msg("Credential obtained")
//
// # Configuration
//
// Environment Variables (mapped by internal/config):
//
//	LOG_LEVEL   - trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - json, console (default: json)
//	LOG_CALLER  - include caller file:line (default: false)
//
// # Suture Integration
//
// NewSlogLogger returns an *slog.Logger backed by zerolog for the sutureslog
// event hook used by the supervisor tree.
//
// # Secrets
//
// Provider tokens and session bearers must never be logged in full; use
// SanitizeToken.
package logging
