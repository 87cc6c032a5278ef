// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package logging

// SanitizeToken masks a bearer or provider token for logging, keeping only
// the first and last four characters.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "[REDACTED]"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
