// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package middleware

import (
	"context"
	"net/http"
	"strings"
)

type bearerKey struct{}

// SessionBearer extracts the caller's bearer token from the Authorization
// header, falling back to the cookieName cookie. Requests without one are
// handed to onMissing; a nil onMissing lets them through with no bearer.
func SessionBearer(cookieName string, onMissing http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := BearerFromRequest(r, cookieName)
			if bearer == "" && onMissing != nil {
				onMissing.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bearerKey{}, bearer)))
		})
	}
}

// BearerFromRequest returns the bearer from "Authorization: Bearer <token>"
// or, failing that, the named cookie.
func BearerFromRequest(r *http.Request, cookieName string) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// BearerFromContext returns the bearer stored by SessionBearer.
func BearerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(bearerKey{}).(string); ok {
		return v
	}
	return ""
}
