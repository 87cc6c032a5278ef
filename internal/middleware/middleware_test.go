// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/metrics"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("generates an ID", func(t *testing.T) {
		t.Parallel()
		var seen, correlation string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = logging.RequestIDFromContext(r.Context())
			correlation = logging.CorrelationIDFromContext(r.Context())
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if seen == "" || correlation == "" {
			t.Fatalf("request_id=%q correlation_id=%q, want both set", seen, correlation)
		}
		if got := rec.Header().Get(RequestIDHeader); got != seen {
			t.Errorf("response header = %q, want %q", got, seen)
		}
	})

	t.Run("keeps an upstream ID", func(t *testing.T) {
		t.Parallel()
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = logging.RequestIDFromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "proxy-123")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if seen != "proxy-123" {
			t.Errorf("request_id = %q, want proxy-123", seen)
		}
	})

	t.Run("replaces an oversized ID", func(t *testing.T) {
		t.Parallel()
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = logging.RequestIDFromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if len(seen) > 64 {
			t.Errorf("oversized request ID was kept")
		}
	})
}

func TestPrometheusMetrics_UsesRoutePattern(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Get("/metrics-test/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/metrics-test-default", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics-test/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics-test-default", nil))

	if got := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("GET", "/metrics-test/{sessionID}", "418")); got != 3 {
		t.Errorf("pattern counter = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("GET", "/metrics-test-default", "200")); got != 1 {
		t.Errorf("implicit 200 counter = %v, want 1", got)
	}
}

func TestBearerFromRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{name: "authorization header", header: "Bearer abc", want: "abc"},
		{name: "case-insensitive scheme", header: "bearer abc", want: "abc"},
		{name: "header wins over cookie", header: "Bearer abc", cookie: "cookie-token", want: "abc"},
		{name: "cookie fallback", cookie: "cookie-token", want: "cookie-token"},
		{name: "basic auth ignored", header: "Basic dXNlcjpwYXNz", cookie: "cookie-token", want: "cookie-token"},
		{name: "empty bearer ignored", header: "Bearer   ", want: ""},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			if got := BearerFromRequest(req, "access_token"); got != tt.want {
				t.Errorf("BearerFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionBearer(t *testing.T) {
	t.Parallel()

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = BearerFromContext(r.Context())
	})
	missing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	t.Run("stores bearer", func(t *testing.T) {
		handler := SessionBearer("access_token", missing)(next)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || seen != "abc" {
			t.Errorf("code=%d bearer=%q", rec.Code, seen)
		}
	})

	t.Run("missing bearer rejected", func(t *testing.T) {
		seen = "unchanged"
		handler := SessionBearer("access_token", missing)(next)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized || seen != "unchanged" {
			t.Errorf("code=%d, next handler ran=%v", rec.Code, seen != "unchanged")
		}
	})

	t.Run("nil onMissing passes through", func(t *testing.T) {
		seen = "unchanged"
		handler := SessionBearer("access_token", nil)(next)
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if seen != "" {
			t.Errorf("bearer = %q, want empty", seen)
		}
	})
}
