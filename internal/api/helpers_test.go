// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleettrack/internal/config"
	"github.com/tomtom215/fleettrack/internal/models"
	"github.com/tomtom215/fleettrack/internal/telemetry"
)

// stubIssuer is a CredentialIssuer with a fixed answer that records bearers.
type stubIssuer struct {
	mu      sync.Mutex
	err     error
	bearers []string
}

func (s *stubIssuer) Acquire(_ context.Context, _, bearer string) (*telemetry.CredentialGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bearers = append(s.bearers, bearer)
	if s.err != nil {
		return nil, s.err
	}
	return &telemetry.CredentialGrant{
		Credential: models.TrackingCredential{
			ProviderToken: "provider-token",
			DeviceID:      "42",
			ExpiresAt:     time.Now().Add(time.Hour),
		},
		Initial: &models.LocationSample{Latitude: 10.7, Longitude: 106.6},
	}, nil
}

func (s *stubIssuer) lastBearer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bearers) == 0 {
		return ""
	}
	return s.bearers[len(s.bearers)-1]
}

// stubFetcher always returns the same sample.
type stubFetcher struct{}

func (stubFetcher) FetchLatest(context.Context, models.TrackingCredential) (models.LocationSample, error) {
	return models.LocationSample{Latitude: 10.776, Longitude: 106.700}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   1000,
			RateLimitWindow: time.Minute,
		},
		Security: config.SecurityConfig{SessionCookie: "access_token"},
	}
}

type testEnv struct {
	server  *httptest.Server
	tracker *telemetry.Tracker
	issuer  *stubIssuer
	handler *Handler
}

func newTestEnv(t *testing.T, issuer *stubIssuer, maxSessions int, cfg *config.Config) *testEnv {
	t.Helper()
	return newTestEnvWithBreaker(t, issuer, maxSessions, cfg, nil)
}

func newTestEnvWithBreaker(t *testing.T, issuer *stubIssuer, maxSessions int, cfg *config.Config, breaker BreakerState) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	tracker := telemetry.NewTracker(issuer, stubFetcher{}, nil, telemetry.TrackerConfig{
		MaxSessions:       maxSessions,
		CredentialTimeout: time.Second,
		StatusTick:        10 * time.Millisecond,
		Poll:              telemetry.PollerConfig{Interval: 20 * time.Millisecond, RequestTimeout: time.Second},
	})
	handler := NewHandler(tracker, breaker, cfg)
	router := NewRouter(handler, NewChiMiddleware(ChiMiddlewareConfigFrom(cfg.Server)), cfg.Security.SessionCookie)

	server := httptest.NewServer(router.SetupChi())
	t.Cleanup(func() {
		server.Close()
		tracker.Shutdown()
	})
	return &testEnv{server: server, tracker: tracker, issuer: issuer, handler: handler}
}

// envelope mirrors APIResponse with raw data for per-test decoding.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, bearer string) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return doRequest(t, req)
}

func doRequest(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env envelope
	if len(body) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(body, &env); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
	}
	return resp, env
}

func (e *testEnv) open(t *testing.T, vehicleID, bearer string) TrackingSessionResponse {
	t.Helper()
	resp, env := e.do(t, http.MethodPost, "/api/v1/vehicles/"+vehicleID+"/tracking", bearer)
	checkStatusCode(t, resp, http.StatusCreated)
	var out TrackingSessionResponse
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return out
}

func checkStatusCode(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

func checkErrorCode(t *testing.T, env envelope, want string) {
	t.Helper()
	if env.Success {
		t.Errorf("success = true on error response")
	}
	if env.Error == nil || env.Error.Code != want {
		t.Errorf("error = %+v, want code %s", env.Error, want)
	}
	if env.Message == "" {
		t.Errorf("message should be set on error responses")
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
