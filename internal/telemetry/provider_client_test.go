// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/fleettrack/internal/config"
	"github.com/tomtom215/fleettrack/internal/models"
)

func newTestProviderClient(t *testing.T, handler http.HandlerFunc) *ProviderClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewProviderClient(config.ProviderConfig{
		URL:            server.URL,
		LatestPath:     "/v1/devices/{device}/telemetry/latest",
		RequestTimeout: 2 * time.Second,
		RateLimit:      1000,
		RateBurst:      1000,
	})
}

func TestProviderClient_FetchLatest(t *testing.T) {
	t.Parallel()

	seen := make(chan [2]string, 1)
	client := newTestProviderClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen <- [2]string{r.URL.Path, r.Header.Get("Authorization")}
		_, _ = w.Write([]byte(`{"position.latitude":"10.776","position.longitude":"106.700","position.speed":12}`))
	})

	sample, err := client.FetchLatest(context.Background(), testCredential())
	if err != nil {
		t.Fatalf("FetchLatest() error = %v", err)
	}

	req := <-seen
	if req[0] != "/v1/devices/42/telemetry/latest" {
		t.Errorf("path = %q", req[0])
	}
	if req[1] != "Bearer abc" {
		t.Errorf("Authorization = %q", req[1])
	}
	checkFloatEqual(t, "latitude", sample.Latitude, 10.776)
	checkFloatEqual(t, "longitude", sample.Longitude, 106.700)
	checkFloatPtrEqual(t, "speed", sample.Speed, 12)
}

func TestProviderClient_FetchErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, `{}`, ErrFetch},
		{"rate limited", http.StatusTooManyRequests, ``, ErrFetch},
		{"unauthorized", http.StatusUnauthorized, ``, ErrFetch},
		{"no location", http.StatusOK, `{"battery":80}`, ErrInvalidPayload},
		{"garbage", http.StatusOK, `not json`, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestProviderClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.FetchLatest(context.Background(), testCredential())
			checkErrorIs(t, err, tt.want)
		})
	}
}

func TestProviderClient_TransportFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewProviderClient(config.ProviderConfig{
		URL:            url,
		LatestPath:     "/latest/{device}",
		RequestTimeout: time.Second,
		RateLimit:      10,
		RateBurst:      1,
	})
	_, err := client.FetchLatest(context.Background(), testCredential())
	checkErrorIs(t, err, ErrFetch)
}

func TestProviderClient_MissingHandle(t *testing.T) {
	t.Parallel()

	client := newTestProviderClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected without a device handle")
	})
	_, err := client.FetchLatest(context.Background(), models.TrackingCredential{ProviderToken: "abc"})
	checkErrorIs(t, err, ErrFetch)
	checkErrorIs(t, err, models.ErrNoDeviceHandle)
}

func TestProviderCircuitBreaker_OpensAndRejects(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fetcher := &fakeFetcher{}
	fetcher.setResults(fetchResult{err: ErrFetch})

	settings := DefaultCircuitBreakerSettings()
	settings.Name = "test-provider-open"
	settings.MinRequests = 3
	settings.Timeout = time.Hour
	cb := NewProviderCircuitBreakerClient(countingFetcher{fetcher, &calls}, settings)

	for i := 0; i < 3; i++ {
		_, err := cb.FetchLatest(context.Background(), testCredential())
		checkErrorIs(t, err, ErrFetch)
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}

	_, err := cb.FetchLatest(context.Background(), testCredential())
	checkErrorIs(t, err, ErrFetch)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected open-state rejection, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("underlying fetcher called %d times, want 3", calls.Load())
	}
}

func TestProviderCircuitBreaker_InvalidPayloadIsNotFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	fetcher.setResults(fetchResult{err: ErrInvalidPayload})

	settings := DefaultCircuitBreakerSettings()
	settings.Name = "test-provider-invalid"
	settings.MinRequests = 2
	cb := NewProviderCircuitBreakerClient(fetcher, settings)

	for i := 0; i < 5; i++ {
		_, err := cb.FetchLatest(context.Background(), testCredential())
		checkErrorIs(t, err, ErrInvalidPayload)
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", cb.State())
	}
}

// countingFetcher counts calls that reach the wrapped fetcher.
type countingFetcher struct {
	next  LatestFetcher
	calls *atomic.Int32
}

func (c countingFetcher) FetchLatest(ctx context.Context, cred models.TrackingCredential) (models.LocationSample, error) {
	c.calls.Add(1)
	return c.next.FetchLatest(ctx, cred)
}
