// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
provider_client.go - Telemetry Provider REST Client

Fetches the latest telemetry record for one device from the third-party
provider using the session's scoped credential as bearer auth.

Endpoint: GET {provider.url}{provider.latest_path}
*/

package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/tomtom215/fleettrack/internal/config"
	"github.com/tomtom215/fleettrack/internal/models"
)

// maxTelemetryBody bounds how much of a provider response is read.
const maxTelemetryBody = 1 << 20

// LatestFetcher fetches the most recent location for a credential's device.
// Both ProviderClient and ProviderCircuitBreakerClient implement this interface.
type LatestFetcher interface {
	FetchLatest(ctx context.Context, cred models.TrackingCredential) (models.LocationSample, error)
}

// Ensure ProviderClient implements LatestFetcher
var _ LatestFetcher = (*ProviderClient)(nil)

// ProviderClient provides access to the provider's latest-telemetry endpoint.
// One client is shared by all sessions; the limiter caps the aggregate rate.
type ProviderClient struct {
	baseURL    string
	latestPath string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewProviderClient creates a provider client from configuration.
func NewProviderClient(cfg config.ProviderConfig) *ProviderClient {
	return &ProviderClient{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		latestPath: cfg.LatestPath,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

// FetchLatest issues one latest-telemetry request.
// Transport failures and limiter waits that outlive ctx return ErrFetch;
// non-2xx responses return a *ProviderStatusError, which also matches ErrFetch.
// A body without a usable location returns ErrInvalidPayload.
func (c *ProviderClient) FetchLatest(ctx context.Context, cred models.TrackingCredential) (models.LocationSample, error) {
	handle := cred.Handle()
	if handle == "" || cred.ProviderToken == "" {
		return models.LocationSample{}, fmt.Errorf("%w: %w", ErrFetch, cred.Validate())
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return models.LocationSample{}, fmt.Errorf("%w: rate limiter: %w", ErrFetch, err)
	}

	endpoint := c.baseURL + strings.ReplaceAll(c.latestPath, "{device}", url.PathEscape(handle))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return models.LocationSample{}, fmt.Errorf("%w: build request: %w", ErrFetch, err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.ProviderToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.LocationSample{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.LocationSample{}, &ProviderStatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTelemetryBody))
	if err != nil {
		return models.LocationSample{}, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}

	sample, ok := NormalizeBytes(body)
	if !ok {
		return models.LocationSample{}, ErrInvalidPayload
	}
	return sample, nil
}
