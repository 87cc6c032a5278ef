// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
credential_broker.go - Tracking Credential Broker

Exchanges a vehicle identifier plus the caller's session bearer for a
short-lived, provider-scoped tracking credential issued by the fleet backend.

Endpoint: GET {backend.url}{backend.token_path}
*/

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/fleettrack/internal/config"
	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/metrics"
	"github.com/tomtom215/fleettrack/internal/models"
)

// maxCredentialBody bounds how much of the backend response is read.
const maxCredentialBody = 1 << 20

var (
	tokenKeys     = []string{"token", "accessToken", "providerToken", "access_token"}
	deviceIDKeys  = []string{"deviceId", "device_id", "deviceID", "id"}
	imeiKeys      = []string{"imei", "deviceImei", "device_imei"}
	expiresAtKeys = []string{"expiresAt", "expires_at", "expiry", "exp"}
	expiresInKeys = []string{"expiresIn", "expires_in"}
)

// CredentialIssuer obtains tracking credentials for a vehicle.
type CredentialIssuer interface {
	Acquire(ctx context.Context, vehicleID, bearer string) (*CredentialGrant, error)
}

// Ensure CredentialBroker implements CredentialIssuer
var _ CredentialIssuer = (*CredentialBroker)(nil)

// CredentialGrant is a successful credential exchange.
type CredentialGrant struct {
	Credential models.TrackingCredential

	// Initial is the coordinate convenience field of the issuing response,
	// when it normalizes to a valid sample. Nil otherwise.
	Initial *models.LocationSample
}

// CredentialBroker talks to the fleet backend. It holds no per-call state.
type CredentialBroker struct {
	baseURL    string
	tokenPath  string
	httpClient *http.Client
	now        func() time.Time
}

// NewCredentialBroker creates a broker for the configured backend.
func NewCredentialBroker(cfg config.BackendConfig) *CredentialBroker {
	return &CredentialBroker{
		baseURL:   strings.TrimSuffix(cfg.URL, "/"),
		tokenPath: cfg.TokenPath,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now: time.Now,
	}
}

// Acquire exchanges vehicleID and the caller's bearer for a tracking credential.
//
// Errors:
//   - ErrUnauthorized: empty bearer (no request is made), or 401/403 from the backend
//   - ErrNotFound: the vehicle has no tracking capability
//   - ErrUpstream: anything else, including timeouts and unusable bodies
//
// There is no internal retry.
func (b *CredentialBroker) Acquire(ctx context.Context, vehicleID, bearer string) (*CredentialGrant, error) {
	if strings.TrimSpace(bearer) == "" {
		metrics.RecordCredentialRequest("unauthorized", 0)
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(vehicleID) == "" {
		return nil, fmt.Errorf("%w: empty vehicle id", ErrNotFound)
	}

	start := time.Now()
	grant, err := b.acquire(ctx, vehicleID, bearer)
	metrics.RecordCredentialRequest(credentialOutcome(err), time.Since(start))

	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("vehicle_id", vehicleID).Msg("Tracking credential request failed")
		return nil, err
	}

	logging.Ctx(ctx).Debug().
		Str("vehicle_id", vehicleID).
		Str("device", grant.Credential.Handle()).
		Str("token", logging.SanitizeToken(grant.Credential.ProviderToken)).
		Time("expires_at", grant.Credential.ExpiresAt).
		Bool("seeded", grant.Initial != nil).
		Msg("Tracking credential issued")

	return grant, nil
}

func (b *CredentialBroker) acquire(ctx context.Context, vehicleID, bearer string) (*CredentialGrant, error) {
	endpoint := b.baseURL + strings.ReplaceAll(b.tokenPath, "{vehicle}", url.PathEscape(vehicleID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: backend returned status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCredentialBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}

	return b.parseGrant(body)
}

// parseGrant decodes a backend credential body. Both the {success, message, data}
// envelope and a bare object are accepted.
func (b *CredentialBroker) parseGrant(body []byte) (*CredentialGrant, error) {
	var top map[string]any
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: decode body: %w", ErrUpstream, err)
	}

	if success, ok := top["success"].(bool); ok && !success {
		msg, _ := top["message"].(string)
		if strings.Contains(strings.ToLower(msg), "not found") {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, msg)
		}
		return nil, fmt.Errorf("%w: backend reported failure: %s", ErrUpstream, msg)
	}

	fields := top
	if data, ok := top["data"].(map[string]any); ok {
		fields = data
	}

	cred := models.TrackingCredential{
		ProviderToken: firstString(fields, tokenKeys),
		DeviceID:      firstString(fields, deviceIDKeys),
		DeviceIMEI:    firstString(fields, imeiKeys),
	}
	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	cred.ExpiresAt = b.resolveExpiry(fields, cred.ProviderToken)

	grant := &CredentialGrant{Credential: cred}
	if sample, ok := Normalize(fields); ok {
		grant.Initial = &sample
	}
	return grant, nil
}

// resolveExpiry prefers an absolute expiry, then a relative one, then the
// exp claim of a JWT token. Zero means unknown.
func (b *CredentialBroker) resolveExpiry(fields map[string]any, token string) time.Time {
	for _, key := range expiresAtKeys {
		if t, ok := toTime(fields[key]); ok {
			return t
		}
	}
	for _, key := range expiresInKeys {
		if secs, ok := toFloat(fields[key]); ok && secs > 0 {
			return b.now().Add(time.Duration(secs * float64(time.Second))).UTC()
		}
	}
	if t, ok := jwtExpiry(token); ok {
		return t
	}
	return time.Time{}
}

// jwtExpiry reads the exp claim without verifying the signature. The provider
// token is opaque to this service; exp is only used to schedule teardown.
func jwtExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.UTC(), true
}

func toTime(v any) (time.Time, bool) {
	if v == nil {
		return time.Time{}, false
	}
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
			return t.UTC(), true
		}
	}
	secs, ok := toEpochSeconds(v)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}

// firstString returns the first non-empty value among keys. Numeric device
// ids are rendered without a fractional part.
func firstString(fields map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := fields[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10)
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func credentialOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "upstream"
	}
}
