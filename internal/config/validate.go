// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/fleettrack/internal/logging"
)

const (
	minPollInterval = 500 * time.Millisecond
	maxPollInterval = 10 * time.Minute
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateBackend,
		c.validateProvider,
		c.validateTracking,
		c.validateServer,
		c.validateLogging,
	}
	for _, validator := range validators {
		if err := validator(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if err := validateHTTPURL(c.Backend.URL, "BACKEND_URL"); err != nil {
		return err
	}
	if !strings.Contains(c.Backend.TokenPath, "{vehicle}") {
		return fmt.Errorf("BACKEND_TOKEN_PATH must contain {vehicle}")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateProvider() error {
	p := c.Provider
	if p.URL == "" {
		return fmt.Errorf("PROVIDER_URL is required")
	}
	if err := validateHTTPURL(p.URL, "PROVIDER_URL"); err != nil {
		return err
	}
	if !strings.Contains(p.LatestPath, "{device}") {
		return fmt.Errorf("PROVIDER_LATEST_PATH must contain {device}")
	}
	if p.PollInterval < minPollInterval || p.PollInterval > maxPollInterval {
		return fmt.Errorf("PROVIDER_POLL_INTERVAL must be between %s and %s", minPollInterval, maxPollInterval)
	}
	if p.PushBackoff <= 0 {
		return fmt.Errorf("PROVIDER_PUSH_BACKOFF must be positive")
	}
	if p.RequestTimeout <= 0 {
		return fmt.Errorf("PROVIDER_REQUEST_TIMEOUT must be positive")
	}
	if p.RateLimit <= 0 || p.RateBurst < 1 {
		return fmt.Errorf("PROVIDER_RATE_LIMIT and PROVIDER_RATE_BURST must be positive")
	}

	switch p.PushTransport {
	case PushTransportNone:
		return nil
	case PushTransportWebSocket:
		return validateSchemeURL(p.PushURL, "PROVIDER_PUSH_URL", "ws", "wss")
	case PushTransportNATS:
		return validateSchemeURL(p.PushURL, "PROVIDER_PUSH_URL", "nats", "tls", "ws", "wss")
	default:
		return fmt.Errorf("PROVIDER_PUSH_TRANSPORT must be websocket, nats or none, got %q", p.PushTransport)
	}
}

func (c *Config) validateTracking() error {
	if c.Tracking.MaxSessions < 1 {
		return fmt.Errorf("TRACKING_MAX_SESSIONS must be at least 1")
	}
	if c.Tracking.ReapInterval <= 0 || c.Tracking.StatusTick <= 0 {
		return fmt.Errorf("TRACKING_REAP_INTERVAL and TRACKING_STATUS_TICK must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.RateLimitReqs < 1 || c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}

// validateHTTPURL validates that a URL is properly formatted for HTTP/HTTPS services.
// A path prefix is allowed (APIs are often mounted under /api), query parameters are not.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}
	return nil
}

// validateSchemeURL checks rawURL is set, parses, has a host and one of the schemes.
func validateSchemeURL(rawURL, fieldName string, schemes ...string) error {
	if rawURL == "" {
		return fmt.Errorf("%s is required for the selected push transport", fieldName)
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	for _, s := range schemes {
		if parsedURL.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %s, got: %s", fieldName, strings.Join(schemes, ", "), parsedURL.Scheme)
}
