// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/metrics"
	"github.com/tomtom215/fleettrack/internal/models"
)

// Ensure ProviderCircuitBreakerClient implements LatestFetcher
var _ LatestFetcher = (*ProviderCircuitBreakerClient)(nil)

// ProviderCircuitBreakerClient wraps a LatestFetcher with a circuit breaker so
// that a failing provider is not hammered by every open session at once.
//
// One breaker is shared by all sessions, so only failures that say something
// about the provider count against it. A rejected token or unknown device
// (401/403/404) and a poll abandoned by its own session do not.
//
// The breaker uses real time (via sony/gobreaker) for its interval and timeout.
type ProviderCircuitBreakerClient struct {
	client LatestFetcher
	cb     *gobreaker.CircuitBreaker[models.LocationSample]
	name   string
}

// CircuitBreakerSettings tunes the provider breaker.
type CircuitBreakerSettings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	FailureRate float64
}

// DefaultCircuitBreakerSettings returns the provider breaker configuration:
// 3 probes in half-open, 1 minute window, 30 second open timeout, trips at a
// 60% failure rate over at least 10 requests.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		Name:        "telemetry-provider",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		MinRequests: 10,
		FailureRate: 0.6,
	}
}

// NewProviderCircuitBreakerClient wraps client with a breaker.
func NewProviderCircuitBreakerClient(client LatestFetcher, settings CircuitBreakerSettings) *ProviderCircuitBreakerClient {
	cbName := settings.Name

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[models.LocationSample](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= settings.FailureRate
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening provider circuit")
			}
			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			return !countsAgainstProvider(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &ProviderCircuitBreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// FetchLatest runs the wrapped fetch through the breaker. A rejected request
// is reported as ErrFetch like any other failed poll.
func (c *ProviderCircuitBreakerClient) FetchLatest(ctx context.Context, cred models.TrackingCredential) (models.LocationSample, error) {
	// Already canceled polls never reach the breaker.
	if err := ctx.Err(); err != nil {
		return models.LocationSample{}, fmt.Errorf("%w: %w: %w", ErrFetch, errCallerCanceled, err)
	}

	sample, err := c.cb.Execute(func() (models.LocationSample, error) {
		sample, err := c.client.FetchLatest(ctx, cred)
		if err != nil && errors.Is(ctx.Err(), context.Canceled) {
			return sample, fmt.Errorf("%w: %w", errCallerCanceled, err)
		}
		return sample, err
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(c.name, "rejected").Inc()
			return models.LocationSample{}, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		if !countsAgainstProvider(err) {
			metrics.CircuitBreakerRequests.WithLabelValues(c.name, "ignored").Inc()
			return models.LocationSample{}, err
		}
		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()
		counts := c.cb.Counts()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(c.name).Set(float64(counts.ConsecutiveFailures))
		return models.LocationSample{}, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(c.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(c.name).Set(0)
	return sample, nil
}

// errCallerCanceled marks a fetch abandoned because its session was torn down.
var errCallerCanceled = errors.New("poll canceled by session")

// countsAgainstProvider reports whether err is a provider-wide fault.
// Unusable bodies, credential-scoped statuses and canceled polls are not.
// Request timeouts are.
func countsAgainstProvider(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidPayload) || errors.Is(err, errCallerCanceled) {
		return false
	}
	var statusErr *ProviderStatusError
	if errors.As(err, &statusErr) && statusErr.CredentialScoped() {
		return false
	}
	return true
}

// State returns the current breaker state.
func (c *ProviderCircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging and metrics
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
