// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracking Session Metrics
	TrackingSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracking_sessions_active",
			Help: "Current number of open vehicle tracking sessions",
		},
	)

	TrackingSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_sessions_total",
			Help: "Total number of tracking session lifecycle events",
		},
		[]string{"event"}, // "opened", "closed", "expired", "rejected"
	)

	// Credential Broker Metrics
	CredentialRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_credential_requests_total",
			Help: "Total number of tracking credential requests by outcome",
		},
		[]string{"outcome"}, // "success", "unauthorized", "not_found", "upstream"
	)

	CredentialRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracking_credential_request_duration_seconds",
			Help:    "Duration of tracking credential requests in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// Reconciler Metrics
	LocationCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_location_candidates_total",
			Help: "Total number of location candidates seen by the reconciler",
		},
		[]string{"source", "outcome"}, // outcome: "accepted", "duplicate", "invalid"
	)

	ChannelStatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_channel_status_transitions_total",
			Help: "Total number of tracking channel status transitions",
		},
		[]string{"from", "to"},
	)

	// Polling Fetcher Metrics
	PollRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_poll_requests_total",
			Help: "Total number of latest-telemetry poll requests by outcome",
		},
		[]string{"outcome"}, // "success", "error", "invalid_payload"
	)

	PollRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracking_poll_request_duration_seconds",
			Help:    "Duration of latest-telemetry poll requests in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// Push Subscriber Metrics
	PushMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_push_messages_total",
			Help: "Total number of push messages received by outcome",
		},
		[]string{"transport", "outcome"}, // outcome: "forwarded", "dropped"
	)

	PushReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_push_reconnects_total",
			Help: "Total number of push transport reconnect attempts",
		},
		[]string{"transport"},
	)

	PushSubscribersByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracking_push_subscribers",
			Help: "Current number of push subscribers per state",
		},
		[]string{"state"},
	)

	// Viewer Stream Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of active viewer WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of tracking views sent to viewers",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current consecutive failure count",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Application Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordAPIRequest records API request metrics
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCredentialRequest records a credential broker call.
func RecordCredentialRequest(outcome string, duration time.Duration) {
	CredentialRequests.WithLabelValues(outcome).Inc()
	CredentialRequestDuration.Observe(duration.Seconds())
}

// RecordPoll records a single latest-telemetry fetch.
func RecordPoll(outcome string, duration time.Duration) {
	PollRequests.WithLabelValues(outcome).Inc()
	PollRequestDuration.Observe(duration.Seconds())
}

// RecordCandidate records what the reconciler did with a location candidate.
func RecordCandidate(source, outcome string) {
	LocationCandidates.WithLabelValues(source, outcome).Inc()
}

// RecordStatusTransition records a channel status change.
func RecordStatusTransition(from, to string) {
	ChannelStatusTransitions.WithLabelValues(from, to).Inc()
}

// RecordPushMessage records a message received on a push transport.
func RecordPushMessage(transport string, forwarded bool) {
	outcome := "dropped"
	if forwarded {
		outcome = "forwarded"
	}
	PushMessages.WithLabelValues(transport, outcome).Inc()
}

// RecordPushStateChange moves one subscriber between push state gauges.
// An empty from or to means the subscriber is entering or leaving tracking.
func RecordPushStateChange(from, to string) {
	if from != "" {
		PushSubscribersByState.WithLabelValues(from).Dec()
	}
	if to != "" {
		PushSubscribersByState.WithLabelValues(to).Inc()
	}
}

// RecordSessionEvent records a tracking session lifecycle event and keeps the
// active gauge in step with opens and closes.
func RecordSessionEvent(event string) {
	TrackingSessionsTotal.WithLabelValues(event).Inc()
	switch event {
	case "opened":
		TrackingSessionsActive.Inc()
	case "closed", "expired":
		TrackingSessionsActive.Dec()
	}
}

// TrackWSConnection increments or decrements the active viewer stream gauge
func TrackWSConnection(inc bool) {
	if inc {
		WSConnections.Inc()
	} else {
		WSConnections.Dec()
	}
}

// SetAppInfo publishes build information.
func SetAppInfo(version, goVersion string) {
	AppInfo.WithLabelValues(version, goVersion).Set(1)
}

// StatusCodeLabel formats an HTTP status code as a metric label.
func StatusCodeLabel(code int) string {
	return strconv.Itoa(code)
}
