// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered with the default registry through promauto and
are exposed at /metrics in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Tracking sessions:
  - tracking_sessions_active: open sessions (gauge)
  - tracking_sessions_total{event}: opened, closed, expired, rejected (counter)

Credential broker:
  - tracking_credential_requests_total{outcome}
  - tracking_credential_request_duration_seconds

Reconciler:
  - tracking_location_candidates_total{source,outcome}: accepted, duplicate, invalid
  - tracking_channel_status_transitions_total{from,to}

Polling and push:
  - tracking_poll_requests_total{outcome}
  - tracking_poll_request_duration_seconds
  - tracking_push_messages_total{transport,outcome}
  - tracking_push_reconnects_total{transport}
  - tracking_push_subscribers{state}

Circuit breaker:
  - circuit_breaker_state{name}: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total{name,result}
  - circuit_breaker_consecutive_failures{name}
  - circuit_breaker_state_transitions_total{name,from,to}

HTTP API:
  - api_requests_total{method,endpoint,status_code}
  - api_request_duration_seconds{method,endpoint}
  - api_rate_limit_hits_total{endpoint}
  - websocket_connections_active
  - websocket_messages_sent_total

# Example Alerts

	groups:
	  - name: fleettrack
	    rules:
	      - alert: CircuitBreakerOpen
	        expr: circuit_breaker_state > 0
	        for: 1m
	      - alert: TrackingErrors
	        expr: increase(tracking_channel_status_transitions_total{to="Error"}[5m]) > 10
*/
package metrics
