// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
Package main is the entry point for the Fleettrack server.

Fleettrack shows operators where a fleet vehicle is right now. For each
viewing session it obtains a short-lived telemetry credential from the
operations backend, then runs a push subscription and a fixed-interval
poll against the telemetry provider at the same time, reconciling both
into one authoritative position that is streamed to the map widget.

# Application Architecture

	RootSupervisor ("fleettrack")
	├── TelemetrySupervisor ("telemetry-layer")
	│   └── ReaperService (expired-session teardown)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (chi router)

Component initialization order:

 1. Configuration: koanf v2 with defaults, config file, environment
 2. Logging: zerolog with JSON or console output
 3. Credential broker: backend tracking-token client
 4. Provider client: rate limited, behind a gobreaker circuit breaker
 5. Push transport: WebSocket or NATS, or none
 6. Tracker: tracking session manager
 7. HTTP router: tracking API, health, metrics
 8. Supervisor tree: suture v4

# Configuration

Priority: environment variables > config file (CONFIG_PATH) > defaults.

	BACKEND_URL=https://ops.example.com/api
	PROVIDER_URL=https://telematics.example.com
	PROVIDER_PUSH_TRANSPORT=websocket     # websocket, nats or none
	PROVIDER_PUSH_URL=wss://telematics.example.com/stream
	PROVIDER_POLL_INTERVAL=5s
	TRACKING_MAX_SESSIONS=200
	HTTP_PORT=8080
	CORS_ORIGINS=https://ops.example.com
	SESSION_COOKIE=access_token
	LOG_LEVEL=info
	LOG_FORMAT=json

# Signal Handling

On SIGINT or SIGTERM the server stops accepting connections, drains
in-flight requests within the shutdown timeout, ends every viewer stream,
and tears down all tracking sessions.
*/
package main
