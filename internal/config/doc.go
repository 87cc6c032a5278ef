// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
Package config loads Fleettrack configuration with Koanf v2.

Sources are layered, highest priority last:

 1. Defaults: defaultConfig()
 2. Config file: optional YAML (CONFIG_PATH, config.yaml, /etc/fleettrack/config.yaml)
 3. Environment variables: explicit mapping in envTransformFunc

Sections:

  - backend: operations API that issues tracking credentials (BACKEND_URL)
  - provider: telemetry provider endpoints, transport and cadence (PROVIDER_URL,
    PROVIDER_PUSH_TRANSPORT, PROVIDER_PUSH_URL, PROVIDER_POLL_INTERVAL, ...)
  - tracking: session limits and reaper cadence
  - server: HTTP listener, CORS and rate limiting
  - security: name of the auth cookie relayed as bearer
  - logging: zerolog level and format

Example:

	export BACKEND_URL=https://ops.example.com/api
	export PROVIDER_URL=https://telemetry.example.com
	export PROVIDER_PUSH_TRANSPORT=websocket
	export PROVIDER_PUSH_URL=wss://telemetry.example.com/stream
	export PROVIDER_POLL_INTERVAL=5s
	./fleettrack
*/
package config
