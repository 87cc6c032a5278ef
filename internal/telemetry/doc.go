// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
Package telemetry implements real-time vehicle location tracking.

Given a vehicle identifier and the caller's session bearer, a Tracker obtains a
short-lived provider credential from the fleet backend, then runs two
independent producers against the provider for the life of the session:

  - PushSubscriber: a WebSocket or NATS subscription to the device's event topic
  - Poller: a fixed-cadence fetch of the device's latest telemetry

Both feed one Reconciler, the single owner of the session's
TrackedVehicleState, through message passing. The Reconciler merges them with
last-writer-wins plus deduplication and derives the channel status shown to
the viewer.

Every payload, from either producer or from the credential response, goes
through Normalize, which understands the provider's several location
encodings and never returns a partial sample.

# Error Handling

Credential failures are returned to the caller as ErrUnauthorized,
ErrNotFound or ErrUpstream and are never retried. Poll failures (ErrFetch)
and unusable payloads (ErrInvalidPayload) are recovered locally. Push
transport failures only ever change the channel status.

# Thread Safety

All exported types are safe for concurrent use. Tearing down a session stops
both producers before closing its Reconciler; results that arrive afterwards
are discarded.
*/
package telemetry
