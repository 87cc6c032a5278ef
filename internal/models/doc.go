// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
Package models defines the data structures shared by the tracking pipeline.

  - TrackingCredential: short-lived provider token plus device handle.
  - LocationSample: canonical position produced by the normalizer.
  - TrackedVehicleState: the single authoritative position per session,
    owned by the reconciler.
  - TrackingView: the presentation read model streamed to the map widget,
    with the "waiting for signal" affordance and status line.

Samples carry optional speed and timestamp as pointers so that "absent" is
distinct from zero. Use Clone before handing a sample to another goroutine.
*/
package models
