// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
Package services provides suture.Service wrappers for Fleettrack components.

Each wrapper turns a component lifecycle into suture's context-aware
Serve(ctx) error:

  - HTTPServerService: ListenAndServe plus graceful Shutdown on cancel.
  - ReaperService: periodic expired-session teardown on the tracker.

Wrappers return ctx.Err() on shutdown and a wrapped error on failure so
the supervisor can decide whether to restart.
*/
package services
