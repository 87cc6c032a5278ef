// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
Package supervisor provides process supervision for Fleettrack using suture v4.

Long-running services are organized into two layers:

	RootSupervisor ("fleettrack")
	├── TelemetrySupervisor ("telemetry-layer")
	│   └── ReaperService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Tracking sessions themselves are not supervised services. Each session owns
its poller, push subscriber and reconciler goroutines and tears them down on
close; the tracker is shut down by main after the tree stops.

# Usage

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddTelemetryService(services.NewReaperService(tracker, cfg.Tracking.ReapInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)
	<-ctx.Done()
	<-errCh

# Failure Handling

suture counts failures with exponential decay. When the count exceeds
FailureThreshold, restarts wait FailureBackoff. A service returning nil is
not restarted; a service returning an error is.

Supervisor events are logged through sutureslog into the zerolog-backed
slog handler from the logging package.
*/
package supervisor
