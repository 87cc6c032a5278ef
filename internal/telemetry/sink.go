// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package telemetry

import "github.com/tomtom215/fleettrack/internal/models"

// Sink receives candidates and channel status signals from producers.
// Producers never touch tracked state directly; the Reconciler implements Sink.
type Sink interface {
	OnCandidate(sample models.LocationSample, source models.Source)
	OnChannelStatus(source models.Source, state models.LinkState)
}
