// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package services

import (
	"context"
	"time"

	"github.com/tomtom215/fleettrack/internal/logging"
)

// SessionReaper removes sessions whose credentials have expired.
// Satisfied by *telemetry.Tracker.
type SessionReaper interface {
	ReapExpired() int
}

// ReaperService calls ReapExpired on a fixed interval so expired sessions
// are torn down even when nobody is looking at them.
type ReaperService struct {
	reaper   SessionReaper
	interval time.Duration
}

// NewReaperService creates a reaper. A non-positive interval means 30s.
func NewReaperService(reaper SessionReaper, interval time.Duration) *ReaperService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ReaperService{reaper: reaper, interval: interval}
}

// Serve implements suture.Service.
func (r *ReaperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := r.reaper.ReapExpired(); n > 0 {
				logging.Debug().Int("reaped", n).Msg("Reaped expired tracking sessions")
			}
		}
	}
}

func (r *ReaperService) String() string {
	return "session-reaper"
}
