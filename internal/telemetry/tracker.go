// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
tracker.go - Tracking Session Manager

The Tracker opens, looks up and tears down tracking sessions. Opening a
session acquires a credential (never retried here), then starts the push
subscriber and poller against a fresh Reconciler. Sessions end when the
viewer closes them, when their credential expires, or on shutdown.
*/

package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/fleettrack/internal/config"
	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/metrics"
)

// TrackerConfig holds session manager settings.
type TrackerConfig struct {
	MaxSessions       int
	CredentialTimeout time.Duration
	StatusTick        time.Duration
	Poll              PollerConfig
	Push              PushSubscriberConfig
}

// TrackerConfigFrom builds a TrackerConfig from application configuration.
func TrackerConfigFrom(cfg *config.Config) TrackerConfig {
	return TrackerConfig{
		MaxSessions:       cfg.Tracking.MaxSessions,
		CredentialTimeout: cfg.Backend.Timeout,
		StatusTick:        cfg.Tracking.StatusTick,
		Poll: PollerConfig{
			Interval:       cfg.Provider.PollInterval,
			RequestTimeout: cfg.Provider.RequestTimeout,
		},
		Push: PushSubscriberConfig{
			Backoff: cfg.Provider.PushBackoff,
		},
	}
}

// Tracker manages tracking sessions.
type Tracker struct {
	issuer    CredentialIssuer
	fetcher   LatestFetcher
	transport PushTransport
	config    TrackerConfig
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewTracker creates a session manager. transport may be nil, in which case
// sessions run on polling alone.
func NewTracker(issuer CredentialIssuer, fetcher LatestFetcher, transport PushTransport, config TrackerConfig) *Tracker {
	return &Tracker{
		issuer:    issuer,
		fetcher:   fetcher,
		transport: transport,
		config:    config,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Open acquires a credential for vehicleID on behalf of bearer and starts
// tracking. Credential errors (ErrUnauthorized, ErrNotFound, ErrUpstream) are
// returned as-is.
func (t *Tracker) Open(ctx context.Context, vehicleID, bearer string) (*Session, error) {
	if err := t.checkCapacity(); err != nil {
		return nil, err
	}

	if t.config.CredentialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.CredentialTimeout)
		defer cancel()
	}

	grant, err := t.issuer.Acquire(ctx, vehicleID, bearer)
	if err != nil {
		return nil, err
	}
	if grant.Credential.Expired(t.now()) {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, ErrCredentialExpired)
	}

	session := newSession(uuid.NewString(), vehicleID, bearer, grant, t.fetcher, t.transport, t.config, t.now)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTrackerClosed
	}
	if t.config.MaxSessions > 0 && len(t.sessions) >= t.config.MaxSessions {
		t.mu.Unlock()
		metrics.RecordSessionEvent("rejected")
		return nil, ErrTooManySessions
	}
	t.sessions[session.ID] = session
	t.mu.Unlock()

	session.start(grant.Initial)
	metrics.RecordSessionEvent("opened")

	logging.Ctx(ctx).Info().
		Str("session_id", session.ID).
		Str("vehicle_id", vehicleID).
		Str("device", grant.Credential.Handle()).
		Bool("push", t.transport != nil).
		Msg("Tracking session opened")

	return session, nil
}

func (t *Tracker) checkCapacity() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrTrackerClosed
	}
	if t.config.MaxSessions > 0 && len(t.sessions) >= t.config.MaxSessions {
		metrics.RecordSessionEvent("rejected")
		return ErrTooManySessions
	}
	return nil
}

// Get returns an open session. A session past its credential expiry is
// reported as not found even before the reaper removes it.
func (t *Tracker) Get(id string) (*Session, error) {
	t.mu.RLock()
	session, ok := t.sessions[id]
	t.mu.RUnlock()
	if !ok || session.Expired(t.now()) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Close tears down one session.
func (t *Tracker) Close(id string) error {
	session, err := t.remove(id)
	if err != nil {
		return err
	}
	if session.close() {
		metrics.RecordSessionEvent("closed")
		logging.Info().Str("session_id", id).Str("vehicle_id", session.VehicleID).Msg("Tracking session closed")
	}
	return nil
}

func (t *Tracker) remove(id string) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(t.sessions, id)
	return session, nil
}

// ReapExpired tears down every session whose credential has expired and
// returns how many were removed.
func (t *Tracker) ReapExpired() int {
	now := t.now()

	t.mu.Lock()
	var expired []*Session
	for id, session := range t.sessions {
		if session.Expired(now) {
			expired = append(expired, session)
			delete(t.sessions, id)
		}
	}
	t.mu.Unlock()

	for _, session := range expired {
		if session.close() {
			metrics.RecordSessionEvent("expired")
			logging.Info().
				Str("session_id", session.ID).
				Str("vehicle_id", session.VehicleID).
				Time("expired_at", session.ExpiresAt()).
				Msg("Tracking session expired")
		}
	}
	return len(expired)
}

// Len returns the number of open sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Closed reports whether Shutdown has been called.
func (t *Tracker) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// MaxSessions returns the session cap, zero meaning unlimited.
func (t *Tracker) MaxSessions() int {
	return t.config.MaxSessions
}

// Shutdown tears down every session and refuses new ones.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	sessions := make([]*Session, 0, len(t.sessions))
	for id, session := range t.sessions {
		sessions = append(sessions, session)
		delete(t.sessions, id)
	}
	t.mu.Unlock()

	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if s.close() {
				metrics.RecordSessionEvent("closed")
			}
		}(session)
	}
	wg.Wait()

	logging.Info().Int("sessions", len(sessions)).Msg("Tracker shut down")
}
