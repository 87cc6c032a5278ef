// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package telemetry

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/models"
)

// Session is one viewer's tracking of one vehicle: a credential, the two
// producers and the Reconciler they feed.
type Session struct {
	ID        string
	VehicleID string
	CreatedAt time.Time

	cred       models.TrackingCredential
	owner      [sha256.Size]byte
	reconciler *Reconciler
	poller     *Poller
	push       *PushSubscriber // nil when push is disabled

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}

	viewer atomic.Bool
}

func newSession(id, vehicleID, bearer string, grant *CredentialGrant, fetcher LatestFetcher, transport PushTransport, cfg TrackerConfig, now func() time.Time) *Session {
	s := &Session{
		ID:        id,
		VehicleID: vehicleID,
		CreatedAt: now().UTC(),
		cred:      grant.Credential,
		owner:     sha256.Sum256([]byte(bearer)),
		done:      make(chan struct{}),
	}

	s.reconciler = NewReconciler(ReconcilerConfig{
		VehicleID:    vehicleID,
		PollInterval: cfg.Poll.Interval,
		StatusTick:   cfg.StatusTick,
		PushEnabled:  transport != nil,
		Now:          now,
	})
	s.poller = NewPoller(fetcher, grant.Credential, cfg.Poll, s.reconciler)
	if transport != nil {
		s.push = NewPushSubscriber(transport, grant.Credential, cfg.Push, s.reconciler)
	}
	return s
}

// start runs the reconciler, primes it with the seed sample and starts both
// producers. Producers run independently from here until close.
func (s *Session) start(initial *models.LocationSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(logging.ContextWithSessionID(context.Background(), s.ID))
	s.cancel = cancel

	s.reconciler.Start()
	if initial != nil {
		s.reconciler.OnCandidate(*initial, models.SourceSeed)
	}
	if s.push != nil {
		_ = s.push.Start(ctx)
	}
	_ = s.poller.Start(ctx)
}

// close tears the session down: push transport, then poll timer, then the
// reconciler. Late results from either producer are discarded. Safe to call
// more than once; only the first call returns true.
func (s *Session) close() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.push != nil {
		s.push.Stop()
	}
	s.poller.Stop()
	s.reconciler.Close()
	close(s.done)

	logging.Debug().Str("session_id", s.ID).Str("vehicle_id", s.VehicleID).Msg("Tracking session closed")
	return true
}

// State returns the reconciled vehicle state.
func (s *Session) State() models.TrackedVehicleState {
	return s.reconciler.State()
}

// View returns the presentation read model for the session.
func (s *Session) View() models.TrackingView {
	return s.viewOf(s.reconciler.State())
}

func (s *Session) viewOf(state models.TrackedVehicleState) models.TrackingView {
	view := models.NewTrackingView(s.ID, state)
	view.ExpiresAt = s.cred.ExpiresAt
	view.Ended = s.Ended()
	return view
}

// Watch streams views until the session ends or cancel is called.
func (s *Session) Watch() (<-chan models.TrackingView, func()) {
	states, cancelStates := s.reconciler.Watch()
	views := make(chan models.TrackingView, 1)
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		defer close(views)
		for state := range states {
			select {
			case <-views:
			default:
			}
			select {
			case views <- s.viewOf(state):
			case <-stop:
				return
			}
		}
	}()

	return views, func() {
		once.Do(func() {
			close(stop)
			cancelStates()
		})
	}
}

// AttachViewer claims the session's single viewer slot.
func (s *Session) AttachViewer() (release func(), err error) {
	if !s.viewer.CompareAndSwap(false, true) {
		return nil, ErrViewerAttached
	}
	var once sync.Once
	return func() { once.Do(func() { s.viewer.Store(false) }) }, nil
}

// OwnedBy reports whether bearer is the caller credential that opened the
// session. Only a digest of the bearer is kept.
func (s *Session) OwnedBy(bearer string) bool {
	sum := sha256.Sum256([]byte(bearer))
	return subtle.ConstantTimeCompare(sum[:], s.owner[:]) == 1
}

// Credential returns the session's tracking credential.
func (s *Session) Credential() models.TrackingCredential {
	return s.cred
}

// ExpiresAt is the credential expiry, zero if unknown.
func (s *Session) ExpiresAt() time.Time {
	return s.cred.ExpiresAt
}

// Expired reports whether the credential has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return s.cred.Expired(now)
}

// Done is closed when the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Ended reports whether the session has been torn down.
func (s *Session) Ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
