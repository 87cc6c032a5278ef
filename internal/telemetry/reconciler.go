// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
reconciler.go - Location Reconciler

The Reconciler is the only writer of a session's TrackedVehicleState. Push and
poll producers submit candidates and channel status signals as messages; one
owner goroutine applies them in arrival order.

Update policy is last-writer-wins with deduplication: a candidate replaces the
current position unless latitude, longitude and timestamp are all identical.
Neither source is preferred over the other.

Status precedence:

	Error        push down and poll failing, both for longer than one poll interval
	Degraded     push down for longer than one poll interval, latest poll succeeded
	Live         a push or poll sample has been received
	Reconnecting push down
	Connecting   started
	Idle         not started

Without a push channel, Error only requires the poll to be failing for longer
than one interval.
*/

package telemetry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/metrics"
	"github.com/tomtom215/fleettrack/internal/models"
)

// reconcilerInbox is the message buffer between producers and the owner.
const reconcilerInbox = 64

// ReconcilerConfig configures one Reconciler.
type ReconcilerConfig struct {
	VehicleID string

	// PollInterval is the staleness threshold for Degraded and Error.
	PollInterval time.Duration

	// StatusTick re-derives status without new input so time-based
	// transitions reach watchers.
	StatusTick time.Duration

	// PushEnabled is false when the session runs on polling alone.
	PushEnabled bool

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

type reconcilerMsg struct {
	candidate *models.LocationSample
	source    models.Source
	link      models.LinkState
	ack       chan struct{}
}

// Reconciler owns TrackedVehicleState for one session.
type Reconciler struct {
	config ReconcilerConfig
	now    func() time.Time
	log    zerolog.Logger

	inbox     chan reconcilerMsg
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Published snapshot; the owner goroutine writes it, anyone reads it.
	mu       sync.RWMutex
	snapshot models.TrackedVehicleState
	watchers map[int]chan models.TrackedVehicleState
	nextID   int
	launched bool
	closed   bool

	// Owner-goroutine state.
	state            models.TrackedVehicleState
	started          bool
	heard            bool
	pushLink         models.LinkState
	pushDownSince    time.Time
	pollOK           bool
	pollFailingSince time.Time
}

// Ensure Reconciler implements Sink
var _ Sink = (*Reconciler)(nil)

// NewReconciler creates an Idle reconciler.
func NewReconciler(config ReconcilerConfig) *Reconciler {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	if config.StatusTick <= 0 {
		config.StatusTick = time.Second
	}
	initial := models.TrackedVehicleState{
		VehicleID:     config.VehicleID,
		ChannelStatus: models.StatusIdle,
	}
	return &Reconciler{
		config:   config,
		now:      now,
		log:      logging.WithComponent("reconciler").With().Str("vehicle_id", config.VehicleID).Logger(),
		inbox:    make(chan reconcilerMsg, reconcilerInbox),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		snapshot: initial,
		state:    initial,
		watchers: make(map[int]chan models.TrackedVehicleState),
	}
}

// Start launches the owner goroutine and moves to Connecting. Starting a
// closed reconciler does nothing.
func (r *Reconciler) Start() {
	r.mu.Lock()
	if r.closed || r.launched {
		r.mu.Unlock()
		return
	}
	r.launched = true
	r.mu.Unlock()

	go r.loop()
}

// OnCandidate submits a location candidate. A no-op after Close.
func (r *Reconciler) OnCandidate(sample models.LocationSample, source models.Source) {
	s := sample
	r.send(reconcilerMsg{candidate: &s, source: source})
}

// OnChannelStatus submits a channel status signal. A no-op after Close.
func (r *Reconciler) OnChannelStatus(source models.Source, state models.LinkState) {
	r.send(reconcilerMsg{source: source, link: state})
}

// Flush blocks until every message submitted before the call has been
// applied. It returns at once when the reconciler is closed.
func (r *Reconciler) Flush() {
	r.mu.RLock()
	launched := r.launched
	r.mu.RUnlock()
	if !launched {
		return
	}

	ack := make(chan struct{})
	if !r.send(reconcilerMsg{ack: ack}) {
		return
	}
	select {
	case <-ack:
	case <-r.done:
	}
}

func (r *Reconciler) send(msg reconcilerMsg) bool {
	select {
	case <-r.closing:
		return false
	default:
	}
	select {
	case r.inbox <- msg:
		return true
	case <-r.closing:
		return false
	}
}

// State returns a copy of the current state. After Close it returns the final snapshot.
func (r *Reconciler) State() models.TrackedVehicleState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyState(r.snapshot)
}

// Watch returns a channel that always holds the latest state. Slow readers
// skip intermediate states. The channel is closed by cancel or by Close.
func (r *Reconciler) Watch() (<-chan models.TrackedVehicleState, func()) {
	ch := make(chan models.TrackedVehicleState, 1)

	r.mu.Lock()
	ch <- copyState(r.snapshot)
	if r.closed {
		close(ch)
		r.mu.Unlock()
		return ch, func() {}
	}
	id := r.nextID
	r.nextID++
	r.watchers[id] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if w, ok := r.watchers[id]; ok {
			delete(r.watchers, id)
			close(w)
		}
	}
	return ch, cancel
}

// Close stops the owner goroutine and waits for it. Messages still queued
// are discarded and every later entry point call is a no-op.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)

		r.mu.Lock()
		r.closed = true
		launched := r.launched
		r.mu.Unlock()

		if launched {
			<-r.done
		}

		r.mu.Lock()
		for id, w := range r.watchers {
			delete(r.watchers, id)
			close(w)
		}
		r.mu.Unlock()
	})
}

// loop is the owner goroutine.
func (r *Reconciler) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.config.StatusTick)
	defer ticker.Stop()

	r.started = true
	r.publish()

	for {
		select {
		case <-r.closing:
			return
		case msg := <-r.inbox:
			r.apply(msg)
			r.publish()
			if msg.ack != nil {
				close(msg.ack)
			}
		case <-ticker.C:
			r.publish()
		}
	}
}

func (r *Reconciler) apply(msg reconcilerMsg) {
	switch {
	case msg.ack != nil:
	case msg.candidate != nil:
		r.applyCandidate(*msg.candidate, msg.source)
	default:
		r.applyLink(msg.source, msg.link)
	}
}

func (r *Reconciler) applyCandidate(sample models.LocationSample, source models.Source) {
	if !sample.Valid() {
		metrics.RecordCandidate(string(source), "invalid")
		return
	}

	// Set before the duplicate check: a channel repeating the seeded or
	// current fix still proves the feed is live.
	if source != models.SourceSeed {
		r.heard = true
	}

	if r.state.CurrentPosition.SameFix(&sample) {
		metrics.RecordCandidate(string(source), "duplicate")
		return
	}

	metrics.RecordCandidate(string(source), "accepted")
	r.state.CurrentPosition = sample.Clone()
	r.state.LastSource = source
	r.state.UpdatedAt = r.now().UTC()
}

func (r *Reconciler) applyLink(source models.Source, link models.LinkState) {
	now := r.now()
	switch source {
	case models.SourcePush:
		if link == models.LinkDown && r.pushLink != models.LinkDown {
			r.pushDownSince = now
		}
		r.pushLink = link

	case models.SourcePoll:
		switch link {
		case models.LinkUp:
			r.pollOK = true
			r.pollFailingSince = time.Time{}
		case models.LinkDown:
			r.pollOK = false
			if r.pollFailingSince.IsZero() {
				r.pollFailingSince = now
			}
		}
	}
}

// deriveStatus applies the status precedence at now.
func (r *Reconciler) deriveStatus(now time.Time) models.ChannelStatus {
	if !r.started {
		return models.StatusIdle
	}

	interval := r.config.PollInterval
	pushDown := r.config.PushEnabled && r.pushLink == models.LinkDown
	pushStale := pushDown && now.Sub(r.pushDownSince) > interval
	pollStale := !r.pollFailingSince.IsZero() && now.Sub(r.pollFailingSince) > interval

	switch {
	case pollStale && (pushStale || !r.config.PushEnabled):
		return models.StatusError
	case pushStale && r.pollOK:
		return models.StatusDegraded
	case r.heard:
		return models.StatusLive
	case pushDown:
		return models.StatusReconnecting
	default:
		return models.StatusConnecting
	}
}

// publish derives status, stores the snapshot and notifies watchers when
// anything visible changed.
func (r *Reconciler) publish() {
	prev := r.state.ChannelStatus
	r.state.ChannelStatus = r.deriveStatus(r.now())
	if prev != r.state.ChannelStatus {
		metrics.RecordStatusTransition(string(prev), string(r.state.ChannelStatus))
		r.log.Debug().
			Str("from", string(prev)).
			Str("to", string(r.state.ChannelStatus)).
			Msg("Tracking status change")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if statesEqual(r.snapshot, r.state) {
		return
	}
	r.snapshot = copyState(r.state)

	for _, w := range r.watchers {
		// Drop the stale value so the channel always holds the latest.
		select {
		case <-w:
		default:
		}
		w <- copyState(r.snapshot)
	}
}

func copyState(s models.TrackedVehicleState) models.TrackedVehicleState {
	s.CurrentPosition = s.CurrentPosition.Clone()
	return s
}

func statesEqual(a, b models.TrackedVehicleState) bool {
	if a.ChannelStatus != b.ChannelStatus || a.LastSource != b.LastSource || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}
	if (a.CurrentPosition == nil) != (b.CurrentPosition == nil) {
		return false
	}
	if a.CurrentPosition == nil {
		return true
	}
	pa, pb := a.CurrentPosition, b.CurrentPosition
	if !pa.SameFix(pb) {
		return false
	}
	switch {
	case pa.Speed == nil && pb.Speed == nil:
		return true
	case pa.Speed == nil || pb.Speed == nil:
		return false
	default:
		return *pa.Speed == *pb.Speed
	}
}
