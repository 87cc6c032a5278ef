// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package telemetry

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/fleettrack/internal/models"
)

// Test assertion helpers with "check" prefix.
// Using t.Helper() ensures error messages point to the calling line.

func checkFloatEqual(t *testing.T, fieldName string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: expected %v, got %v", fieldName, want, got)
	}
}

func checkFloatPtrEqual(t *testing.T, fieldName string, ptr *float64, want float64) {
	t.Helper()
	if ptr == nil {
		t.Errorf("%s should not be nil, expected %v", fieldName, want)
		return
	}
	checkFloatEqual(t, fieldName, *ptr, want)
}

func checkInt64PtrEqual(t *testing.T, fieldName string, ptr *int64, want int64) {
	t.Helper()
	if ptr == nil {
		t.Errorf("%s should not be nil, expected %d", fieldName, want)
		return
	}
	if *ptr != want {
		t.Errorf("%s: expected %d, got %d", fieldName, want, *ptr)
	}
}

func checkStatus(t *testing.T, got, want models.ChannelStatus) {
	t.Helper()
	if got != want {
		t.Errorf("channel status: expected %s, got %s", want, got)
	}
}

func checkErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("expected error %v, got %v", target, err)
	}
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func floatPtr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64     { return &v }

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type candidateRecord struct {
	sample models.LocationSample
	source models.Source
}

type linkRecord struct {
	source models.Source
	state  models.LinkState
}

// recordingSink records everything producers send.
type recordingSink struct {
	mu         sync.Mutex
	candidates []candidateRecord
	links      []linkRecord
}

func (s *recordingSink) OnCandidate(sample models.LocationSample, source models.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, candidateRecord{sample: sample, source: source})
}

func (s *recordingSink) OnChannelStatus(source models.Source, state models.LinkState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, linkRecord{source: source, state: state})
}

func (s *recordingSink) candidateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidates)
}

func (s *recordingSink) lastLink(source models.Source) models.LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.links) - 1; i >= 0; i-- {
		if s.links[i].source == source {
			return s.links[i].state
		}
	}
	return ""
}

func (s *recordingSink) countLinks(source models.Source, state models.LinkState) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.links {
		if l.source == source && l.state == state {
			n++
		}
	}
	return n
}

// fakeFetcher returns scripted results; the last result repeats.
type fakeFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	block   chan struct{} // when set, FetchLatest waits on it or ctx
}

type fetchResult struct {
	sample models.LocationSample
	err    error
}

func (f *fakeFetcher) FetchLatest(ctx context.Context, _ models.TrackingCredential) (models.LocationSample, error) {
	f.mu.Lock()
	f.calls++
	idx := f.calls - 1
	block := f.block
	var res fetchResult
	if len(f.results) > 0 {
		if idx >= len(f.results) {
			idx = len(f.results) - 1
		}
		res = f.results[idx]
	} else {
		res = fetchResult{err: ErrFetch}
	}
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return models.LocationSample{}, ctx.Err()
		}
	}
	return res.sample, res.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) setResults(results ...fetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = results
	f.calls = 0
}

// fakeIssuer is a CredentialIssuer with a fixed answer.
type fakeIssuer struct {
	mu    sync.Mutex
	grant *CredentialGrant
	err   error
	calls int
}

func (f *fakeIssuer) Acquire(_ context.Context, _, _ string) (*CredentialGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	g := *f.grant
	return &g, nil
}

// fakeTransport hands out fakeConns the test can drive.
type fakeTransport struct {
	mu        sync.Mutex
	dialErrs  []error
	dials     int
	conns     []*fakeConn
	connReady chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connReady: make(chan *fakeConn, 16)}
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Connect(ctx context.Context, _ models.TrackingCredential) (PushConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if len(f.dialErrs) > 0 {
		err := f.dialErrs[0]
		f.dialErrs = f.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	c := &fakeConn{msgs: make(chan []byte, 16), closed: make(chan struct{})}
	f.conns = append(f.conns, c)
	select {
	case f.connReady <- c:
	default:
	}
	return c, nil
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeTransport) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-f.connReady:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push connection")
		return nil
	}
}

type fakeConn struct {
	mu        sync.Mutex
	topic     string
	msgs      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *fakeConn) Subscribe(handle string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topic = handle
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// drop simulates a transport-level disconnect.
func (c *fakeConn) drop() { _ = c.Close() }

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func testCredential() models.TrackingCredential {
	return models.TrackingCredential{
		ProviderToken: "abc",
		DeviceID:      "42",
		ExpiresAt:     time.Now().Add(time.Hour),
	}
}
