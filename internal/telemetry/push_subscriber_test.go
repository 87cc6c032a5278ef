// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/fleettrack/internal/config"
	"github.com/tomtom215/fleettrack/internal/models"
)

func TestPushSubscriber_SubscribesAndForwards(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	sink := &recordingSink{}
	sub := NewPushSubscriber(transport, testCredential(), PushSubscriberConfig{Backoff: 10 * time.Millisecond}, sink)

	if sub.State() != PushDisconnected {
		t.Fatalf("initial state = %s, want disconnected", sub.State())
	}
	_ = sub.Start(context.Background())
	defer sub.Stop()

	conn := transport.next(t)
	waitFor(t, 2*time.Second, "subscribed", func() bool { return sub.State() == PushSubscribed })

	conn.mu.Lock()
	topic := conn.topic
	conn.mu.Unlock()
	if topic != "42" {
		t.Errorf("subscribed handle = %q, want 42", topic)
	}
	if sink.lastLink(models.SourcePush) != models.LinkUp {
		t.Errorf("push link = %q, want up", sink.lastLink(models.SourcePush))
	}

	conn.msgs <- []byte(`{"latitude":10.0,"longitude":106.0}`)
	conn.msgs <- []byte(`{"battery":"low"}`)
	conn.msgs <- []byte(`{"lat":11,"lng":107}`)

	waitFor(t, 2*time.Second, "two candidates", func() bool { return sink.candidateCount() == 2 })

	sink.mu.Lock()
	first := sink.candidates[0]
	sink.mu.Unlock()
	if first.source != models.SourcePush {
		t.Errorf("candidate source = %s, want push", first.source)
	}
	checkFloatEqual(t, "latitude", first.sample.Latitude, 10)
	if sub.State() != PushSubscribed {
		t.Errorf("invalid message must not change state, got %s", sub.State())
	}
}

func TestPushSubscriber_ReconnectsAfterDrop(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	sink := &recordingSink{}
	sub := NewPushSubscriber(transport, testCredential(), PushSubscriberConfig{Backoff: 20 * time.Millisecond}, sink)
	_ = sub.Start(context.Background())
	defer sub.Stop()

	first := transport.next(t)
	waitFor(t, 2*time.Second, "subscribed", func() bool { return sub.State() == PushSubscribed })

	first.drop()
	waitFor(t, 2*time.Second, "push down", func() bool { return sink.countLinks(models.SourcePush, models.LinkDown) == 1 })

	second := transport.next(t)
	waitFor(t, 2*time.Second, "resubscribed", func() bool { return sub.State() == PushSubscribed })

	second.mu.Lock()
	topic := second.topic
	second.mu.Unlock()
	if topic != "42" {
		t.Errorf("resubscribed handle = %q, want same topic intent", topic)
	}
	if transport.dialCount() != 2 {
		t.Errorf("dials = %d, want 2", transport.dialCount())
	}
}

func TestPushSubscriber_RetriesFailedDial(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.dialErrs = []error{errors.New("refused"), errors.New("refused")}
	sink := &recordingSink{}
	sub := NewPushSubscriber(transport, testCredential(), PushSubscriberConfig{Backoff: 10 * time.Millisecond}, sink)
	_ = sub.Start(context.Background())
	defer sub.Stop()

	transport.next(t)
	waitFor(t, 2*time.Second, "subscribed after retries", func() bool { return sub.State() == PushSubscribed })
	if transport.dialCount() != 3 {
		t.Errorf("dials = %d, want 3", transport.dialCount())
	}
	if got := sink.countLinks(models.SourcePush, models.LinkDown); got != 2 {
		t.Errorf("push down signals = %d, want 2", got)
	}
}

func TestPushSubscriber_StopIsTerminal(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	sink := &recordingSink{}
	sub := NewPushSubscriber(transport, testCredential(), PushSubscriberConfig{Backoff: 10 * time.Millisecond}, sink)
	_ = sub.Start(context.Background())

	conn := transport.next(t)
	waitFor(t, 2*time.Second, "subscribed", func() bool { return sub.State() == PushSubscribed })

	sub.Stop()
	if sub.State() != PushDisconnected {
		t.Errorf("state after stop = %s, want disconnected", sub.State())
	}
	if !conn.isClosed() {
		t.Error("transport connection should be released on stop")
	}
	if sink.lastLink(models.SourcePush) != models.LinkClosed {
		t.Errorf("last push link = %q, want closed", sink.lastLink(models.SourcePush))
	}

	// Restart after stop is ignored.
	_ = sub.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	if transport.dialCount() != 1 {
		t.Errorf("dials after restart attempt = %d, want 1", transport.dialCount())
	}
	sub.Stop()
}

func TestPushSubscriber_StopDuringBackoff(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.dialErrs = []error{errors.New("refused")}
	sub := NewPushSubscriber(transport, testCredential(), PushSubscriberConfig{Backoff: time.Hour}, &recordingSink{})
	_ = sub.Start(context.Background())

	waitFor(t, 2*time.Second, "reconnecting", func() bool { return sub.State() == PushReconnecting })

	done := make(chan struct{})
	go func() {
		sub.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on backoff")
	}
}

func TestNewPushTransport(t *testing.T) {
	t.Parallel()

	ws := NewPushTransport(config.ProviderConfig{PushTransport: config.PushTransportWebSocket, PushURL: "ws://localhost/stream"})
	if ws == nil || ws.Name() != "websocket" {
		t.Errorf("websocket transport = %v", ws)
	}
	nt := NewPushTransport(config.ProviderConfig{PushTransport: config.PushTransportNATS, PushURL: "nats://localhost:4222"})
	if nt == nil || nt.Name() != "nats" {
		t.Errorf("nats transport = %v", nt)
	}
	if none := NewPushTransport(config.ProviderConfig{PushTransport: config.PushTransportNone}); none != nil {
		t.Errorf("none transport = %v, want nil", none)
	}
}
