// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/tomtom215/fleettrack/internal/models"
)

// startTestNATS runs an embedded NATS server that requires token auth.
func startTestNATS(t *testing.T, token string) *server.Server {
	t.Helper()

	opts := &server.Options{
		ServerName:    "fleettrack-test",
		Host:          "127.0.0.1",
		Port:          server.RANDOM_PORT,
		Authorization: token,
		NoLog:         true,
		NoSigs:        true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("create NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		t.Fatal("NATS server not ready within timeout")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func publishTo(t *testing.T, url, token, subject string, data []byte) {
	t.Helper()
	nc, err := nats.Connect(url, nats.Token(token))
	if err != nil {
		t.Fatalf("publisher connect: %v", err)
	}
	defer nc.Close()
	if err := nc.Publish(subject, data); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestNATSTransport_SubscribeAndReceive(t *testing.T) {
	t.Parallel()

	ns := startTestNATS(t, "abc")
	transport := NewNATSTransport(NATSTransportConfig{URL: ns.ClientURL(), ConnectWait: 2 * time.Second})

	conn, err := transport.Connect(context.Background(), testCredential())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer conn.Close()

	if err := conn.Subscribe("42"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	publishTo(t, ns.ClientURL(), "abc", NATSSubject("42"), []byte(`{"lat":10,"lng":106}`))
	publishTo(t, ns.ClientURL(), "abc", NATSSubject("99"), []byte(`{"lat":0,"lng":0}`))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := conn.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(msg) != `{"lat":10,"lng":106}` {
		t.Errorf("Receive() = %s", msg)
	}
}

func TestNATSTransport_BadToken(t *testing.T) {
	t.Parallel()

	ns := startTestNATS(t, "expected")
	transport := NewNATSTransport(NATSTransportConfig{URL: ns.ClientURL(), ConnectWait: 2 * time.Second})

	if _, err := transport.Connect(context.Background(), testCredential()); err == nil {
		t.Fatal("expected authorization failure with the wrong token")
	}
}

func TestNATSTransport_ServerShutdownEndsReceive(t *testing.T) {
	t.Parallel()

	ns := startTestNATS(t, "abc")
	transport := NewNATSTransport(NATSTransportConfig{URL: ns.ClientURL(), ConnectWait: 2 * time.Second})

	conn, err := transport.Connect(context.Background(), testCredential())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer conn.Close()
	if err := conn.Subscribe("42"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ns.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Receive(ctx); err == nil || ctx.Err() != nil {
		t.Fatalf("expected connection loss before timeout, got err=%v ctx=%v", err, ctx.Err())
	}
}

func TestNATSTransport_WithSubscriber(t *testing.T) {
	t.Parallel()

	ns := startTestNATS(t, "abc")
	transport := NewNATSTransport(NATSTransportConfig{URL: ns.ClientURL(), ConnectWait: 2 * time.Second})
	sink := &recordingSink{}
	sub := NewPushSubscriber(transport, testCredential(), PushSubscriberConfig{Backoff: 20 * time.Millisecond}, sink)
	_ = sub.Start(context.Background())
	defer sub.Stop()

	waitFor(t, 5*time.Second, "subscribed", func() bool { return sub.State() == PushSubscribed })
	publishTo(t, ns.ClientURL(), "abc", NATSSubject("42"), []byte(`{"location.lat":1.5,"location.lng":2.5}`))

	waitFor(t, 5*time.Second, "candidate", func() bool { return sink.candidateCount() == 1 })
	if sink.lastLink(models.SourcePush) != models.LinkUp {
		t.Errorf("push link = %q, want up", sink.lastLink(models.SourcePush))
	}
}
