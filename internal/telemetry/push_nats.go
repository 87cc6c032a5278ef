// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/models"
)

// Ensure NATSTransport implements PushTransport
var _ PushTransport = (*NATSTransport)(nil)

// natsPending is the per-connection message buffer.
const natsPending = 64

// NATSTransportConfig holds NATS transport settings.
type NATSTransportConfig struct {
	URL         string
	ConnectWait time.Duration
}

// NATSTransport subscribes to device events on a provider NATS cluster.
// The client library's own reconnect is disabled; PushSubscriber owns the
// reconnect policy.
type NATSTransport struct {
	config NATSTransportConfig
}

// NewNATSTransport creates a NATS transport.
func NewNATSTransport(config NATSTransportConfig) *NATSTransport {
	if config.ConnectWait <= 0 {
		config.ConnectWait = 10 * time.Second
	}
	return &NATSTransport{config: config}
}

// Name implements PushTransport.
func (t *NATSTransport) Name() string { return "nats" }

// NATSSubject returns the event subject for a device handle.
func NATSSubject(handle string) string {
	return "devices." + handle + ".events"
}

// Connect implements PushTransport. The provider token is the connection identity.
func (t *NATSTransport) Connect(ctx context.Context, cred models.TrackingCredential) (PushConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nc := &natsConn{
		msgs:   make(chan *nats.Msg, natsPending),
		closed: make(chan struct{}),
	}

	conn, err := nats.Connect(t.config.URL,
		nats.Name("fleettrack-"+cred.Handle()),
		nats.Token(cred.ProviderToken),
		nats.Timeout(t.config.ConnectWait),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Debug().Err(err).Str("device", cred.Handle()).Msg("NATS push connection dropped")
			}
			nc.markClosed()
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			nc.markClosed()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	nc.conn = conn
	return nc, nil
}

// natsConn is one NATS connection with at most one device subscription.
type natsConn struct {
	conn *nats.Conn
	msgs chan *nats.Msg

	mu  sync.Mutex
	sub *nats.Subscription

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *natsConn) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *natsConn) Subscribe(handle string) error {
	sub, err := c.conn.ChanSubscribe(NATSSubject(handle), c.msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", NATSSubject(handle), err)
	}
	// Surface permission errors before reporting the subscription as live.
	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("flush subscription: %w", err)
	}
	if err := c.conn.LastError(); err != nil {
		return fmt.Errorf("subscribe %s: %w", NATSSubject(handle), err)
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	return nil
}

func (c *natsConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.msgs:
		return msg.Data, nil
	case <-c.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *natsConn) Close() error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		_ = sub.Unsubscribe()
	}
	if !c.conn.IsClosed() {
		c.conn.Close()
	}
	c.markClosed()
	return nil
}
