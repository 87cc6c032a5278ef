// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
push_subscriber.go - Push Telemetry Subscriber

Maintains a subscription to one device's event topic on the provider's
publish/subscribe channel and forwards every usable message to the Reconciler.

State machine:

	Disconnected -> Connecting -> Subscribed -> {Subscribed, Reconnecting, Disconnected}

A dropped transport moves to Reconnecting and the handshake is retried after a
fixed backoff with the same topic. Transport failures are only ever reported
as status signals; they never end the session.
*/

package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/fleettrack/internal/config"
	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/metrics"
	"github.com/tomtom215/fleettrack/internal/models"
)

// PushState is the subscriber's connection state.
type PushState string

const (
	PushDisconnected PushState = "disconnected"
	PushConnecting   PushState = "connecting"
	PushSubscribed   PushState = "subscribed"
	PushReconnecting PushState = "reconnecting"
)

// PushTransport opens connections to the provider's push channel.
type PushTransport interface {
	// Name identifies the transport in logs and metrics.
	Name() string

	// Connect performs the handshake using the credential's provider token as
	// connection identity.
	Connect(ctx context.Context, cred models.TrackingCredential) (PushConn, error)
}

// PushConn is one live transport connection.
type PushConn interface {
	// Subscribe registers interest in the device's event topic.
	Subscribe(handle string) error

	// Receive blocks until the next message arrives. Any error means the
	// connection is gone and must be re-established.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// NewPushTransport builds the transport selected in configuration. It returns
// nil when push is disabled.
func NewPushTransport(cfg config.ProviderConfig) PushTransport {
	switch cfg.PushTransport {
	case config.PushTransportWebSocket:
		return NewWebSocketTransport(WebSocketTransportConfig{
			URL:              cfg.PushURL,
			HandshakeTimeout: cfg.RequestTimeout,
		})
	case config.PushTransportNATS:
		return NewNATSTransport(NATSTransportConfig{
			URL:         cfg.PushURL,
			ConnectWait: cfg.RequestTimeout,
		})
	default:
		return nil
	}
}

// PushSubscriberConfig holds reconnect settings.
type PushSubscriberConfig struct {
	Backoff time.Duration
}

// PushSubscriber drives one PushTransport for one credential.
type PushSubscriber struct {
	transport PushTransport
	cred      models.TrackingCredential
	config    PushSubscriberConfig
	sink      Sink

	mu       sync.Mutex
	state    PushState
	running  bool
	stopped  bool
	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPushSubscriber creates a subscriber in the Disconnected state.
func NewPushSubscriber(transport PushTransport, cred models.TrackingCredential, config PushSubscriberConfig, sink Sink) *PushSubscriber {
	return &PushSubscriber{
		transport: transport,
		cred:      cred,
		config:    config,
		sink:      sink,
		state:     PushDisconnected,
	}
}

// State returns the current connection state.
func (s *PushSubscriber) State() PushState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins connecting in the background. Starting a stopped subscriber is a no-op.
func (s *PushSubscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopChan = make(chan struct{})
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	metrics.RecordPushStateChange("", string(PushDisconnected))

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop closes the transport and moves to Disconnected. Stop is terminal.
func (s *PushSubscriber) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	wasRunning := s.running
	s.running = false
	if wasRunning {
		close(s.stopChan)
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if wasRunning {
		s.setState(PushDisconnected)
		metrics.RecordPushStateChange(string(PushDisconnected), "")
		s.sink.OnChannelStatus(models.SourcePush, models.LinkClosed)
	}
}

func (s *PushSubscriber) setState(next PushState) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev == next {
		return
	}
	metrics.RecordPushStateChange(string(prev), string(next))
	logging.Debug().
		Str("transport", s.transport.Name()).
		Str("device", s.cred.Handle()).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("Push subscriber state change")
}

// run owns the connect, receive and reconnect cycle.
func (s *PushSubscriber) run(ctx context.Context) {
	defer s.wg.Done()

	handle := s.cred.Handle()
	s.setState(PushConnecting)
	s.sink.OnChannelStatus(models.SourcePush, models.LinkConnecting)

	for {
		if err := s.session(ctx, handle); err != nil && ctx.Err() == nil {
			logging.Ctx(ctx).Warn().
				Err(err).
				Str("transport", s.transport.Name()).
				Str("device", handle).
				Dur("backoff", s.config.Backoff).
				Msg("Push channel lost, reconnecting")
		}
		if ctx.Err() != nil {
			return
		}

		s.setState(PushReconnecting)
		s.sink.OnChannelStatus(models.SourcePush, models.LinkDown)

		select {
		case <-time.After(s.config.Backoff):
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		}
		metrics.PushReconnects.WithLabelValues(s.transport.Name()).Inc()
	}
}

// session connects, subscribes and pumps messages until the connection drops.
func (s *PushSubscriber) session(ctx context.Context, handle string) error {
	conn, err := s.transport.Connect(ctx, s.cred)
	if err != nil {
		return err
	}
	// Closing the connection on teardown unblocks Receive.
	stopClose := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stopClose()
		_ = conn.Close()
	}()

	if err := conn.Subscribe(handle); err != nil {
		return err
	}

	s.setState(PushSubscribed)
	s.sink.OnChannelStatus(models.SourcePush, models.LinkUp)

	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.handleMessage(msg)
	}
}

func (s *PushSubscriber) handleMessage(msg []byte) {
	sample, ok := NormalizeBytes(msg)
	metrics.RecordPushMessage(s.transport.Name(), ok)
	if !ok {
		logging.Debug().
			Str("transport", s.transport.Name()).
			Str("device", s.cred.Handle()).
			Int("bytes", len(msg)).
			Msg("Dropping push message without usable location")
		return
	}
	s.sink.OnCandidate(sample, models.SourcePush)
}

// errConnClosed is returned by Receive once a connection has been closed.
var errConnClosed = errors.New("push connection closed")
