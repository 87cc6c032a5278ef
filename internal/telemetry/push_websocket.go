// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
push_websocket.go - WebSocket Push Transport

Connects to the provider's event stream over WebSocket. The provider token is
sent as a bearer header on the handshake, and a subscribe frame selects the
device topic:

	{"action":"subscribe","topic":"devices/<handle>/events"}
*/

package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/models"
)

// Ensure WebSocketTransport implements PushTransport
var _ PushTransport = (*WebSocketTransport)(nil)

// WebSocketTransportConfig holds WebSocket transport settings.
type WebSocketTransportConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
}

// WebSocketTransport dials the provider's WebSocket event stream.
type WebSocketTransport struct {
	config WebSocketTransportConfig
	dialer *websocket.Dialer
}

// wsSubscribeFrame is sent once per connection to select the device topic.
type wsSubscribeFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// NewWebSocketTransport creates a WebSocket transport. Zero durations fall
// back to 10s handshake, 30s ping and 60s read timeout.
func NewWebSocketTransport(config WebSocketTransportConfig) *WebSocketTransport {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 60 * time.Second
	}
	return &WebSocketTransport{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  config.HandshakeTimeout,
			EnableCompression: true,
		},
	}
}

// Name implements PushTransport.
func (t *WebSocketTransport) Name() string { return "websocket" }

// Connect implements PushTransport.
func (t *WebSocketTransport) Connect(ctx context.Context, cred models.TrackingCredential) (PushConn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.ProviderToken)

	conn, resp, err := t.dialer.DialContext(ctx, t.config.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("Failed to close handshake response body")
		}
	}

	wc := &wsConn{
		conn:         conn,
		readTimeout:  t.config.ReadTimeout,
		pingInterval: t.config.PingInterval,
		done:         make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wc.readTimeout))
	})

	wc.wg.Add(1)
	go wc.pingLoop()

	return wc, nil
}

// wsConn is one WebSocket connection. Only the subscriber goroutine reads
// and writes data frames; the ping loop uses control frames, which gorilla
// allows concurrently.
type wsConn struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	pingInterval time.Duration

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// WebSocketTopic returns the event topic for a device handle.
func WebSocketTopic(handle string) string {
	return "devices/" + handle + "/events"
}

func (c *wsConn) Subscribe(handle string) error {
	frame, err := json.Marshal(wsSubscribeFrame{Action: "subscribe", Topic: WebSocketTopic(handle)})
	if err != nil {
		return fmt.Errorf("encode subscribe frame: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send subscribe frame: %w", err)
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-c.done:
			return nil, errConnClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}

		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("%w: %w", errConnClosed, err)
			}
			return nil, fmt.Errorf("websocket read: %w", err)
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		return message, nil
	}
}

// pingLoop sends keep-alive pings until the connection is closed.
func (c *wsConn) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logging.Debug().Err(err).Msg("WebSocket keep-alive failed")
				// Unblocks the reader, which reports the drop.
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if werr := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		); werr != nil {
			logging.Debug().Err(werr).Msg("Failed to send close message")
		}
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}
