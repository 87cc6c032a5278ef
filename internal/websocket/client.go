// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/metrics"
	"github.com/tomtom215/fleettrack/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

var clientIDCounter atomic.Uint64

// ViewSource produces tracking views until the session ends. The channel is
// closed when the session is torn down; cancel stops delivery early.
type ViewSource interface {
	Watch() (<-chan models.TrackingView, func())
}

// Client streams one session's views to one viewer connection.
type Client struct {
	id     uint64
	conn   *websocket.Conn
	source ViewSource

	// pongs carries replies to application-level pings from the viewer.
	pongs chan struct{}

	gone     chan struct{}
	goneOnce sync.Once

	pingPeriod time.Duration
}

// NewClient creates a Client with a unique ID
func NewClient(conn *websocket.Conn, source ViewSource) *Client {
	return &Client{
		id:         clientIDCounter.Add(1),
		conn:       conn,
		source:     source,
		pongs:      make(chan struct{}, 1),
		gone:       make(chan struct{}),
		pingPeriod: pingPeriod,
	}
}

// ID returns the client's unique identifier
func (c *Client) ID() uint64 {
	return c.id
}

// Run streams views until the viewer disconnects, the session ends or ctx is
// cancelled. The connection is closed on return.
func (c *Client) Run(ctx context.Context) {
	metrics.TrackWSConnection(true)
	defer metrics.TrackWSConnection(false)

	views, cancel := c.source.Watch()
	defer cancel()

	go c.readPump()
	c.writePump(ctx, views)
}

func (c *Client) markGone() {
	c.goneOnce.Do(func() { close(c.gone) })
}

// readPump watches the connection for viewer pings and disconnects
func (c *Client) readPump() {
	defer c.markGone()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close error")
			}
			return
		}

		var msg Message
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.Type == MessageTypePing {
			select {
			case c.pongs <- struct{}{}:
			default:
			}
		}
	}
}

// writePump writes views, pongs and keepalive pings to the connection
func (c *Client) writePump(ctx context.Context, views <-chan models.TrackingView) {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.writeClose(websocket.CloseGoingAway, "server shutting down")
			return

		case <-c.gone:
			return

		case view, ok := <-views:
			if !ok {
				// Session torn down
				_ = c.write(Message{Type: MessageTypeEnded})
				c.writeClose(websocket.CloseNormalClosure, "tracking ended")
				return
			}
			if err := c.write(Message{Type: MessageTypeView, Data: view}); err != nil {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("failed to write view")
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-c.pongs:
			if err := c.write(Message{Type: MessageTypePong}); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(msg Message) error {
	data, err := MarshalMessage(msg)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) writeClose(code int, text string) {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
