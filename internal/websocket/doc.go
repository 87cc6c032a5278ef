// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
Package websocket streams a tracking session's views to its viewer.

Each tracking session has at most one viewer. A Client owns that viewer's
connection and forwards every TrackingView the session publishes, so the map
marker and status line update without polling the REST API.

Each client has two goroutines:
  - readPump: reads from the connection, answers application pings, notices disconnects
  - writePump: writes views, pongs and keepalive pings

Message Types:

  - view: a models.TrackingView snapshot
  - ended: the session was torn down; the server closes the connection next
  - ping / pong: application-level keepalive initiated by the viewer

Usage Example - Client (JavaScript):

	const ws = new WebSocket(`wss://ops.example/api/v1/tracking/${id}/stream`);

	ws.onmessage = (event) => {
	    const msg = JSON.parse(event.data);
	    if (msg.type === 'view') {
	        renderMarker(msg.data.marker, msg.data.status_text);
	    }
	};

Connection Lifecycle:

 1. Viewer connects via HTTP upgrade on the session's stream endpoint
 2. The latest view is sent immediately, then every change
 3. The session ends (ended message, normal close) or the viewer disconnects
 4. The viewer slot is released and the client's watch is cancelled

Closing the stream does not end the tracking session; DELETE does.
*/
package websocket
