// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

/*
Package websocket is the connection registry and the /ws endpoint.

Key Components:

  - Hub: the room registry. It keeps two tables under one RWMutex,
    connection -> rooms and room -> connections, and fans messages out to a
    room's members.
  - Client: one upgraded connection with a read pump and a write pump.
  - Handler: the HTTP upgrade endpoint.

Architecture:

	          trackingData                     liveUpdate / dashboardUpdate
	agent ──────────────▶ Client.readPump ──▶ relay.Pipeline ──▶ Hub.Broadcast
	                                                                  │
	                       ┌──────────────────────────────────────────┤
	                       ▼                                          ▼
	              room "device:<id>"                           room "dashboard"
	              Client.send ─▶ writePump                     Client.send ─▶ writePump

Each client has two goroutines:
  - readPump: decodes envelopes, handles room commands and feeds
    trackingData into the relay inline, so frames from one connection are
    ingested in arrival order
  - writePump: the only writer on the connection; drains the send queue and
    sends pings

Message Types:

Client to server: joinDevice, leaveDevice, joinDashboard, leaveDashboard,
trackingData, ping. Server to client: liveUpdate, dashboardUpdate, ack,
error, pong. Every frame is {"type": "...", "data": ...}.

Delivery:

Broadcast snapshots a room's members and calls Deliver on each, which never
blocks. A member whose queue is full misses that message and the others
still get it. Because each member has a single queue drained by a single
writer, messages reach a member in the order they were broadcast.

On disconnect the hub removes the connection from every room before it
forgets the connection.

Usage Example:

	hub := websocket.NewHub()
	go hub.RunWithContext(ctx)

	r.Handle("/ws", websocket.NewHandler(hub, pipeline, websocket.HandlerOptions{
	    AutoJoinDashboard: true,
	    AllowedOrigins:    []string{"*"},
	}))

Thread Safety:

All Hub methods are safe for concurrent use. Client.Deliver and Client.Close
may be called from any goroutine.
*/
package websocket
