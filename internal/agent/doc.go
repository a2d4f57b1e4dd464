// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

/*
Package agent implements the device side of the relay: a tracking state
machine that decides when location fixes are captured and emits them as
trackingData frames over a reconnecting websocket.

States:

	unauthorized ──request──▶ authorization_pending
	      ▲  │                      │  │
	      │  └──grant──▶ idle ◀─grant┘  └─deny──▶ unauthorized
	      │              │ ▲
	   revoke       start│ │stop
	      │              ▼ │
	      └───────── tracking

A grant always continues to tracking, so authorization granted outside the
app starts tracking as soon as the agent hears about it.

Fixes flow from the LocationSource over a bounded queue to the emit loop.
The queue drops the newest fix when full, fixes within the distance filter
of the last emitted fix are skipped, and fixes captured while the transport
is reconnecting are dropped. Stats and the trackrelay_agent_* metrics count
each case.
*/
package agent
