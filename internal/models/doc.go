// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

/*
Package models defines the telemetry data and wire frames shared by the
relay server and the device agent.

Key Components:

  - TelemetryEvent: a normalized, immutable device reading
  - RawTelemetry: the inbound trackingData payload before normalization
  - Normalize: clamping, defaulting and validation of a raw payload
  - Envelope / Outbound: the {"type","data"} websocket frame
  - DailySummary: read-only analytics rows

Rooms:

  - "dashboard" receives every accepted event as dashboardUpdate
  - "device:<id>" receives that device's events as liveUpdate
*/
package models
