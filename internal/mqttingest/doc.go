// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

// Package mqttingest is a second ingest path next to the websocket: it
// subscribes to an MQTT topic filter (tracking/+ by default) and feeds each
// payload to the relay pipeline. Rejected events are logged; there is no
// reply channel.
package mqttingest
