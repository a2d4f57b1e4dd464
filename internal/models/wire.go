// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package models

import (
	"strings"

	"github.com/goccy/go-json"
)

// Message types carried in the websocket envelope.
const (
	// Client to server.
	MsgJoinDevice     = "joinDevice"
	MsgLeaveDevice    = "leaveDevice"
	MsgJoinDashboard  = "joinDashboard"
	MsgLeaveDashboard = "leaveDashboard"
	MsgTrackingData   = "trackingData"
	MsgPing           = "ping"

	// Server to client.
	MsgLiveUpdate      = "liveUpdate"
	MsgDashboardUpdate = "dashboardUpdate"
	MsgAck             = "ack"
	MsgError           = "error"
	MsgPong            = "pong"
)

// Room names.
const (
	DashboardRoom    = "dashboard"
	DeviceRoomPrefix = "device:"
)

// DeviceRoom returns the per-device room name for deviceID.
func DeviceRoom(deviceID string) string {
	return DeviceRoomPrefix + deviceID
}

// RoomKind collapses a room name to a low-cardinality label for metrics.
func RoomKind(room string) string {
	switch {
	case room == DashboardRoom:
		return "dashboard"
	case strings.HasPrefix(room, DeviceRoomPrefix):
		return "device"
	default:
		return "other"
	}
}

// Envelope is the frame exchanged on the websocket in both directions.
// Data is kept raw on the inbound side so each handler decodes its own
// payload shape.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound is the server-to-client frame.
type Outbound struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AckPayload confirms a trackingData frame was persisted.
type AckPayload struct {
	DeviceID  string `json:"deviceId"`
	Timestamp string `json:"timestamp"`
}

// LiveUpdate wraps an event for the device room.
func LiveUpdate(ev TelemetryEvent) Outbound {
	return Outbound{Type: MsgLiveUpdate, Data: ev}
}

// DashboardUpdate wraps an event for the dashboard room.
func DashboardUpdate(ev TelemetryEvent) Outbound {
	return Outbound{Type: MsgDashboardUpdate, Data: ev}
}

// DecodeDeviceID accepts either a bare JSON string or {"deviceId": "..."}.
func DecodeDeviceID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return strings.TrimSpace(id), nil
	}
	var obj struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", err
	}
	return strings.TrimSpace(obj.DeviceID), nil
}
