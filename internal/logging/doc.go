// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

// Package logging provides the process-wide zerolog logger for Trackrelay.
//
// The relay, the agent and the supervisor tree all log through one global
// logger configured by Init. JSON output is the default; console output is
// meant for local runs of the agent simulator.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("addr", addr).Msg("relay listening")
//
// # Context Fields
//
// Request handlers and the websocket read loop attach identifiers to the
// context so every log line for an event carries them:
//
//	ctx = logging.ContextWithConnID(ctx, client.ID())
//	ctx = logging.ContextWithDeviceID(ctx, event.DeviceID)
//	logging.Ctx(ctx).Warn().Err(err).Msg("snapshot write failed")
//
// # slog Bridge
//
// suture reports supervisor events through log/slog. NewSlogLogger returns
// an slog.Logger that writes through zerolog.
//
// Always terminate log chains with .Msg() or .Send(); an unterminated
// chain emits nothing.
package logging
