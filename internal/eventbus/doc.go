// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

// Package eventbus mirrors accepted telemetry onto NATS through watermill
// so other systems can consume the stream without connecting to /ws.
//
// The mirror runs after the durable append, next to the cache write and the
// room broadcasts, and shares their best-effort contract: a failed publish
// is logged and counted and never fails ingest. A circuit breaker keeps an
// unreachable broker from adding latency to every event.
package eventbus
