// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

/*
Package relay is the ingest pipeline shared by every telemetry source.

For each raw event Pipeline.Ingest runs, in order:

 1. Normalize: validate the device ID, coordinates, speed and battery,
    and default the timestamp to the server clock.
 2. Append to the durable event log, bounded by Options.AppendTimeout.
    On failure the event stops here: no snapshot, no broadcast.
 3. Put the snapshot. Failures are logged and counted only.
 4. Broadcast liveUpdate to device:<id> and dashboardUpdate to the
    dashboard room. A slow member misses the message; others still get it.
 5. Publish to the optional bus mirror. Failures are logged only.

Events from one websocket connection are ingested inline, so they reach the
log and the rooms in arrival order. Events from different connections may
interleave.

# Errors

Ingest returns either a *ValidationError (matches ErrValidation) or a
*PersistenceError (matches ErrPersistence). CacheError and DeliveryError
only ever appear in logs.

# Queued sources

Consume drains a channel into Ingest. The MQTT subscriber uses it so broker
callbacks never block on storage.
*/
package relay
