// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

/*
Package eventlog is the durable, append-only record of accepted telemetry.

The relay pipeline appends every validated event here before it fans the
event out to websocket rooms. A failed append means nothing downstream sees
the event.

# Backends

  - badger (default): embedded key-value store, one key per event ordered by
    device, timestamp and a persistent sequence.
  - postgres: pgx connection pool; the schema is applied from embedded
    golang-migrate files when eventlog.migrate is true.
  - duckdb: embedded analytical database with the same tables as postgres.

All three implement Store, which adds the read side (device list, history,
stored daily summaries) used by the HTTP API.

# Usage

	store, err := eventlog.Open(ctx, cfg.EventLog)
	if err != nil {
	    return err
	}
	defer store.Close()

	err = eventlog.Instrument(store).Append(ctx, ev)
*/
package eventlog
