// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

/*
Command server runs the trackrelay relay.

Devices connect to /ws and send trackingData frames. Each accepted event is
appended to the durable event log, stored as the device's latest snapshot,
and broadcast to viewers of that device and to the dashboard room. The
read API under /api/v1 serves device lists, history, latest snapshots and
stored daily analytics.

# Startup order

 1. Configuration (koanf: defaults, optional config.yaml, environment)
 2. Logging (zerolog)
 3. Event log (badger, postgres or duckdb). Failure is fatal.
 4. Snapshot cache (memory or redis). An unreachable redis is logged.
 5. Connection registry and relay pipeline
 6. Optional NATS mirror
 7. HTTP router and supervisor tree

# Configuration

Common environment variables:

	PORT=3000                     # HTTP listener
	EVENTLOG_TYPE=badger          # badger, postgres, duckdb
	EVENTLOG_PATH=./data/eventlog # badger directory or duckdb file
	DATABASE_URL=postgres://...   # postgres DSN
	CACHE_TYPE=memory             # memory or redis
	CACHE_TTL=1h                  # snapshot lifetime
	REDIS_HOST=127.0.0.1
	REDIS_PORT=6379
	WS_AUTO_JOIN_DASHBOARD=true
	MQTT_ENABLED=false
	MQTT_BROKER=tcp://127.0.0.1:1883
	MQTT_TOPIC=tracking/+
	NATS_ENABLED=false
	NATS_URL=nats://127.0.0.1:4222
	LOG_LEVEL=info
	LOG_FORMAT=json

CONFIG_PATH points at a YAML file with the same keys; environment wins.

# Signals

SIGINT and SIGTERM cancel the supervisor tree. The HTTP server drains,
websocket clients are closed, then the cache and event log are closed.
*/
package main
