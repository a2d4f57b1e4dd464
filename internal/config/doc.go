// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

/*
Package config loads the relay server configuration.

Sources are layered with koanf, later layers winning:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, ./config.yaml, /etc/trackrelay/config.yaml
 3. Environment variables

Environment variables are mapped explicitly; anything not in the table is
ignored. Selected variables:

  - PORT / HTTP_PORT: listen port (default: 3000)
  - CACHE_TYPE: memory or redis (default: memory)
  - CACHE_TTL: snapshot lifetime (default: 1h)
  - REDIS_HOST, REDIS_PORT: redis snapshot store (default: 127.0.0.1:6379)
  - EVENTLOG_TYPE: badger, postgres or duckdb (default: badger)
  - EVENTLOG_PATH: badger directory or duckdb file (default: ./data/eventlog)
  - DATABASE_URL: postgres DSN
  - EVENTLOG_APPEND_TIMEOUT: bound on one append (default: 5s)
  - WS_AUTO_JOIN_DASHBOARD: new connections join the dashboard room (default: true)
  - MQTT_ENABLED, MQTT_BROKER, MQTT_TOPIC: optional MQTT ingest
  - NATS_ENABLED, NATS_URL, NATS_TOPIC: optional NATS mirror
  - CORS_ORIGINS: comma-separated (default: *)
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

Validate rejects unknown backend names, non-positive timeouts and missing
connection details for enabled integrations.
*/
package config
