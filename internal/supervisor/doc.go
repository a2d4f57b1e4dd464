// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

/*
Package supervisor runs the relay server's long-lived goroutines under a
suture v4 tree.

# Layout

	trackrelay
	├── data-layer
	│   ├── snapshot-sweeper   (memory snapshot store only)
	│   └── eventlog-gc        (badger event log only)
	├── messaging-layer
	│   ├── websocket-hub
	│   └── mqtt-ingest        (if MQTT_ENABLED)
	└── api-layer
	    └── http-server

Each layer is its own supervisor, so restarts and failure counting stay
inside the layer that failed.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)

# Service contract

Services implement suture.Service:

	nil        stopped cleanly, not restarted
	error      crashed, restarted with backoff
	ctx.Err()  shutdown requested

Supervisor events (restarts, backoff, stop timeouts) are logged through
sutureslog into the process-wide zerolog logger.

The event log and snapshot stores are not services: they are opened
before the tree starts and closed after it stops.
*/
package supervisor
