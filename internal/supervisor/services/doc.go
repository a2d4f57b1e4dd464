// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

/*
Package services adapts relay components to suture.Service.

  - HTTPServerService: ListenAndServe/Shutdown to Serve
  - WebSocketHubService: the registry's RunWithContext lifetime
  - PeriodicService: runs a maintenance task on a ticker
    (NewSnapshotSweepService, NewEventLogGCService)

The MQTT subscriber implements suture.Service itself and is added to the
tree directly.

Every wrapper implements fmt.Stringer so supervisor log lines name it.
*/
package services
