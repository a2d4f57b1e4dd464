// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

// Package testinfra starts throwaway redis and postgres containers for the
// integration tests of the snapshot cache and durable log.
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/cache/... ./internal/eventlog/...
//
//	func TestRedisSnapshotStore_Integration(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    rc, err := testinfra.NewRedisContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, rc)
//	    ...
//	}
package testinfra
