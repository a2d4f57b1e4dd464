// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/trackrelay/internal/metrics"
	"github.com/tomtom215/trackrelay/internal/models"
)

// ErrUnavailable wraps every failure caused by the backing store being
// unreachable or rejecting the operation.
var ErrUnavailable = errors.New("snapshot store unavailable")

// SnapshotStore holds the latest event per device with a TTL.
//
// Put overwrites unconditionally and restarts the TTL. Get reports a miss
// (found=false, err=nil) for absent or expired devices; err is only set when
// the store itself failed.
type SnapshotStore interface {
	Put(ctx context.Context, deviceID string, ev models.TelemetryEvent) error
	Get(ctx context.Context, deviceID string) (models.TelemetryEvent, bool, error)
}

// Sweeper is implemented by stores that need periodic expiry passes.
type Sweeper interface {
	Sweep() int
}

// MemorySnapshotStore is an in-process SnapshotStore.
type MemorySnapshotStore struct {
	c *Cache[models.TelemetryEvent]
}

// NewMemorySnapshotStore creates an in-memory store with the given TTL.
func NewMemorySnapshotStore(ttl time.Duration) *MemorySnapshotStore {
	return &MemorySnapshotStore{c: New[models.TelemetryEvent](ttl)}
}

// Put stores ev as the latest snapshot for deviceID.
func (m *MemorySnapshotStore) Put(_ context.Context, deviceID string, ev models.TelemetryEvent) error {
	m.c.Set(deviceID, ev)
	return nil
}

// Get returns the latest unexpired snapshot for deviceID.
func (m *MemorySnapshotStore) Get(_ context.Context, deviceID string) (models.TelemetryEvent, bool, error) {
	ev, ok := m.c.Get(deviceID)
	metrics.RecordSnapshotLookup("memory", ok, nil)
	return ev, ok, nil
}

// Sweep drops expired snapshots.
func (m *MemorySnapshotStore) Sweep() int {
	removed := m.c.Sweep()
	metrics.SnapshotEntries.Set(float64(m.c.Len()))
	return removed
}

// Cache exposes the underlying TTL cache (stats, test clocks).
func (m *MemorySnapshotStore) Cache() *Cache[models.TelemetryEvent] {
	return m.c
}
