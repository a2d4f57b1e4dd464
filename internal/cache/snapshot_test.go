// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/trackrelay/internal/models"
)

func sampleEvent(id string, lat float64) models.TelemetryEvent {
	return models.TelemetryEvent{
		DeviceID:  id,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Location:  models.Location{Lat: lat, Lng: 10},
		Speed:     3.5,
		Battery:   0.8,
		Status:    models.StatusActive,
	}
}

func TestMemorySnapshotStore_PutGet(t *testing.T) {
	store := NewMemorySnapshotStore(time.Hour)
	ctx := context.Background()

	if _, found, err := store.Get(ctx, "dev-1"); err != nil || found {
		t.Fatalf("Expected miss on empty store, got found=%v err=%v", found, err)
	}

	if err := store.Put(ctx, "dev-1", sampleEvent("dev-1", 1)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "dev-1", sampleEvent("dev-1", 2)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := store.Get(ctx, "dev-1")
	if err != nil || !found {
		t.Fatalf("Expected hit, got found=%v err=%v", found, err)
	}
	if got.Location.Lat != 2 {
		t.Errorf("Expected last write to win, got lat %v", got.Location.Lat)
	}
}

func TestMemorySnapshotStore_Expiry(t *testing.T) {
	clock := newFakeClock()
	store := NewMemorySnapshotStore(time.Hour)
	store.Cache().WithClock(clock.Now)
	ctx := context.Background()

	_ = store.Put(ctx, "dev-1", sampleEvent("dev-1", 1))
	_ = store.Put(ctx, "dev-2", sampleEvent("dev-2", 1))

	clock.Advance(time.Hour + time.Second)

	if _, found, _ := store.Get(ctx, "dev-1"); found {
		t.Error("Expected dev-1 to be expired")
	}
	if removed := store.Sweep(); removed != 1 {
		t.Errorf("Expected sweep to remove remaining expired entry, removed %d", removed)
	}
	if store.Cache().Len() != 0 {
		t.Errorf("Expected empty store, got %d", store.Cache().Len())
	}
}

func TestMemorySnapshotStore_Interfaces(t *testing.T) {
	var _ SnapshotStore = (*MemorySnapshotStore)(nil)
	var _ Sweeper = (*MemorySnapshotStore)(nil)
	var _ SnapshotStore = (*RedisSnapshotStore)(nil)
}
