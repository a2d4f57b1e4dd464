// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package relay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/trackrelay/internal/cache"
	"github.com/tomtom215/trackrelay/internal/eventlog"
	"github.com/tomtom215/trackrelay/internal/models"
	"github.com/tomtom215/trackrelay/internal/relay"
	"github.com/tomtom215/trackrelay/internal/websocket"
)

// inbox is a hub member that records what it is handed.
type inbox struct {
	id   uint64
	msgs []models.Outbound
}

func (i *inbox) ID() uint64 { return i.id }
func (i *inbox) Close()     {}
func (i *inbox) Deliver(msg models.Outbound) bool {
	i.msgs = append(i.msgs, msg)
	return true
}

func f64(v float64) *float64 { return &v }

type relayFixture struct {
	log       *eventlog.BadgerLog
	store     *cache.MemorySnapshotStore
	hub       *websocket.Hub
	pipeline  *relay.Pipeline
	device    *inbox
	dashboard *inbox
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	log, err := eventlog.OpenBadger(eventlog.BadgerOptions{})
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	f := &relayFixture{
		log:       log,
		store:     cache.NewMemorySnapshotStore(time.Hour),
		hub:       websocket.NewHub(),
		device:    &inbox{id: 1_000_001},
		dashboard: &inbox{id: 1_000_002},
	}
	f.hub.Join(f.device, models.DeviceRoom("abc"))
	f.hub.Join(f.dashboard, models.DashboardRoom)
	f.pipeline = relay.NewPipeline(eventlog.Instrument(log), f.store, f.hub, nil, relay.Options{})
	return f
}

func TestScenario_SingleEventReachesEveryAudience(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	ev, err := f.pipeline.Ingest(ctx, "test", &models.RawTelemetry{
		DeviceID: "abc",
		Location: &models.Location{Lat: 10, Lng: 20},
		Speed:    f64(5),
		Battery:  f64(0.8),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	history, err := f.log.History(ctx, "abc", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Speed != 5 {
		t.Fatalf("Expected 1 record with speed 5, got %+v", history)
	}

	cached, found, _ := f.store.Get(ctx, "abc")
	if !found || cached != ev {
		t.Errorf("Expected snapshot %+v, got %+v found=%v", ev, cached, found)
	}

	if len(f.device.msgs) != 1 || f.device.msgs[0].Type != models.MsgLiveUpdate || f.device.msgs[0].Data != ev {
		t.Errorf("Device room got %+v", f.device.msgs)
	}
	if len(f.dashboard.msgs) != 1 || f.dashboard.msgs[0].Type != models.MsgDashboardUpdate || f.dashboard.msgs[0].Data != ev {
		t.Errorf("Dashboard room got %+v", f.dashboard.msgs)
	}
}

func TestScenario_OrderPreservedForSubscriber(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	t1 := time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)
	t2 := t1.Add(time.Second)
	for _, ts := range []time.Time{t1, t2} {
		ts := ts
		if _, err := f.pipeline.Ingest(ctx, "test", &models.RawTelemetry{
			DeviceID: "abc", Timestamp: &ts, Location: &models.Location{Lat: 1, Lng: 1},
		}); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	if len(f.device.msgs) != 2 {
		t.Fatalf("Expected 2 live updates, got %d", len(f.device.msgs))
	}
	first := f.device.msgs[0].Data.(models.TelemetryEvent)
	second := f.device.msgs[1].Data.(models.TelemetryEvent)
	if !first.Timestamp.Equal(t1) || !second.Timestamp.Equal(t2) {
		t.Errorf("Expected E1 then E2, got %v then %v", first.Timestamp, second.Timestamp)
	}
}

func TestScenario_ClosedLogMeansNoFanOut(t *testing.T) {
	f := newRelayFixture(t)
	_ = f.log.Close()

	_, err := f.pipeline.Ingest(context.Background(), "test", &models.RawTelemetry{
		DeviceID: "abc", Location: &models.Location{Lat: 1, Lng: 1},
	})
	if !errors.Is(err, relay.ErrPersistence) || !errors.Is(err, eventlog.ErrClosed) {
		t.Fatalf("Expected persistence error wrapping ErrClosed, got %v", err)
	}
	if len(f.device.msgs) != 0 || len(f.dashboard.msgs) != 0 {
		t.Error("Expected no broadcasts when the log is down")
	}
	if _, found, _ := f.store.Get(context.Background(), "abc"); found {
		t.Error("Expected no snapshot when the log is down")
	}
}
