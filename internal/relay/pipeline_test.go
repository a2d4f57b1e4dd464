// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/trackrelay/internal/cache"
	"github.com/tomtom215/trackrelay/internal/models"
)

var fixedNow = time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)

type fakeLog struct {
	mu     sync.Mutex
	events []models.TelemetryEvent
	err    error
	delay  time.Duration
}

func (f *fakeLog) Name() string { return "fake" }
func (f *fakeLog) Close() error { return nil }

func (f *fakeLog) Append(ctx context.Context, ev models.TelemetryEvent) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	return nil
}

func (f *fakeLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type brokenStore struct{}

func (brokenStore) Put(context.Context, string, models.TelemetryEvent) error {
	return cache.ErrUnavailable
}

func (brokenStore) Get(context.Context, string) (models.TelemetryEvent, bool, error) {
	return models.TelemetryEvent{}, false, cache.ErrUnavailable
}

type sent struct {
	room string
	msg  models.Outbound
}

type recordingHub struct {
	mu      sync.Mutex
	sent    []sent
	dropped int
}

func (r *recordingHub) Broadcast(room string, msg models.Outbound) (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{room: room, msg: msg})
	return 1, r.dropped
}

func (r *recordingHub) rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, s.room)
	}
	return out
}

type fakeMirror struct {
	published int
	err       error
}

func (m *fakeMirror) Publish(context.Context, models.TelemetryEvent) error {
	m.published++
	return m.err
}

func ptr[T any](v T) *T { return &v }

func validRaw(id string) *models.RawTelemetry {
	return &models.RawTelemetry{
		DeviceID: id,
		Location: &models.Location{Lat: 10, Lng: 20},
		Speed:    ptr(5.0),
		Battery:  ptr(0.8),
	}
}

func newTestPipeline(log *fakeLog, store cache.SnapshotStore, hub *recordingHub, mirror Mirror) *Pipeline {
	return NewPipeline(log, store, hub, mirror, Options{
		AppendTimeout: time.Second,
		Now:           func() time.Time { return fixedNow },
	})
}

func TestIngest_HappyPath(t *testing.T) {
	log := &fakeLog{}
	store := cache.NewMemorySnapshotStore(time.Hour)
	hub := &recordingHub{}
	mirror := &fakeMirror{}
	p := newTestPipeline(log, store, hub, mirror)

	ev, err := p.Ingest(context.Background(), "test", validRaw("abc"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if log.count() != 1 {
		t.Errorf("Expected 1 log record, got %d", log.count())
	}
	if ev.Speed != 5 {
		t.Errorf("Expected speed 5, got %v", ev.Speed)
	}
	if !ev.Timestamp.Equal(fixedNow) {
		t.Errorf("Expected missing timestamp to default to now, got %v", ev.Timestamp)
	}

	cached, found, err := store.Get(context.Background(), "abc")
	if err != nil || !found {
		t.Fatalf("Expected snapshot hit, found=%v err=%v", found, err)
	}
	if cached != ev {
		t.Errorf("Snapshot %+v differs from ingested %+v", cached, ev)
	}

	rooms := hub.rooms()
	if len(rooms) != 2 || rooms[0] != "device:abc" || rooms[1] != models.DashboardRoom {
		t.Fatalf("Unexpected broadcasts: %v", rooms)
	}
	if hub.sent[0].msg.Type != models.MsgLiveUpdate || hub.sent[1].msg.Type != models.MsgDashboardUpdate {
		t.Errorf("Unexpected message types %s, %s", hub.sent[0].msg.Type, hub.sent[1].msg.Type)
	}
	if hub.sent[0].msg.Data != ev || hub.sent[1].msg.Data != ev {
		t.Error("Broadcast payloads must equal the stored event")
	}
	if mirror.published != 1 {
		t.Errorf("Expected one mirror publish, got %d", mirror.published)
	}
}

func TestIngest_NegativeSpeedClamped(t *testing.T) {
	for _, speed := range []float64{-0.0001, -3, -1e9} {
		log := &fakeLog{}
		p := newTestPipeline(log, cache.NewMemorySnapshotStore(time.Hour), &recordingHub{}, nil)

		raw := validRaw("dev")
		raw.Speed = ptr(speed)
		ev, err := p.Ingest(context.Background(), "test", raw)
		if err != nil {
			t.Fatalf("Ingest speed %v: %v", speed, err)
		}
		if ev.Speed != 0 || log.events[0].Speed != 0 {
			t.Errorf("Expected stored speed 0 for input %v, got %v", speed, log.events[0].Speed)
		}
	}
}

func TestIngest_ValidationFailureHasNoSideEffects(t *testing.T) {
	tests := []struct {
		name string
		raw  *models.RawTelemetry
	}{
		{"missing device id", &models.RawTelemetry{Location: &models.Location{Lat: 1, Lng: 1}}},
		{"missing location", &models.RawTelemetry{DeviceID: "abc"}},
		{"latitude out of range", &models.RawTelemetry{DeviceID: "abc", Location: &models.Location{Lat: 91, Lng: 0}}},
		{"nil raw", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &fakeLog{}
			store := cache.NewMemorySnapshotStore(time.Hour)
			hub := &recordingHub{}
			p := newTestPipeline(log, store, hub, nil)

			_, err := p.Ingest(context.Background(), "test", tt.raw)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Expected ErrValidation, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Expected *ValidationError, got %T", err)
			}
			if log.count() != 0 || len(hub.rooms()) != 0 {
				t.Error("Rejected event must not reach the log or the hub")
			}
			if store.Cache().Len() != 0 {
				t.Error("Rejected event must not be cached")
			}
		})
	}
}

func TestIngest_PersistenceFailureBlocksFanOut(t *testing.T) {
	storageErr := errors.New("disk on fire")
	log := &fakeLog{err: storageErr}
	store := cache.NewMemorySnapshotStore(time.Hour)
	hub := &recordingHub{}
	mirror := &fakeMirror{}
	p := newTestPipeline(log, store, hub, mirror)

	_, err := p.Ingest(context.Background(), "test", validRaw("abc"))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Expected ErrPersistence, got %v", err)
	}
	if !errors.Is(err, storageErr) {
		t.Errorf("Expected underlying error to be wrapped, got %v", err)
	}
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.DeviceID != "abc" || perr.Backend != "fake" {
		t.Errorf("Unexpected persistence error %#v", err)
	}

	if len(hub.rooms()) != 0 {
		t.Errorf("Expected no broadcasts, got %v", hub.rooms())
	}
	if _, found, _ := store.Get(context.Background(), "abc"); found {
		t.Error("Expected no snapshot after failed append")
	}
	if mirror.published != 0 {
		t.Error("Expected no mirror publish after failed append")
	}
}

func TestIngest_AppendTimeout(t *testing.T) {
	log := &fakeLog{delay: time.Second}
	hub := &recordingHub{}
	p := NewPipeline(log, cache.NewMemorySnapshotStore(time.Hour), hub, nil, Options{AppendTimeout: 20 * time.Millisecond})

	_, err := p.Ingest(context.Background(), "test", validRaw("abc"))
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected persistence error wrapping deadline, got %v", err)
	}
	if len(hub.rooms()) != 0 {
		t.Error("Timed out append must not fan out")
	}
}

func TestIngest_CacheUnavailableStillSucceeds(t *testing.T) {
	log := &fakeLog{}
	hub := &recordingHub{}
	mirror := &fakeMirror{}
	p := newTestPipeline(log, brokenStore{}, hub, mirror)

	ev, err := p.Ingest(context.Background(), "test", validRaw("abc"))
	if err != nil {
		t.Fatalf("Cache failure must not fail ingest: %v", err)
	}
	if ev.DeviceID != "abc" {
		t.Errorf("Unexpected event %+v", ev)
	}
	if log.count() != 1 {
		t.Error("Expected the log append to succeed")
	}
	if len(hub.rooms()) != 2 {
		t.Errorf("Expected both broadcasts, got %v", hub.rooms())
	}
	if mirror.published != 1 {
		t.Error("Expected mirror publish to still be attempted")
	}
}

func TestIngest_DeliveryAndMirrorFailuresAreSwallowed(t *testing.T) {
	hub := &recordingHub{dropped: 3}
	mirror := &fakeMirror{err: errors.New("nats down")}
	p := newTestPipeline(&fakeLog{}, cache.NewMemorySnapshotStore(time.Hour), hub, mirror)

	if _, err := p.Ingest(context.Background(), "test", validRaw("abc")); err != nil {
		t.Fatalf("Expected success despite drops and mirror failure, got %v", err)
	}
	if len(hub.rooms()) != 2 {
		t.Error("Dashboard broadcast must run even when device room had drops")
	}
}

func TestIngest_DuplicatesAreNotDeduplicated(t *testing.T) {
	log := &fakeLog{}
	p := newTestPipeline(log, cache.NewMemorySnapshotStore(time.Hour), &recordingHub{}, nil)

	raw := validRaw("abc")
	raw.Timestamp = ptr(fixedNow.Add(-time.Minute))
	for i := 0; i < 2; i++ {
		if _, err := p.Ingest(context.Background(), "test", raw); err != nil {
			t.Fatalf("Ingest %d: %v", i, err)
		}
	}
	if log.count() != 2 {
		t.Errorf("Expected duplicate record, got %d", log.count())
	}
}

func TestConsume(t *testing.T) {
	log := &fakeLog{}
	p := newTestPipeline(log, cache.NewMemorySnapshotStore(time.Hour), &recordingHub{}, nil)

	in := make(chan *models.RawTelemetry, 4)
	in <- validRaw("a")
	in <- &models.RawTelemetry{DeviceID: "bad"}
	in <- validRaw("b")
	close(in)

	if err := p.Consume(context.Background(), "queue", in); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if log.count() != 2 {
		t.Errorf("Expected 2 valid events appended, got %d", log.count())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Consume(ctx, "queue", make(chan *models.RawTelemetry)); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestErrorMessages(t *testing.T) {
	cerr := &CacheError{DeviceID: "x", Err: cache.ErrUnavailable}
	if !errors.Is(cerr, ErrCache) || !errors.Is(cerr, cache.ErrUnavailable) {
		t.Error("CacheError should match both sentinels")
	}
	derr := &DeliveryError{Room: "dashboard", Dropped: 2}
	if !errors.Is(derr, ErrDelivery) {
		t.Error("DeliveryError should match ErrDelivery")
	}
	if derr.Error() == "" || cerr.Error() == "" {
		t.Error("Expected non-empty messages")
	}
}
