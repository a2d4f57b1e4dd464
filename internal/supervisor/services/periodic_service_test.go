// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 1
}

type failingGC struct{ calls atomic.Int32 }

func (f *failingGC) RunGC() error {
	f.calls.Add(1)
	return errors.New("value log busy")
}

type blockingHub struct{ runs atomic.Int32 }

func (b *blockingHub) RunWithContext(ctx context.Context) error {
	b.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestPeriodicService_DefaultInterval(t *testing.T) {
	svc := NewPeriodicService("noop", 0, func(context.Context) error { return nil })
	if svc.interval != time.Minute {
		t.Errorf("Expected default interval 1m, got %v", svc.interval)
	}
}

func TestSnapshotSweepService_Ticks(t *testing.T) {
	sweeper := &countingSweeper{}
	svc := NewSnapshotSweepService(sweeper, 10*time.Millisecond)
	if svc.String() != "snapshot-sweeper" {
		t.Errorf("Expected name snapshot-sweeper, got %q", svc.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if sweeper.calls.Load() < 2 {
		t.Errorf("Expected several sweeps, got %d", sweeper.calls.Load())
	}
}

func TestEventLogGCService_KeepsTickingOnError(t *testing.T) {
	gc := &failingGC{}
	svc := NewEventLogGCService(gc, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected task errors to be absorbed, got %v", err)
	}
	if gc.calls.Load() < 2 {
		t.Errorf("Expected GC retried on later ticks, got %d calls", gc.calls.Load())
	}
}

func TestWebSocketHubService_Serve(t *testing.T) {
	hub := &blockingHub{}
	svc := NewWebSocketHubService(hub)
	if svc.String() != "websocket-hub" {
		t.Errorf("Expected name websocket-hub, got %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if hub.runs.Load() != 1 {
		t.Errorf("Expected one run, got %d", hub.runs.Load())
	}
}
