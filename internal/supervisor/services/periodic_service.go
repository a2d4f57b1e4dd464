// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package services

import (
	"context"
	"time"

	"github.com/tomtom215/trackrelay/internal/logging"
)

// Task is one run of a periodic maintenance job.
type Task func(ctx context.Context) error

// PeriodicService runs a task every interval until the context ends.
//
// A failing run is logged and the ticker keeps going; maintenance jobs
// here are retried by the next tick rather than by a supervisor restart.
type PeriodicService struct {
	name     string
	interval time.Duration
	task     Task
}

// NewPeriodicService creates a periodic service. A non-positive interval
// means one minute.
func NewPeriodicService(name string, interval time.Duration, task Task) *PeriodicService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PeriodicService{name: name, interval: interval, task: task}
}

// Serve implements suture.Service.
func (p *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.task(ctx); err != nil {
				logging.Warn().Err(err).Str("service", p.name).Msg("Periodic task failed")
			}
		}
	}
}

// String implements fmt.Stringer.
func (p *PeriodicService) String() string {
	return p.name
}

// Sweeper is satisfied by cache.MemorySnapshotStore.
type Sweeper interface {
	Sweep() int
}

// NewSnapshotSweepService drops expired snapshots every interval. Reads
// already treat expired entries as misses; the sweep only bounds memory
// held by devices that went quiet.
func NewSnapshotSweepService(s Sweeper, interval time.Duration) *PeriodicService {
	return NewPeriodicService("snapshot-sweeper", interval, func(context.Context) error {
		if removed := s.Sweep(); removed > 0 {
			logging.Debug().Int("removed", removed).Msg("Swept expired snapshots")
		}
		return nil
	})
}

// GarbageCollector is satisfied by eventlog.BadgerLog.
type GarbageCollector interface {
	RunGC() error
}

// NewEventLogGCService reclaims event log value-log space every interval.
func NewEventLogGCService(gc GarbageCollector, interval time.Duration) *PeriodicService {
	return NewPeriodicService("eventlog-gc", interval, func(context.Context) error {
		return gc.RunGC()
	})
}
