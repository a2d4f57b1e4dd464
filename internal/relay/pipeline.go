// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package relay

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/trackrelay/internal/cache"
	"github.com/tomtom215/trackrelay/internal/eventlog"
	"github.com/tomtom215/trackrelay/internal/logging"
	"github.com/tomtom215/trackrelay/internal/metrics"
	"github.com/tomtom215/trackrelay/internal/models"
)

// DefaultAppendTimeout bounds one durable log append.
const DefaultAppendTimeout = 5 * time.Second

// Broadcaster fans a message out to a room. Per-member failures are
// reported as a count, never as an error.
type Broadcaster interface {
	Broadcast(room string, msg models.Outbound) (queued, dropped int)
}

// Mirror republishes accepted events to an external bus.
type Mirror interface {
	Publish(ctx context.Context, ev models.TelemetryEvent) error
}

// Options tunes a Pipeline.
type Options struct {
	AppendTimeout time.Duration

	// Now supplies the default timestamp for events that carry none.
	Now func() time.Time
}

// Pipeline is the single ingest entry point. It holds no state of its own
// and is safe for concurrent use; no lock is held across Append.
type Pipeline struct {
	log       eventlog.Log
	snapshots cache.SnapshotStore
	hub       Broadcaster
	mirror    Mirror
	opts      Options
}

// NewPipeline wires the collaborators. mirror may be nil.
func NewPipeline(log eventlog.Log, snapshots cache.SnapshotStore, hub Broadcaster, mirror Mirror, opts Options) *Pipeline {
	if opts.AppendTimeout <= 0 {
		opts.AppendTimeout = DefaultAppendTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		log:       log,
		snapshots: snapshots,
		hub:       hub,
		mirror:    mirror,
		opts:      opts,
	}
}

// Ingest normalizes raw, appends it to the durable log and, only if that
// succeeded, updates the snapshot cache and broadcasts to the device room
// and the dashboard room.
//
// The returned error is a *ValidationError or a *PersistenceError. Cache,
// delivery and mirror failures are logged and counted; every one of those
// steps is attempted regardless of the others.
func (p *Pipeline) Ingest(ctx context.Context, source string, raw *models.RawTelemetry) (models.TelemetryEvent, error) {
	start := time.Now()

	ev, err := models.Normalize(raw, p.opts.Now())
	if err != nil {
		metrics.RecordIngest(source, metrics.ResultInvalid, time.Since(start))
		return models.TelemetryEvent{}, &ValidationError{Err: err}
	}

	ctx = logging.ContextWithDeviceID(ctx, ev.DeviceID)
	logger := logging.Ctx(ctx)

	appendCtx, cancel := context.WithTimeout(ctx, p.opts.AppendTimeout)
	err = p.log.Append(appendCtx, ev)
	cancel()
	if err != nil {
		metrics.RecordIngest(source, metrics.ResultPersistFail, time.Since(start))
		logger.Error().Err(err).Str("source", source).Msg("event log append failed, event not relayed")
		return models.TelemetryEvent{}, &PersistenceError{DeviceID: ev.DeviceID, Backend: p.log.Name(), Err: err}
	}

	if err := p.snapshots.Put(ctx, ev.DeviceID, ev); err != nil {
		cerr := &CacheError{DeviceID: ev.DeviceID, Err: err}
		metrics.SnapshotWriteErrors.WithLabelValues(storeName(p.snapshots)).Inc()
		logger.Warn().Err(cerr).Msg("snapshot write failed")
	}

	p.broadcast(ctx, models.DeviceRoom(ev.DeviceID), models.LiveUpdate(ev))
	p.broadcast(ctx, models.DashboardRoom, models.DashboardUpdate(ev))

	if p.mirror != nil {
		if err := p.mirror.Publish(ctx, ev); err != nil {
			logger.Warn().Err(err).Msg("mirror publish failed")
		}
	}

	metrics.RecordIngest(source, metrics.ResultAccepted, time.Since(start))
	logger.Debug().
		Str("source", source).
		Time("timestamp", ev.Timestamp).
		Float64("lat", ev.Location.Lat).
		Float64("lng", ev.Location.Lng).
		Msg("telemetry relayed")
	return ev, nil
}

func (p *Pipeline) broadcast(ctx context.Context, room string, msg models.Outbound) {
	_, dropped := p.hub.Broadcast(room, msg)
	if dropped > 0 {
		logging.Ctx(ctx).Debug().Err(&DeliveryError{Room: room, Dropped: dropped}).Msg("broadcast incomplete")
	}
}

// Consume ingests every event from in until it is closed or ctx is done.
// It is the consuming end of producers that hand off through a bounded
// channel instead of calling Ingest inline.
func (p *Pipeline) Consume(ctx context.Context, source string, in <-chan *models.RawTelemetry) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-in:
			if !ok {
				return nil
			}
			if _, err := p.Ingest(ctx, source, raw); err != nil && !errors.Is(err, ErrValidation) {
				logging.Warn().Err(err).Str("source", source).Msg("queued telemetry not relayed")
			}
		}
	}
}

func storeName(s cache.SnapshotStore) string {
	switch s.(type) {
	case *cache.RedisSnapshotStore:
		return "redis"
	case *cache.MemorySnapshotStore:
		return "memory"
	default:
		return "other"
	}
}
