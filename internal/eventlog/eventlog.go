// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/trackrelay/internal/config"
	"github.com/tomtom215/trackrelay/internal/metrics"
	"github.com/tomtom215/trackrelay/internal/models"
)

// Backend names, also used as the metrics label.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendDuckDB   = "duckdb"
)

const (
	// DefaultHistoryLimit is used when callers pass limit <= 0.
	DefaultHistoryLimit = 100

	// MaxHistoryLimit caps a single history read.
	MaxHistoryLimit = 1000
)

// ErrClosed is returned by operations on a closed log.
var ErrClosed = errors.New("event log is closed")

// Log is the append-only durable record of every accepted event.
//
// A nil error from Append means the event is durable; the relay only fans
// out after that. Append never deduplicates.
type Log interface {
	Append(ctx context.Context, ev models.TelemetryEvent) error
	Name() string
	Close() error
}

// Querier is the read side used by the HTTP API.
type Querier interface {
	// ListDeviceIDs returns every device that has at least one event, sorted.
	ListDeviceIDs(ctx context.Context) ([]string, error)

	// History returns up to limit events for deviceID, newest first.
	History(ctx context.Context, deviceID string, limit int) ([]models.TelemetryEvent, error)

	// RecentAnalytics returns up to limit stored daily summaries, newest first.
	RecentAnalytics(ctx context.Context, limit int) ([]models.DailySummary, error)
}

// Store is a Log with its read side.
type Store interface {
	Log
	Querier
	Ping(ctx context.Context) error
}

// Open builds the backend selected by cfg.Type.
func Open(ctx context.Context, cfg config.EventLogConfig) (Store, error) {
	switch cfg.Type {
	case BackendBadger, "":
		return OpenBadger(BadgerOptions{Path: cfg.Path, SyncWrites: cfg.SyncWrites})
	case BackendPostgres:
		return OpenPostgres(ctx, PostgresOptions{DSN: cfg.DSN, MaxConns: cfg.MaxConns, Migrate: cfg.Migrate})
	case BackendDuckDB:
		return OpenDuckDB(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown event log type %q", cfg.Type)
	}
}

// Instrument wraps a Log so every append is timed and counted.
func Instrument(l Log) Log {
	return &instrumented{Log: l}
}

type instrumented struct {
	Log
}

func (i *instrumented) Append(ctx context.Context, ev models.TelemetryEvent) error {
	start := time.Now()
	err := i.Log.Append(ctx, ev)
	metrics.RecordAppend(i.Log.Name(), time.Since(start), err)
	return err
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
