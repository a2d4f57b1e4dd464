// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/trackrelay/internal/logging"
	"github.com/tomtom215/trackrelay/internal/models"
)

// PostgresOptions configures PostgresLog.
type PostgresOptions struct {
	DSN      string
	MaxConns int32

	// Migrate applies the embedded schema before the pool is opened.
	Migrate bool
}

// PostgresLog stores events in a telemetry_events table.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, opts PostgresOptions) (*PostgresLog, error) {
	if opts.Migrate {
		if err := RunMigrations(opts.DSN); err != nil {
			return nil, err
		}
	}

	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}

	logging.Info().
		Str("host", cfg.ConnConfig.Host).
		Str("database", cfg.ConnConfig.Database).
		Int32("max_conns", cfg.MaxConns).
		Msg("Postgres event log connected")

	return &PostgresLog{pool: pool}, nil
}

// Name implements Log.
func (p *PostgresLog) Name() string { return BackendPostgres }

// Append implements Log.
func (p *PostgresLog) Append(ctx context.Context, ev models.TelemetryEvent) error {
	const q = `INSERT INTO telemetry_events (device_id, ts, lat, lng, speed, battery, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := p.pool.Exec(ctx, q,
		ev.DeviceID, ev.Timestamp, ev.Location.Lat, ev.Location.Lng, ev.Speed, ev.Battery, string(ev.Status))
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.DeviceID, err)
	}
	return nil
}

// ListDeviceIDs implements Querier.
func (p *PostgresLog) ListDeviceIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT device_id FROM telemetry_events ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return ids, nil
}

// History implements Querier.
func (p *PostgresLog) History(ctx context.Context, deviceID string, limit int) ([]models.TelemetryEvent, error) {
	const q = `SELECT device_id, ts, lat, lng, speed, battery, status
		FROM telemetry_events WHERE device_id = $1
		ORDER BY ts DESC, id DESC LIMIT $2`

	rows, err := p.pool.Query(ctx, q, deviceID, clampLimit(limit, DefaultHistoryLimit))
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", deviceID, err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TelemetryEvent, error) {
		var (
			ev     models.TelemetryEvent
			status string
		)
		err := row.Scan(&ev.DeviceID, &ev.Timestamp, &ev.Location.Lat, &ev.Location.Lng, &ev.Speed, &ev.Battery, &status)
		ev.Timestamp = ev.Timestamp.UTC()
		ev.Status = models.Status(status)
		return ev, err
	})
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", deviceID, err)
	}
	return events, nil
}

// RecentAnalytics implements Querier.
func (p *PostgresLog) RecentAnalytics(ctx context.Context, limit int) ([]models.DailySummary, error) {
	const q = `SELECT date, total_devices, active_devices, average_speed, total_distance
		FROM analytics ORDER BY date DESC LIMIT $1`

	rows, err := p.pool.Query(ctx, q, clampLimit(limit, 30))
	if err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.DailySummary, error) {
		var (
			s    models.DailySummary
			date time.Time
		)
		err := row.Scan(&date, &s.TotalDevices, &s.ActiveDevices, &s.AverageSpeed, &s.TotalDistance)
		s.Date = date.UTC()
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}
	return out, nil
}

// Ping implements Store.
func (p *PostgresLog) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close implements Log.
func (p *PostgresLog) Close() error {
	p.pool.Close()
	return nil
}
