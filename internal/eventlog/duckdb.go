// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/trackrelay/internal/logging"
	"github.com/tomtom215/trackrelay/internal/models"
)

// Timestamps are stored as naive UTC so no ICU extension is needed.
var duckdbSchema = []string{
	`CREATE SEQUENCE IF NOT EXISTS telemetry_events_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS telemetry_events (
		id       BIGINT PRIMARY KEY DEFAULT nextval('telemetry_events_id_seq'),
		device_id VARCHAR NOT NULL,
		ts        TIMESTAMP NOT NULL,
		lat       DOUBLE NOT NULL,
		lng       DOUBLE NOT NULL,
		speed     DOUBLE NOT NULL DEFAULT 0,
		battery   DOUBLE NOT NULL DEFAULT 0,
		status    VARCHAR NOT NULL DEFAULT 'active'
	)`,
	`CREATE INDEX IF NOT EXISTS telemetry_events_device_idx ON telemetry_events (device_id)`,
	`CREATE TABLE IF NOT EXISTS analytics (
		date           DATE PRIMARY KEY,
		total_devices  INTEGER NOT NULL DEFAULT 0,
		active_devices INTEGER NOT NULL DEFAULT 0,
		average_speed  DOUBLE NOT NULL DEFAULT 0,
		total_distance DOUBLE NOT NULL DEFAULT 0
	)`,
}

// DuckDBLog stores events in an embedded DuckDB file, which also makes the
// analytics table queryable in place.
type DuckDBLog struct {
	conn *sql.DB
}

// OpenDuckDB opens the database at path and creates the schema. An empty
// path opens an in-memory database.
func OpenDuckDB(ctx context.Context, path string) (*DuckDBLog, error) {
	// Auto-install/auto-load stay off; nothing here needs an extension.
	connStr := fmt.Sprintf("%s?access_mode=read_write&autoinstall_known_extensions=false&autoload_known_extensions=false", path)
	if path == "" {
		connStr = "?autoinstall_known_extensions=false&autoload_known_extensions=false"
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open duckdb event log: %w", err)
	}

	for _, stmt := range duckdbSchema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("create duckdb schema: %w", err)
		}
	}

	logging.Info().Str("path", path).Msg("DuckDB event log opened")
	return &DuckDBLog{conn: conn}, nil
}

// Name implements Log.
func (d *DuckDBLog) Name() string { return BackendDuckDB }

// Append implements Log.
func (d *DuckDBLog) Append(ctx context.Context, ev models.TelemetryEvent) error {
	const q = `INSERT INTO telemetry_events (device_id, ts, lat, lng, speed, battery, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := d.conn.ExecContext(ctx, q,
		ev.DeviceID, ev.Timestamp.UTC(), ev.Location.Lat, ev.Location.Lng, ev.Speed, ev.Battery, string(ev.Status))
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.DeviceID, err)
	}
	return nil
}

// ListDeviceIDs implements Querier.
func (d *DuckDBLog) ListDeviceIDs(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT DISTINCT device_id FROM telemetry_events ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan device id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// History implements Querier.
func (d *DuckDBLog) History(ctx context.Context, deviceID string, limit int) ([]models.TelemetryEvent, error) {
	const q = `SELECT device_id, ts, lat, lng, speed, battery, status
		FROM telemetry_events WHERE device_id = ?
		ORDER BY ts DESC, id DESC LIMIT ?`

	rows, err := d.conn.QueryContext(ctx, q, deviceID, clampLimit(limit, DefaultHistoryLimit))
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", deviceID, err)
	}
	defer rows.Close()

	events := []models.TelemetryEvent{}
	for rows.Next() {
		var (
			ev     models.TelemetryEvent
			status string
		)
		if err := rows.Scan(&ev.DeviceID, &ev.Timestamp, &ev.Location.Lat, &ev.Location.Lng, &ev.Speed, &ev.Battery, &status); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		ev.Status = models.Status(status)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecentAnalytics implements Querier.
func (d *DuckDBLog) RecentAnalytics(ctx context.Context, limit int) ([]models.DailySummary, error) {
	const q = `SELECT date, total_devices, active_devices, average_speed, total_distance
		FROM analytics ORDER BY date DESC LIMIT ?`

	rows, err := d.conn.QueryContext(ctx, q, clampLimit(limit, 30))
	if err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}
	defer rows.Close()

	out := []models.DailySummary{}
	for rows.Next() {
		var (
			s    models.DailySummary
			date time.Time
		)
		if err := rows.Scan(&date, &s.TotalDevices, &s.ActiveDevices, &s.AverageSpeed, &s.TotalDistance); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Date = date.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Ping implements Store.
func (d *DuckDBLog) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Close implements Log.
func (d *DuckDBLog) Close() error {
	return d.conn.Close()
}
