// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package models

import "time"

// DailySummary is a precomputed per-day rollup. The relay only reads these
// rows; whatever produces them runs outside this process.
type DailySummary struct {
	Date          time.Time `json:"date"`
	TotalDevices  int       `json:"totalDevices"`
	ActiveDevices int       `json:"activeDevices"`
	AverageSpeed  float64   `json:"averageSpeed"`
	TotalDistance float64   `json:"totalDistance"`
}
