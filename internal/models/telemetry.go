// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package models

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/tomtom215/trackrelay/internal/validation"
)

// Status is the reported activity state of a device.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Location is a WGS84 coordinate in decimal degrees.
type Location struct {
	Lat float64 `json:"lat" validate:"finite,latitude"`
	Lng float64 `json:"lng" validate:"finite,longitude"`
}

// TelemetryEvent is one normalized reading from a device. Values of this
// type are only produced by Normalize and are never mutated after being
// appended to the durable log.
type TelemetryEvent struct {
	DeviceID  string    `json:"deviceId" validate:"required,max=128,deviceid"`
	Timestamp time.Time `json:"timestamp" validate:"required,eventtime"`
	Location  Location  `json:"location"`
	// Speed is in metres per second and never negative.
	Speed float64 `json:"speed" validate:"finite,gte=0"`
	// Battery is the charge fraction in [0,1].
	Battery float64 `json:"battery" validate:"finite,gte=0,lte=1"`
	Status  Status  `json:"status" validate:"oneof=active inactive"`
}

// RawTelemetry is the inbound shape of a trackingData payload before
// normalization. Pointer fields distinguish absent from zero.
type RawTelemetry struct {
	DeviceID  string     `json:"deviceId"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Location  *Location  `json:"location"`
	Speed     *float64   `json:"speed,omitempty"`
	Battery   *float64   `json:"battery,omitempty"`
	Status    Status     `json:"status,omitempty"`
}

// ErrMissingLocation is returned by Normalize when the payload carries no
// location object at all.
var ErrMissingLocation = errors.New("location is required")

// Normalize turns a raw payload into a TelemetryEvent. Negative speed is
// clamped to 0, battery is clamped into [0,1] (platforms report -1 for
// unknown), a missing timestamp becomes now and a missing status becomes
// active. Normalize has no side effects.
func Normalize(raw *RawTelemetry, now time.Time) (TelemetryEvent, error) {
	if raw == nil {
		return TelemetryEvent{}, errors.New("empty telemetry payload")
	}
	if raw.Location == nil {
		return TelemetryEvent{}, ErrMissingLocation
	}

	ev := TelemetryEvent{
		DeviceID: strings.TrimSpace(raw.DeviceID),
		Location: *raw.Location,
		Status:   raw.Status,
	}

	if raw.Timestamp != nil && !raw.Timestamp.IsZero() {
		ev.Timestamp = raw.Timestamp.UTC()
	} else {
		ev.Timestamp = now.UTC()
	}

	if raw.Speed != nil {
		ev.Speed = *raw.Speed
		if ev.Speed < 0 {
			ev.Speed = 0
		}
	}

	if raw.Battery != nil {
		ev.Battery = clampFraction(*raw.Battery)
	}

	if ev.Status == "" {
		ev.Status = StatusActive
	}

	if verr := validation.ValidateStruct(&ev); verr != nil {
		return TelemetryEvent{}, verr
	}
	return ev, nil
}

func clampFraction(f float64) float64 {
	if math.IsNaN(f) {
		return f
	}
	return math.Max(0, math.Min(1, f))
}
