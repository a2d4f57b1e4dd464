// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package agent

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/tomtom215/trackrelay/internal/models"
)

// Authorization is the platform's location permission status.
type Authorization int

const (
	AuthorizationNotDetermined Authorization = iota
	AuthorizationDenied
	AuthorizationGranted
)

// Permissions is the platform location-permission API.
type Permissions interface {
	Status() Authorization

	// Request prompts for access and blocks until the user answers.
	Request(ctx context.Context) (granted bool, err error)
}

// Fix is one location reading.
type Fix struct {
	Lat float64
	Lng float64

	// Speed is meters per second. Negative means the platform could not
	// measure it; the relay clamps it to 0.
	Speed float64

	Timestamp time.Time
}

// LocationSource pushes fixes while started. Start must not block; the
// source stops sending when ctx is canceled or Stop is called.
type LocationSource interface {
	Start(ctx context.Context, out chan<- Fix) error
	Stop()
}

// BatteryReader reports the battery charge as a fraction in [0,1].
type BatteryReader interface {
	Level() float64
}

// Transport is the agent's persistent connection to the relay. It
// reconnects on its own once opened, calling the OnConnect hook after each
// successful connect.
type Transport interface {
	Open(ctx context.Context) error
	Close()
	IsOpen() bool
	Emit(ctx context.Context, msg models.Outbound) error
	OnConnect(fn func())
}

// StaticPermissions answers every request with a fixed decision.
type StaticPermissions struct {
	mu      sync.Mutex
	status  Authorization
	granted bool
}

// NewStaticPermissions returns permissions that start NotDetermined and
// grant or deny on request.
func NewStaticPermissions(grant bool) *StaticPermissions {
	return &StaticPermissions{granted: grant}
}

// Status implements Permissions.
func (p *StaticPermissions) Status() Authorization {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Request implements Permissions.
func (p *StaticPermissions) Request(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.granted {
		p.status = AuthorizationGranted
	} else {
		p.status = AuthorizationDenied
	}
	return p.granted, nil
}

// SimulatedLocation walks a straight line from a start point, one fix per
// interval.
type SimulatedLocation struct {
	Lat, Lng float64

	// Heading in degrees clockwise from north.
	Heading float64

	// Speed is meters per second.
	Speed float64

	Interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Start implements LocationSource.
func (s *SimulatedLocation) Start(ctx context.Context, out chan<- Fix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		lat, lng := s.Lat, s.Lng
		step := s.Speed * interval.Seconds()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				lat, lng = Offset(lat, lng, s.Heading, step)
				select {
				case out <- Fix{Lat: lat, Lng: lng, Speed: s.Speed, Timestamp: now.UTC()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return nil
}

// Stop implements LocationSource.
func (s *SimulatedLocation) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// StaticBattery always reports the same level.
type StaticBattery float64

// Level implements BatteryReader.
func (b StaticBattery) Level() float64 {
	return float64(b)
}

const earthRadiusMeters = 6371008.8

// Distance returns the great-circle distance between two fixes in meters.
func Distance(a, b Fix) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Offset moves a point meters along heading (degrees from north).
func Offset(lat, lng, heading, meters float64) (float64, float64) {
	d := meters / earthRadiusMeters
	brg := heading * math.Pi / 180
	lat1 := lat * math.Pi / 180
	lng1 := lng * math.Pi / 180

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(math.Sin(brg)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	return lat2 * 180 / math.Pi, lng2 * 180 / math.Pi
}
