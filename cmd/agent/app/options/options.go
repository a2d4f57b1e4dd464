// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package options

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/tomtom215/trackrelay/internal/agent"
	"github.com/tomtom215/trackrelay/internal/logging"
)

// AgentOptions holds every flag of the agent command.
type AgentOptions struct {
	Server string
	IDFile string

	// DeviceID overrides the persisted identity when set.
	DeviceID string

	Interval       time.Duration
	DistanceFilter float64
	QueueSize      int

	// Simulated platform.
	Deny    bool
	Lat     float64
	Lng     float64
	Heading float64
	Speed   float64
	Battery float64

	MinBackoff time.Duration
	MaxBackoff time.Duration

	LogLevel  string
	LogFormat string
}

// NewAgentOptions returns the defaults.
func NewAgentOptions() *AgentOptions {
	idFile := ".trackrelay/device-id"
	if home, err := os.UserHomeDir(); err == nil {
		idFile = filepath.Join(home, ".trackrelay", "device-id")
	}
	return &AgentOptions{
		Server:         "ws://127.0.0.1:3000/ws",
		IDFile:         idFile,
		Interval:       time.Second,
		DistanceFilter: agent.DefaultDistanceFilterMeters,
		QueueSize:      agent.DefaultQueueSize,
		Lat:            52.5200,
		Lng:            13.4050,
		Heading:        90,
		Speed:          12,
		Battery:        0.8,
		MinBackoff:     time.Second,
		MaxBackoff:     32 * time.Second,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// AddFlags registers the options on fs.
func (o *AgentOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Server, "server", o.Server, "Relay websocket URL.")
	fs.StringVar(&o.IDFile, "id-file", o.IDFile, "File holding the persistent device ID.")
	fs.StringVar(&o.DeviceID, "device-id", o.DeviceID, "Use this device ID instead of the persisted one.")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Time between location fixes.")
	fs.Float64Var(&o.DistanceFilter, "distance-filter", o.DistanceFilter, "Minimum meters between emitted fixes; 0 disables.")
	fs.IntVar(&o.QueueSize, "queue-size", o.QueueSize, "Fixes buffered while the relay is slow.")

	fs.BoolVar(&o.Deny, "deny", o.Deny, "Simulate the user denying location access.")
	fs.Float64Var(&o.Lat, "lat", o.Lat, "Starting latitude.")
	fs.Float64Var(&o.Lng, "lng", o.Lng, "Starting longitude.")
	fs.Float64Var(&o.Heading, "heading", o.Heading, "Direction of travel in degrees from north.")
	fs.Float64Var(&o.Speed, "speed", o.Speed, "Simulated speed in meters per second.")
	fs.Float64Var(&o.Battery, "battery", o.Battery, "Reported battery level between 0 and 1.")

	fs.DurationVar(&o.MinBackoff, "min-backoff", o.MinBackoff, "First reconnect delay.")
	fs.DurationVar(&o.MaxBackoff, "max-backoff", o.MaxBackoff, "Reconnect delay cap.")

	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "trace, debug, info, warn or error.")
	fs.StringVar(&o.LogFormat, "log-format", o.LogFormat, "json or console.")
}

// Validate reports every invalid flag at once.
func (o *AgentOptions) Validate() error {
	var errs []error

	u, err := url.Parse(o.Server)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("--server: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("--server must be a ws:// or wss:// URL, got %q", o.Server))
	}
	if o.DeviceID == "" && o.IDFile == "" {
		errs = append(errs, errors.New("--id-file is required unless --device-id is set"))
	}
	if o.Interval <= 0 {
		errs = append(errs, errors.New("--interval must be positive"))
	}
	if o.DistanceFilter < 0 || math.IsNaN(o.DistanceFilter) {
		errs = append(errs, errors.New("--distance-filter must not be negative"))
	}
	if o.Lat < -90 || o.Lat > 90 {
		errs = append(errs, errors.New("--lat must be between -90 and 90"))
	}
	if o.Lng < -180 || o.Lng > 180 {
		errs = append(errs, errors.New("--lng must be between -180 and 180"))
	}
	if o.Speed < 0 {
		errs = append(errs, errors.New("--speed must not be negative"))
	}
	if o.Battery < 0 || o.Battery > 1 {
		errs = append(errs, errors.New("--battery must be between 0 and 1"))
	}
	if !logging.ValidLevel(o.LogLevel) {
		errs = append(errs, fmt.Errorf("--log-level %q is not a valid level", o.LogLevel))
	}
	if o.LogFormat != "json" && o.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("--log-format must be json or console, got %q", o.LogFormat))
	}
	return errors.Join(errs...)
}
