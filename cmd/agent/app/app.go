// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/trackrelay/cmd/agent/app/options"
	"github.com/tomtom215/trackrelay/internal/agent"
	"github.com/tomtom215/trackrelay/internal/logging"
)

const (
	commandName = "trackrelay-agent"
	commandDesc = `The trackrelay agent runs on a device, asks for location access,
and streams location fixes to a trackrelay server over a websocket. It keeps
a persistent device ID and reconnects with backoff when the server is away.`
)

// NewAgentCommand builds the root command. ctx ends the agent.
func NewAgentCommand(ctx context.Context) *cobra.Command {
	opts := options.NewAgentOptions()
	cmd := &cobra.Command{
		Use:          commandName,
		Short:        "Stream device location to a trackrelay server",
		Long:         commandDesc,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			return run(ctx, opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, opts *options.AgentOptions) error {
	logging.Init(logging.Config{
		Level:     opts.LogLevel,
		Format:    opts.LogFormat,
		Timestamp: true,
		Output:    os.Stderr,
	})

	deviceID := opts.DeviceID
	if deviceID == "" {
		id, err := agent.LoadOrCreateDeviceID(ctx, opts.IDFile, agent.PlatformHostID)
		if err != nil {
			return fmt.Errorf("failed to load device ID: %w", err)
		}
		deviceID = id
	}

	transport := agent.NewWSTransport(opts.Server, agent.TransportOptions{
		MinBackoff: opts.MinBackoff,
		MaxBackoff: opts.MaxBackoff,
	})
	location := &agent.SimulatedLocation{
		Lat:      opts.Lat,
		Lng:      opts.Lng,
		Heading:  opts.Heading,
		Speed:    opts.Speed,
		Interval: opts.Interval,
	}

	a := agent.New(
		deviceID,
		agent.NewStaticPermissions(!opts.Deny),
		location,
		agent.StaticBattery(opts.Battery),
		transport,
		agent.Options{
			DistanceFilterMeters: opts.DistanceFilter,
			QueueSize:            opts.QueueSize,
		},
	)

	logging.Info().Str("device_id", deviceID).Str("server", opts.Server).Msg("Starting agent")

	if err := a.RequestTrackingStart(ctx); err != nil {
		return fmt.Errorf("failed to start tracking: %w", err)
	}
	if a.State() != agent.StateTracking {
		logging.Warn().Str("state", a.State()).Msg("Location access not granted, nothing to stream")
		return nil
	}

	<-ctx.Done()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logging.Warn().Err(err).Msg("Agent did not stop cleanly")
	}

	stats := a.Stats()
	logging.Info().
		Uint64("emitted", stats.Emitted).
		Uint64("filtered", stats.Filtered).
		Uint64("dropped_disconnected", stats.Disconnected).
		Uint64("dropped_backpressure", stats.Backpressure).
		Uint64("emit_errors", stats.EmitErrors).
		Msg("Agent stopped")
	return nil
}
