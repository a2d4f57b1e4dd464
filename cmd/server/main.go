// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/trackrelay/internal/api"
	"github.com/tomtom215/trackrelay/internal/config"
	"github.com/tomtom215/trackrelay/internal/eventbus"
	"github.com/tomtom215/trackrelay/internal/eventlog"
	"github.com/tomtom215/trackrelay/internal/logging"
	"github.com/tomtom215/trackrelay/internal/mqttingest"
	"github.com/tomtom215/trackrelay/internal/relay"
	"github.com/tomtom215/trackrelay/internal/supervisor"
	"github.com/tomtom215/trackrelay/internal/supervisor/services"
	ws "github.com/tomtom215/trackrelay/internal/websocket"
)

// eventLogGCInterval is how often badger value-log GC runs.
const eventLogGCInterval = 10 * time.Minute

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("eventlog", cfg.EventLog.Type).
		Str("cache", cfg.Cache.Type).
		Dur("cache_ttl", cfg.Cache.TTL).
		Bool("mqtt", cfg.MQTT.Enabled).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Starting trackrelay")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The durable log must be reachable before any event is accepted.
	store, err := eventlog.Open(ctx, cfg.EventLog)
	if err != nil {
		logging.Fatal().Err(err).Str("type", cfg.EventLog.Type).Msg("Failed to open event log")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event log")
		}
	}()
	logging.Info().Str("backend", store.Name()).Msg("Event log opened")

	snapshots, closeSnapshots := openSnapshotStore(cfg.Cache)
	defer closeSnapshots()

	hub := ws.NewHub()

	var mirror relay.Mirror
	if cfg.NATS.Enabled {
		m, err := eventbus.NewNATSMirror(cfg.NATS, eventbus.NewLoggerAdapter())
		if err != nil {
			// The mirror is best-effort; the relay runs without it.
			logging.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS mirror disabled")
		} else {
			mirror = m
			defer func() {
				if err := m.Close(); err != nil {
					logging.Warn().Err(err).Msg("Error closing NATS mirror")
				}
			}()
			logging.Info().Str("topic", m.Topic()).Msg("NATS mirror enabled")
		}
	}

	pipeline := relay.NewPipeline(eventlog.Instrument(store), snapshots, hub, mirror, relay.Options{
		AppendTimeout: cfg.EventLog.AppendTimeout,
	})

	wsHandler := ws.NewHandler(hub, pipeline, ws.HandlerOptions{
		Client: ws.ClientOptions{
			SendBuffer:      cfg.WebSocket.SendBuffer,
			MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
			IngestRate:      cfg.WebSocket.IngestRate,
			IngestBurst:     cfg.WebSocket.IngestBurst,
		},
		AutoJoinDashboard: cfg.WebSocket.AutoJoinDashboard,
		AllowedOrigins:    cfg.Security.CORSOrigins,
	})

	checks := map[string]api.Pinger{"eventlog": store}
	if p, ok := snapshots.(api.Pinger); ok {
		checks["cache"] = p
	}
	handler := api.NewHandler(store, snapshots, hub, checks)

	mwConfig := api.DefaultChiMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwConfig.RateLimitRequests = cfg.Security.RateLimitReqs
	mwConfig.RateLimitWindow = cfg.Security.RateLimitWindow
	mwConfig.RateLimitDisabled = cfg.Security.RateLimitDisabled
	router := api.NewRouter(handler, wsHandler, api.NewChiMiddleware(mwConfig))

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// === SUPERVISOR TREE ===

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Data layer
	if sweeper, ok := snapshots.(services.Sweeper); ok {
		tree.AddDataService(services.NewSnapshotSweepService(sweeper, cfg.Cache.SweepInterval))
	}
	if gc, ok := store.(services.GarbageCollector); ok {
		tree.AddDataService(services.NewEventLogGCService(gc, eventLogGCInterval))
	}

	// Messaging layer
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	if cfg.MQTT.Enabled {
		tree.AddMessagingService(mqttingest.NewSubscriber(cfg.MQTT, pipeline))
		logging.Info().Str("broker", cfg.MQTT.Broker).Str("topic", cfg.MQTT.Topic).Msg("MQTT ingest added")
	}

	// API layer
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Trackrelay stopped")
}
