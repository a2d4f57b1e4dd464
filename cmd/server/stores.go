// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package main

import (
	"context"

	"github.com/tomtom215/trackrelay/internal/cache"
	"github.com/tomtom215/trackrelay/internal/config"
	"github.com/tomtom215/trackrelay/internal/logging"
)

// openSnapshotStore builds the snapshot cache named by cfg.Type. An
// unreachable redis is not fatal: snapshot failures never block the relay,
// and the breaker keeps retries cheap until redis comes back.
func openSnapshotStore(cfg config.CacheConfig) (cache.SnapshotStore, func()) {
	if cfg.Type != "redis" {
		logging.Info().Dur("ttl", cfg.TTL).Msg("Using in-memory snapshot cache")
		return cache.NewMemorySnapshotStore(cfg.TTL), func() {}
	}

	client := cache.NewRedisClient(cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB, cfg.OpTimeout)
	store := cache.NewRedisSnapshotStore(client, cache.RedisOptions{
		KeyPrefix:        cfg.KeyPrefix,
		TTL:              cfg.TTL,
		OpTimeout:        cfg.OpTimeout,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerTimeout:   cfg.BreakerTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OpTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logging.Warn().Err(err).Str("addr", cfg.RedisAddr()).Msg("Redis snapshot cache unreachable, continuing")
	} else {
		logging.Info().Str("addr", cfg.RedisAddr()).Dur("ttl", cfg.TTL).Msg("Using redis snapshot cache")
	}

	return store, func() {
		if err := store.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing redis client")
		}
	}
}
