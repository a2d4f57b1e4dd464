// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/trackrelay/internal/breaker"
	"github.com/tomtom215/trackrelay/internal/metrics"
	"github.com/tomtom215/trackrelay/internal/models"
)

// RedisOptions configures a RedisSnapshotStore.
type RedisOptions struct {
	// KeyPrefix is prepended to the device ID. Default "latest:".
	KeyPrefix string

	TTL time.Duration

	// OpTimeout bounds each redis round trip.
	OpTimeout time.Duration

	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// RedisSnapshotStore keeps snapshots in redis as SET key value EX ttl, so
// expiry is enforced by redis itself.
type RedisSnapshotStore struct {
	client  redis.UniversalClient
	opts    RedisOptions
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewRedisSnapshotStore wraps an existing client.
func NewRedisSnapshotStore(client redis.UniversalClient, opts RedisOptions) *RedisSnapshotStore {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "latest:"
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 500 * time.Millisecond
	}
	return &RedisSnapshotStore{
		client: client,
		opts:   opts,
		breaker: breaker.New[[]byte](breaker.Config{
			Name:             "redis-snapshots",
			FailureThreshold: opts.BreakerThreshold,
			Timeout:          opts.BreakerTimeout,
		}),
	}
}

// NewRedisClient builds a go-redis client for addr.
func NewRedisClient(addr, password string, db int, opTimeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  opTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
		MaxRetries:   1,
	})
}

func (r *RedisSnapshotStore) key(deviceID string) string {
	return r.opts.KeyPrefix + deviceID
}

// Put writes ev as the latest snapshot for deviceID.
func (r *RedisSnapshotStore) Put(ctx context.Context, deviceID string, ev models.TelemetryEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.OpTimeout)
	defer cancel()

	_, err = r.breaker.Execute(func() ([]byte, error) {
		return nil, r.client.Set(ctx, r.key(deviceID), data, r.opts.TTL).Err()
	})
	if err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrUnavailable, r.key(deviceID), err)
	}
	return nil
}

// Get reads the latest snapshot for deviceID.
func (r *RedisSnapshotStore) Get(ctx context.Context, deviceID string) (models.TelemetryEvent, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.OpTimeout)
	defer cancel()

	data, err := r.breaker.Execute(func() ([]byte, error) {
		b, err := r.client.Get(ctx, r.key(deviceID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		metrics.RecordSnapshotLookup("redis", false, err)
		return models.TelemetryEvent{}, false, fmt.Errorf("%w: get %s: %w", ErrUnavailable, r.key(deviceID), err)
	}
	if data == nil {
		metrics.RecordSnapshotLookup("redis", false, nil)
		return models.TelemetryEvent{}, false, nil
	}

	var ev models.TelemetryEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		metrics.RecordSnapshotLookup("redis", false, err)
		return models.TelemetryEvent{}, false, fmt.Errorf("decode snapshot %s: %w", deviceID, err)
	}
	metrics.RecordSnapshotLookup("redis", true, nil)
	return ev, true, nil
}

// Ping checks connectivity for readiness probes.
func (r *RedisSnapshotStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisSnapshotStore) Close() error {
	return r.client.Close()
}
