// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the complete relay server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	WebSocket WebSocketConfig `koanf:"websocket"`
	Cache     CacheConfig     `koanf:"cache"`
	EventLog  EventLogConfig  `koanf:"eventlog"`
	MQTT      MQTTConfig      `koanf:"mqtt"` // Optional: MQTT ingest path alongside the websocket
	NATS      NATSConfig      `koanf:"nats"` // Optional: mirror accepted events to NATS JetStream
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig controls the HTTP listener that serves /ws and the read API.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// WebSocketConfig controls connection handling and room defaults.
type WebSocketConfig struct {
	// AutoJoinDashboard puts every new connection in the dashboard room.
	AutoJoinDashboard bool `koanf:"auto_join_dashboard"`

	// SendBuffer is the per-connection outbound queue depth. A member whose
	// queue is full misses that message.
	SendBuffer int `koanf:"send_buffer"`

	// MaxMessageBytes caps inbound frame size.
	MaxMessageBytes int64 `koanf:"max_message_bytes"`

	// IngestRate and IngestBurst bound trackingData frames per connection.
	IngestRate  float64 `koanf:"ingest_rate"`
	IngestBurst int     `koanf:"ingest_burst"`
}

// CacheConfig selects and tunes the snapshot cache.
type CacheConfig struct {
	// Type is memory or redis.
	Type string        `koanf:"type"`
	TTL  time.Duration `koanf:"ttl"`

	// SweepInterval is how often the memory store drops expired entries.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	RedisHost     string        `koanf:"redis_host"`
	RedisPort     int           `koanf:"redis_port"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	KeyPrefix     string        `koanf:"key_prefix"`
	OpTimeout     time.Duration `koanf:"op_timeout"`

	// Circuit breaker around the redis store.
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// RedisAddr returns host:port for the redis client.
func (c CacheConfig) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
}

// EventLogConfig selects the durable log backend.
type EventLogConfig struct {
	// Type is badger, postgres or duckdb.
	Type string `koanf:"type"`

	// Path is the on-disk location for badger (directory) and duckdb (file).
	Path string `koanf:"path"`

	// DSN is the postgres connection string.
	DSN string `koanf:"dsn"`

	// AppendTimeout bounds a single append. Fan-out waits on it.
	AppendTimeout time.Duration `koanf:"append_timeout"`

	// SyncWrites makes badger fsync every append.
	SyncWrites bool `koanf:"sync_writes"`

	// MaxConns caps the postgres pool.
	MaxConns int32 `koanf:"max_conns"`

	// Migrate runs embedded schema migrations on startup (postgres).
	Migrate bool `koanf:"migrate"`
}

// MQTTConfig enables ingest from an MQTT broker.
type MQTTConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Broker         string        `koanf:"broker"`
	ClientID       string        `koanf:"client_id"`
	Topic          string        `koanf:"topic"`
	QoS            byte          `koanf:"qos"`
	Username       string        `koanf:"username"`
	Password       string        `koanf:"password"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// NATSConfig enables the best-effort event mirror.
type NATSConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url"`
	Topic            string        `koanf:"topic"`
	JetStream        bool          `koanf:"jetstream"`
	PublishTimeout   time.Duration `koanf:"publish_timeout"`
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// SecurityConfig holds CORS and rate-limit settings for the HTTP surface.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig mirrors logging.Config for file/env loading.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}
