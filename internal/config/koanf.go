// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/trackrelay/config.yaml",
	"/etc/trackrelay/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			AutoJoinDashboard: true,
			SendBuffer:        256,
			MaxMessageBytes:   64 * 1024,
			IngestRate:        20,
			IngestBurst:       40,
		},
		Cache: CacheConfig{
			Type:             "memory",
			TTL:              time.Hour,
			SweepInterval:    5 * time.Minute,
			RedisHost:        "127.0.0.1",
			RedisPort:        6379,
			KeyPrefix:        "latest:",
			OpTimeout:        500 * time.Millisecond,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		EventLog: EventLogConfig{
			Type:          "badger",
			Path:          "./data/eventlog",
			AppendTimeout: 5 * time.Second,
			SyncWrites:    true,
			MaxConns:      10,
			Migrate:       true,
		},
		MQTT: MQTTConfig{
			Enabled:        false,
			Broker:         "tcp://127.0.0.1:1883",
			ClientID:       "trackrelay",
			Topic:          "tracking/+",
			QoS:            1,
			ConnectTimeout: 10 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:          false,
			URL:              "nats://127.0.0.1:4222",
			Topic:            "telemetry.events",
			JetStream:        true,
			PublishTimeout:   2 * time.Second,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults
//  2. Optional YAML config file
//  3. Environment variables
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// REDIS_HOST -> cache.redis_host, EVENTLOG_TYPE -> eventlog.type
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated env strings into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// PORT, REDIS_HOST, REDIS_PORT and DATABASE_URL keep the names earlier
// deployments of the relay used.
var envMappings = map[string]string{
	// Server
	"port":                    "server.port",
	"http_port":               "server.port",
	"http_host":               "server.host",
	"http_read_timeout":       "server.read_timeout",
	"http_write_timeout":      "server.write_timeout",
	"http_idle_timeout":       "server.idle_timeout",
	"http_shutdown_timeout":   "server.shutdown_timeout",
	"ws_auto_join_dashboard":  "websocket.auto_join_dashboard",
	"ws_send_buffer":          "websocket.send_buffer",
	"ws_max_message_bytes":    "websocket.max_message_bytes",
	"ws_ingest_rate":          "websocket.ingest_rate",
	"ws_ingest_burst":         "websocket.ingest_burst",

	// Snapshot cache
	"cache_type":              "cache.type",
	"cache_ttl":               "cache.ttl",
	"cache_sweep_interval":    "cache.sweep_interval",
	"redis_host":              "cache.redis_host",
	"redis_port":              "cache.redis_port",
	"redis_password":          "cache.redis_password",
	"redis_db":                "cache.redis_db",
	"cache_key_prefix":        "cache.key_prefix",
	"cache_op_timeout":        "cache.op_timeout",
	"cache_breaker_threshold": "cache.breaker_threshold",
	"cache_breaker_timeout":   "cache.breaker_timeout",

	// Durable log
	"eventlog_type":           "eventlog.type",
	"eventlog_path":           "eventlog.path",
	"database_url":            "eventlog.dsn",
	"eventlog_dsn":            "eventlog.dsn",
	"eventlog_append_timeout": "eventlog.append_timeout",
	"eventlog_sync_writes":    "eventlog.sync_writes",
	"eventlog_max_conns":      "eventlog.max_conns",
	"eventlog_migrate":        "eventlog.migrate",

	// MQTT
	"mqtt_enabled":         "mqtt.enabled",
	"mqtt_broker":          "mqtt.broker",
	"mqtt_client_id":       "mqtt.client_id",
	"mqtt_topic":           "mqtt.topic",
	"mqtt_qos":             "mqtt.qos",
	"mqtt_username":        "mqtt.username",
	"mqtt_password":        "mqtt.password",
	"mqtt_connect_timeout": "mqtt.connect_timeout",

	// NATS
	"nats_enabled":           "nats.enabled",
	"nats_url":               "nats.url",
	"nats_topic":             "nats.topic",
	"nats_jetstream":         "nats.jetstream",
	"nats_publish_timeout":   "nats.publish_timeout",
	"nats_breaker_threshold": "nats.breaker_threshold",
	"nats_breaker_timeout":   "nats.breaker_timeout",

	// Security
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped so unrelated environment
// never leaks into the config.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
