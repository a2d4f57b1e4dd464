// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want 1h", cfg.Cache.TTL)
	}
	if cfg.Cache.Type != "memory" {
		t.Errorf("Cache.Type = %q, want memory", cfg.Cache.Type)
	}
	if cfg.Cache.KeyPrefix != "latest:" {
		t.Errorf("Cache.KeyPrefix = %q, want latest:", cfg.Cache.KeyPrefix)
	}
	if cfg.EventLog.AppendTimeout != 5*time.Second {
		t.Errorf("EventLog.AppendTimeout = %v, want 5s", cfg.EventLog.AppendTimeout)
	}
	if !cfg.WebSocket.AutoJoinDashboard {
		t.Error("WebSocket.AutoJoinDashboard should be true by default")
	}
	if cfg.MQTT.Enabled || cfg.NATS.Enabled {
		t.Error("MQTT and NATS should be disabled by default")
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "*" {
		t.Errorf("Security.CORSOrigins = %v, want [*]", cfg.Security.CORSOrigins)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadWithKoanf_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Server.Port != 3000 && os.Getenv("PORT") == "" && os.Getenv("HTTP_PORT") == "" {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Cache.TTL != time.Hour && os.Getenv("CACHE_TTL") == "" {
		t.Errorf("Cache.TTL = %v, want 1h", cfg.Cache.TTL)
	}
}

func TestLoadWithKoanf_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("PORT", "8088")
	t.Setenv("CACHE_TYPE", "redis")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("EVENTLOG_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://relay:relay@db:5432/relay")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("WS_AUTO_JOIN_DASHBOARD", "false")
	t.Setenv("UNRELATED_SETTING", "ignored")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 8088 {
		t.Errorf("Server.Port = %d, want 8088", cfg.Server.Port)
	}
	if cfg.Cache.Type != "redis" || cfg.Cache.TTL != 90*time.Second {
		t.Errorf("Cache = %+v, want redis with 90s TTL", cfg.Cache)
	}
	if cfg.Cache.RedisAddr() != "cache.internal:6380" {
		t.Errorf("RedisAddr() = %q", cfg.Cache.RedisAddr())
	}
	if cfg.EventLog.Type != "postgres" || !strings.HasPrefix(cfg.EventLog.DSN, "postgres://") {
		t.Errorf("EventLog = %+v", cfg.EventLog)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	if cfg.WebSocket.AutoJoinDashboard {
		t.Error("AutoJoinDashboard should be false after env override")
	}
}

func TestLoadWithKoanf_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 4000
cache:
  ttl: 30m
eventlog:
  type: duckdb
  path: ` + filepath.Join(dir, "events.duckdb") + `
logging:
  level: debug
  format: console
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Server.Port != 4000 && os.Getenv("PORT") == "" && os.Getenv("HTTP_PORT") == "" {
		t.Errorf("Server.Port = %d, want 4000 from file", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("Cache.TTL = %v, want 30m from file", cfg.Cache.TTL)
	}
	if cfg.EventLog.Type != "duckdb" {
		t.Errorf("EventLog.Type = %q, want duckdb", cfg.EventLog.Type)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want env override warn", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want console from file", cfg.Logging.Format)
	}
}

func TestLoadWithKoanf_InvalidFails(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("EVENTLOG_TYPE", "mongodb")

	_, err := LoadWithKoanf()
	if err == nil {
		t.Fatal("expected validation error for unknown eventlog type")
	}
	if !strings.Contains(err.Error(), "EVENTLOG_TYPE") {
		t.Errorf("error should name EVENTLOG_TYPE, got %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"PORT":                    "server.port",
		"REDIS_HOST":              "cache.redis_host",
		"DATABASE_URL":            "eventlog.dsn",
		"EVENTLOG_APPEND_TIMEOUT": "eventlog.append_timeout",
		"mqtt_topic":              "mqtt.topic",
		"HOME":                    "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}
