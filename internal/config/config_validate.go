// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/trackrelay/internal/logging"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateWebSocket(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateEventLog(); err != nil {
		return err
	}
	if err := c.validateMQTT(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	if c.WebSocket.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be at least 1")
	}
	if c.WebSocket.MaxMessageBytes < 1024 {
		return fmt.Errorf("WS_MAX_MESSAGE_BYTES must be at least 1024")
	}
	if c.WebSocket.IngestRate < 0 {
		return fmt.Errorf("WS_INGEST_RATE must not be negative")
	}
	if c.WebSocket.IngestRate > 0 && c.WebSocket.IngestBurst < 1 {
		return fmt.Errorf("WS_INGEST_BURST must be at least 1 when WS_INGEST_RATE is set")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	switch c.Cache.Type {
	case "memory":
		if c.Cache.SweepInterval <= 0 {
			return fmt.Errorf("CACHE_SWEEP_INTERVAL must be positive")
		}
	case "redis":
		if c.Cache.RedisHost == "" {
			return fmt.Errorf("REDIS_HOST is required when CACHE_TYPE=redis")
		}
		if c.Cache.RedisPort < 1 || c.Cache.RedisPort > 65535 {
			return fmt.Errorf("REDIS_PORT must be between 1 and 65535")
		}
		if c.Cache.OpTimeout <= 0 {
			return fmt.Errorf("CACHE_OP_TIMEOUT must be positive")
		}
	default:
		return fmt.Errorf("CACHE_TYPE must be memory or redis, got %q", c.Cache.Type)
	}
	return nil
}

func (c *Config) validateEventLog() error {
	if c.EventLog.AppendTimeout <= 0 {
		return fmt.Errorf("EVENTLOG_APPEND_TIMEOUT must be positive")
	}
	switch c.EventLog.Type {
	case "badger", "duckdb":
		if c.EventLog.Path == "" {
			return fmt.Errorf("EVENTLOG_PATH is required when EVENTLOG_TYPE=%s", c.EventLog.Type)
		}
	case "postgres":
		if c.EventLog.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required when EVENTLOG_TYPE=postgres")
		}
		if c.EventLog.MaxConns < 1 {
			return fmt.Errorf("EVENTLOG_MAX_CONNS must be at least 1")
		}
	default:
		return fmt.Errorf("EVENTLOG_TYPE must be badger, postgres or duckdb, got %q", c.EventLog.Type)
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if !c.MQTT.Enabled {
		return nil
	}
	if err := validateBrokerURL(c.MQTT.Broker, "MQTT_BROKER", "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts"); err != nil {
		return err
	}
	if c.MQTT.Topic == "" {
		return fmt.Errorf("MQTT_TOPIC is required when MQTT_ENABLED=true")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if err := validateBrokerURL(c.NATS.URL, "NATS_URL", "nats", "tls"); err != nil {
		return err
	}
	if c.NATS.Topic == "" {
		return fmt.Errorf("NATS_TOPIC is required when NATS_ENABLED=true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

func validateBrokerURL(raw, name string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", name, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %s", name, strings.Join(schemes, ", "))
}
