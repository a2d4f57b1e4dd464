// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package mqttingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"

	"github.com/tomtom215/trackrelay/internal/config"
	"github.com/tomtom215/trackrelay/internal/logging"
	"github.com/tomtom215/trackrelay/internal/metrics"
	"github.com/tomtom215/trackrelay/internal/models"
)

// Source labels MQTT-originated telemetry.
const Source = "mqtt"

// DefaultQueueSize bounds decoded messages waiting for the relay.
const DefaultQueueSize = 1024

// Consumer drains a queue of raw telemetry into the relay.
type Consumer interface {
	Consume(ctx context.Context, source string, in <-chan *models.RawTelemetry) error
}

// Subscriber receives telemetry published to an MQTT topic filter.
//
// Paho invokes the message handler on its own goroutine. The handler only
// decodes and enqueues; Serve drains the queue into the relay so a slow
// durable log never stalls the MQTT connection. A full queue drops the
// incoming message.
type Subscriber struct {
	cfg      config.MQTTConfig
	consumer Consumer
	queue    chan *models.RawTelemetry

	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewSubscriber creates a subscriber for cfg.Topic.
func NewSubscriber(cfg config.MQTTConfig, consumer Consumer) *Subscriber {
	return &Subscriber{
		cfg:       cfg,
		consumer:  consumer,
		queue:     make(chan *models.RawTelemetry, DefaultQueueSize),
		newClient: mqtt.NewClient,
	}
}

// Serve connects, subscribes and relays until ctx is canceled. It
// implements suture.Service.
func (s *Subscriber) Serve(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetUsername(s.cfg.Username)
	opts.SetPassword(s.cfg.Password)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	// Resubscribe after every (re)connect; a clean session drops subscriptions.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
		if token.WaitTimeout(s.timeout()) && token.Error() != nil {
			logging.Error().Err(token.Error()).Str("topic", s.cfg.Topic).Msg("MQTT subscribe failed")
			return
		}
		logging.Info().Str("broker", s.cfg.Broker).Str("topic", s.cfg.Topic).Msg("MQTT ingest subscribed")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.Warn().Err(err).Str("broker", s.cfg.Broker).Msg("MQTT connection lost")
	})

	client := s.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(s.timeout()) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect %s: timed out", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.cfg.Broker, err)
	}
	defer client.Disconnect(250)

	err := s.consumer.Consume(ctx, Source, s.queue)
	if errors.Is(err, context.Canceled) {
		logging.Info().Str("component", "mqtt-ingest").Msg("MQTT ingest stopped")
	}
	return err
}

func (s *Subscriber) timeout() time.Duration {
	if s.cfg.ConnectTimeout > 0 {
		return s.cfg.ConnectTimeout
	}
	return 10 * time.Second
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	raw, err := decode(msg.Topic(), msg.Payload())
	if err != nil {
		metrics.IngestTotal.WithLabelValues(Source, metrics.ResultInvalid).Inc()
		logging.Warn().Err(err).Str("topic", msg.Topic()).Msg("discarding undecodable MQTT payload")
		return
	}

	select {
	case s.queue <- raw:
	default:
		metrics.IngestTotal.WithLabelValues(Source, "dropped").Inc()
		logging.Warn().Str("device_id", raw.DeviceID).Msg("MQTT ingest queue full, dropping message")
	}
}

// decode parses payload as RawTelemetry. When the payload has no device ID
// the last topic level is used, so tracking/<id> works for bare payloads.
func decode(topic string, payload []byte) (*models.RawTelemetry, error) {
	var raw models.RawTelemetry
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode telemetry: %w", err)
	}
	if strings.TrimSpace(raw.DeviceID) == "" {
		if i := strings.LastIndexByte(topic, '/'); i >= 0 && i < len(topic)-1 {
			raw.DeviceID = topic[i+1:]
		}
	}
	return &raw, nil
}

// String names the service in supervisor logs.
func (s *Subscriber) String() string {
	return "mqtt-ingest"
}
