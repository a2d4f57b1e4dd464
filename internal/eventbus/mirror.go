// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/trackrelay/internal/breaker"
	"github.com/tomtom215/trackrelay/internal/config"
	"github.com/tomtom215/trackrelay/internal/metrics"
	"github.com/tomtom215/trackrelay/internal/models"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("mirror is closed")

// MirrorOptions tunes a Mirror.
type MirrorOptions struct {
	Topic            string
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// Mirror republishes accepted telemetry to a message bus. It is
// best-effort: the relay logs its errors and carries on.
type Mirror struct {
	publisher message.Publisher
	topic     string
	breaker   *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

// NewMirror wraps any watermill publisher.
func NewMirror(pub message.Publisher, opts MirrorOptions) *Mirror {
	if opts.Topic == "" {
		opts.Topic = "telemetry.events"
	}
	return &Mirror{
		publisher: pub,
		topic:     opts.Topic,
		breaker: breaker.New[struct{}](breaker.Config{
			Name:             "nats-mirror",
			FailureThreshold: opts.BreakerThreshold,
			Timeout:          opts.BreakerTimeout,
		}),
	}
}

// NewNATSMirror connects a watermill NATS publisher. JetStream is used
// when cfg.JetStream is set, with the stream provisioned on first publish.
func NewNATSMirror(cfg config.NATSConfig, logger watermill.LoggerAdapter) (*Mirror, error) {
	if logger == nil {
		logger = NewLoggerAdapter()
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("trackrelay"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	if cfg.PublishTimeout > 0 {
		natsOpts = append(natsOpts, natsgo.Timeout(cfg.PublishTimeout))
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      !cfg.JetStream,
			AutoProvision: cfg.JetStream,
			TrackMsgId:    cfg.JetStream,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(2),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return NewMirror(pub, MirrorOptions{
		Topic:            cfg.Topic,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerTimeout:   cfg.BreakerTimeout,
	}), nil
}

// Publish sends ev on the mirror topic.
func (m *Mirror) Publish(ctx context.Context, ev models.TelemetryEvent) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("device_id", ev.DeviceID)
	msg.Metadata.Set("timestamp", ev.Timestamp.Format(time.RFC3339Nano))
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	msg.SetContext(ctx)

	_, err = m.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, m.publisher.Publish(m.topic, msg)
	})
	if err != nil {
		metrics.MirrorPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("mirror %s: %w", ev.DeviceID, err)
	}
	metrics.MirrorPublished.WithLabelValues("ok").Inc()
	return nil
}

// Topic returns the topic events are published on.
func (m *Mirror) Topic() string {
	return m.topic
}

// Close shuts the publisher down. Idempotent.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.publisher.Close()
}
