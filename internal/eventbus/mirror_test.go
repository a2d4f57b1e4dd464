// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/trackrelay/internal/breaker"
	"github.com/tomtom215/trackrelay/internal/config"
	"github.com/tomtom215/trackrelay/internal/models"
)

func sampleEvent() models.TelemetryEvent {
	return models.TelemetryEvent{
		DeviceID:  "abc",
		Timestamp: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
		Location:  models.Location{Lat: 10, Lng: 20},
		Speed:     5,
		Battery:   0.8,
		Status:    models.StatusActive,
	}
}

type failingPublisher struct {
	calls int
}

func (f *failingPublisher) Publish(string, ...*message.Message) error {
	f.calls++
	return errors.New("broker unreachable")
}

func (f *failingPublisher) Close() error { return nil }

func TestMirror_PublishesOnTopic(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	defer pubsub.Close()

	msgs, err := pubsub.Subscribe(context.Background(), "telemetry.test")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	mirror := NewMirror(pubsub, MirrorOptions{Topic: "telemetry.test"})
	ev := sampleEvent()
	if err := mirror.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		if msg.Metadata.Get("device_id") != "abc" {
			t.Errorf("Expected device_id metadata, got %q", msg.Metadata.Get("device_id"))
		}
		if msg.Metadata.Get(natsgo.MsgIdHdr) != msg.UUID {
			t.Error("Expected Nats-Msg-Id to match the message UUID")
		}
		var got models.TelemetryEvent
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if got != ev {
			t.Errorf("Payload mismatch: %+v vs %+v", got, ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestMirror_DefaultTopic(t *testing.T) {
	m := NewMirror(&failingPublisher{}, MirrorOptions{})
	if m.Topic() != "telemetry.events" {
		t.Errorf("Expected default topic, got %s", m.Topic())
	}
}

func TestMirror_BreakerOpens(t *testing.T) {
	pub := &failingPublisher{}
	m := NewMirror(pub, MirrorOptions{BreakerThreshold: 2, BreakerTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		if err := m.Publish(context.Background(), sampleEvent()); err == nil {
			t.Fatal("Expected publish error")
		}
	}

	err := m.Publish(context.Background(), sampleEvent())
	if !breaker.IsOpen(err) {
		t.Fatalf("Expected open breaker, got %v", err)
	}
	if pub.calls != 2 {
		t.Errorf("Open breaker must not reach the publisher, calls=%d", pub.calls)
	}
}

func TestMirror_Closed(t *testing.T) {
	m := NewMirror(&failingPublisher{}, MirrorOptions{})
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
	if err := m.Publish(context.Background(), sampleEvent()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func runNATSServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("create NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestNATSMirror_CoreNATS(t *testing.T) {
	ns := runNATSServer(t)

	nc, err := natsgo.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("telemetry.events")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	mirror, err := NewNATSMirror(config.NATSConfig{
		URL:            ns.ClientURL(),
		Topic:          "telemetry.events",
		PublishTimeout: 2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewNATSMirror: %v", err)
	}
	defer mirror.Close()

	ev := sampleEvent()
	if err := mirror.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	var got models.TelemetryEvent
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.DeviceID != "abc" || got.Location != ev.Location {
		t.Errorf("Unexpected payload %+v", got)
	}
	if msg.Header.Get("device_id") != "abc" {
		t.Errorf("Expected device_id header, got %q", msg.Header.Get("device_id"))
	}
}

func TestLoggerAdapter(t *testing.T) {
	logger := NewLoggerAdapter().With(watermill.LogFields{"topic": "x"})
	logger.Info("info", watermill.LogFields{"n": 1})
	logger.Debug("debug", nil)
	logger.Trace("trace", nil)
	logger.Error("error", errors.New("boom"), nil)
}
