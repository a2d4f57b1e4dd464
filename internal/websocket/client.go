// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/trackrelay/internal/logging"
	"github.com/tomtom215/trackrelay/internal/metrics"
	"github.com/tomtom215/trackrelay/internal/models"
	"github.com/tomtom215/trackrelay/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultSendBuffer      = 256
	defaultMaxMessageBytes = 64 * 1024
)

// Error codes carried in error frames.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodePersistence = "PERSISTENCE_ERROR"
	CodeRateLimited = "RATE_LIMITED"
	CodeBadRequest  = "BAD_REQUEST"
)

// IngestSource labels websocket-originated telemetry in metrics and logs.
const IngestSource = "websocket"

// clientIDCounter hands out unique, monotonically increasing connection IDs.
var clientIDCounter atomic.Uint64

// Ingester is the relay entry point a client feeds trackingData into.
type Ingester interface {
	Ingest(ctx context.Context, source string, raw *models.RawTelemetry) (models.TelemetryEvent, error)
}

// ClientOptions tunes one connection.
type ClientOptions struct {
	SendBuffer      int
	MaxMessageBytes int64

	// IngestRate is trackingData frames per second; 0 disables the limit.
	IngestRate  float64
	IngestBurst int
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id       uint64
	hub      *Hub
	conn     *websocket.Conn
	ingester Ingester
	limiter  *rate.Limiter
	opts     ClientOptions

	mu     sync.Mutex
	send   chan models.Outbound
	closed bool
}

// NewClient creates a client with a fresh connection ID.
func NewClient(hub *Hub, conn *websocket.Conn, ingester Ingester, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}

	c := &Client{
		id:       clientIDCounter.Add(1),
		hub:      hub,
		conn:     conn,
		ingester: ingester,
		opts:     opts,
		send:     make(chan models.Outbound, opts.SendBuffer),
	}
	if opts.IngestRate > 0 {
		burst := opts.IngestBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.IngestRate), burst)
	}
	return c
}

// ID returns the connection ID.
func (c *Client) ID() uint64 {
	return c.id
}

// Deliver enqueues msg without blocking. It returns false if the queue is
// full or the client is closed.
func (c *Client) Deliver(msg models.Outbound) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which sends a close frame. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Start registers the client and runs its pumps. When autoJoinDashboard is
// set the client is put in the dashboard room before any frame is read.
func (c *Client) Start(ctx context.Context, autoJoinDashboard bool) {
	c.hub.Register(c)
	if autoJoinDashboard {
		c.hub.Join(c, models.DashboardRoom)
	}

	ctx = logging.ContextWithConnID(ctx, c.id)
	go c.writePump()
	go c.readPump(ctx)
}

// readPump reads frames until the connection fails, then unregisters.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageBytes)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Ctx(ctx).Warn().Err(err).Msg("unexpected websocket close error")
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			metrics.WSMessagesReceived.WithLabelValues("malformed").Inc()
			c.reply(models.Outbound{Type: models.MsgError, Data: models.ErrorPayload{Code: CodeBadRequest, Message: "malformed frame"}})
			continue
		}
		c.handle(ctx, env)
	}
}

func (c *Client) handle(ctx context.Context, env models.Envelope) {
	switch env.Type {
	case models.MsgJoinDevice, models.MsgLeaveDevice:
		metrics.WSMessagesReceived.WithLabelValues(env.Type).Inc()
		id, err := models.DecodeDeviceID(env.Data)
		if err != nil || id == "" {
			c.replyError(CodeBadRequest, env.Type+" requires a device ID")
			return
		}
		if env.Type == models.MsgJoinDevice {
			c.hub.Join(c, models.DeviceRoom(id))
		} else {
			c.hub.Leave(c, models.DeviceRoom(id))
		}

	case models.MsgJoinDashboard:
		metrics.WSMessagesReceived.WithLabelValues(env.Type).Inc()
		c.hub.Join(c, models.DashboardRoom)

	case models.MsgLeaveDashboard:
		metrics.WSMessagesReceived.WithLabelValues(env.Type).Inc()
		c.hub.Leave(c, models.DashboardRoom)

	case models.MsgTrackingData:
		metrics.WSMessagesReceived.WithLabelValues(env.Type).Inc()
		c.handleTrackingData(ctx, env.Data)

	case models.MsgPing:
		metrics.WSMessagesReceived.WithLabelValues(env.Type).Inc()
		c.reply(models.Outbound{Type: models.MsgPong})

	default:
		metrics.WSMessagesReceived.WithLabelValues("unknown").Inc()
		logging.Ctx(ctx).Debug().Str("type", env.Type).Msg("ignoring unknown message type")
	}
}

// handleTrackingData runs the pipeline inline so one connection's events
// are ingested in the order they arrived.
func (c *Client) handleTrackingData(ctx context.Context, data json.RawMessage) {
	if c.limiter != nil && !c.limiter.Allow() {
		metrics.WSRateLimited.Inc()
		c.replyError(CodeRateLimited, "trackingData rate exceeded")
		return
	}

	var raw models.RawTelemetry
	if err := json.Unmarshal(data, &raw); err != nil {
		c.replyError(CodeValidation, "trackingData payload is not valid telemetry")
		return
	}

	ev, err := c.ingester.Ingest(ctx, IngestSource, &raw)
	switch {
	case err == nil:
		c.reply(models.Outbound{Type: models.MsgAck, Data: models.AckPayload{
			DeviceID:  ev.DeviceID,
			Timestamp: ev.Timestamp.Format(time.RFC3339Nano),
		}})
	case errors.Is(err, relay.ErrValidation):
		c.replyError(CodeValidation, err.Error())
	default:
		c.replyError(CodePersistence, "event could not be persisted")
	}
}

func (c *Client) replyError(code, message string) {
	c.reply(models.Outbound{Type: models.MsgError, Data: models.ErrorPayload{Code: code, Message: message}})
}

// reply is best-effort like any other delivery.
func (c *Client) reply(msg models.Outbound) {
	if !c.Deliver(msg) {
		logging.Debug().Uint64("conn_id", c.id).Str("type", msg.Type).Msg("reply dropped, send queue full")
	}
}

// writePump drains the send queue to the connection and keeps it alive
// with pings. It is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				logging.Error().Err(err).Str("type", message.Type).Msg("failed to encode message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
