// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/trackrelay/internal/logging"
	"github.com/tomtom215/trackrelay/internal/models"
)

// ErrNotConnected is returned by Emit while the transport is reconnecting.
var ErrNotConnected = errors.New("transport not connected")

const (
	transportWriteWait = 10 * time.Second
	transportPongWait  = 60 * time.Second
)

// TransportOptions configures a WSTransport.
type TransportOptions struct {
	// MinBackoff is the first reconnect delay; it doubles up to MaxBackoff.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	HandshakeTimeout time.Duration
}

// WSTransport is a reconnecting websocket connection to the relay.
//
// Open starts a background loop that dials, reads until the connection
// fails, then redials with exponential backoff. Frames from the relay
// (acks, errors) are logged at debug.
type WSTransport struct {
	url    string
	opts   TransportOptions
	dialer websocket.Dialer

	connMu sync.Mutex
	conn   *websocket.Conn

	hookMu    sync.RWMutex
	onConnect func()

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWSTransport creates a transport for a ws:// or wss:// URL.
func NewWSTransport(url string, opts TransportOptions) *WSTransport {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 32 * time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &WSTransport{
		url:    url,
		opts:   opts,
		dialer: websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
	}
}

// OnConnect implements Transport.
func (t *WSTransport) OnConnect(fn func()) {
	t.hookMu.Lock()
	defer t.hookMu.Unlock()
	t.onConnect = fn
}

// Open implements Transport. It returns immediately; connecting happens
// in the background and survives ctx.
func (t *WSTransport) Open(ctx context.Context) error {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(runCtx, t.done)
	return nil
}

// Close implements Transport. It stops reconnecting and closes the
// current connection.
func (t *WSTransport) Close() {
	t.runMu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	t.closeConnection()
	<-done
}

// IsOpen implements Transport.
func (t *WSTransport) IsOpen() bool {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.conn != nil
}

// Emit implements Transport.
func (t *WSTransport) Emit(_ context.Context, msg models.Outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(transportWriteWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WSTransport) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	delay := t.opts.MinBackoff
	for {
		conn, err := t.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Info().Err(err).Dur("delay", delay).Msg("relay connection failed, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay *= 2
			if delay > t.opts.MaxBackoff {
				delay = t.opts.MaxBackoff
			}
			continue
		}
		delay = t.opts.MinBackoff

		t.connMu.Lock()
		if ctx.Err() != nil {
			t.connMu.Unlock()
			_ = conn.Close()
			return
		}
		t.conn = conn
		t.connMu.Unlock()
		logging.Info().Str("url", t.url).Msg("connected to relay")

		t.hookMu.RLock()
		hook := t.onConnect
		t.hookMu.RUnlock()
		if hook != nil {
			hook()
		}

		t.readLoop(ctx, conn)
		t.closeConnection()
		if ctx.Err() != nil {
			return
		}
	}
}

func (t *WSTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// readLoop consumes relay frames until the connection fails. The relay
// pings; gorilla answers pings automatically while a read is pending.
func (t *WSTransport) readLoop(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(transportPongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(transportPongWait))
		t.connMu.Lock()
		defer t.connMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(transportWriteWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Err(err).Msg("relay connection lost")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(transportPongWait))

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case models.MsgError:
			var p models.ErrorPayload
			_ = json.Unmarshal(env.Data, &p)
			logging.Warn().Str("code", p.Code).Str("message", p.Message).Msg("relay rejected frame")
		default:
			logging.Debug().Str("type", env.Type).Msg("relay frame")
		}
	}
}

func (t *WSTransport) closeConnection() {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return
	}
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	_ = t.conn.Close()
	t.conn = nil
}
