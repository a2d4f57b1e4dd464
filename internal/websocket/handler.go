// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/trackrelay/internal/logging"
)

// HandlerOptions configures the upgrade endpoint.
type HandlerOptions struct {
	Client            ClientOptions
	AutoJoinDashboard bool

	// AllowedOrigins is checked against the Origin header of browser
	// clients. "*" allows any origin.
	AllowedOrigins []string
}

// Handler upgrades HTTP requests to websocket connections and hands each
// one to a Client.
type Handler struct {
	hub      *Hub
	ingester Ingester
	opts     HandlerOptions
	upgrader websocket.Upgrader
}

// NewHandler builds the /ws endpoint.
func NewHandler(hub *Hub, ingester Ingester, opts HandlerOptions) *Handler {
	h := &Handler{hub: hub, ingester: ingester, opts: opts}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, h.ingester, h.opts.Client)
	// The request context ends when ServeHTTP returns; keep its values only.
	client.Start(context.WithoutCancel(r.Context()), h.opts.AutoJoinDashboard)
}

// checkOrigin lets device agents, which send no Origin header, through and
// holds browsers to the configured origins.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket connection rejected: origin not allowed")
	return false
}
