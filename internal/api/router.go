// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/trackrelay/internal/middleware"
)

// Router assembles the HTTP surface: the websocket endpoint, health
// probes, read routes and /metrics.
type Router struct {
	handler       *Handler
	ws            http.Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. ws serves /ws.
func NewRouter(handler *Handler, ws http.Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, ws: ws, chiMiddleware: mw}
}

// Setup builds the chi mux.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	// Upgrades bypass compression and the API rate limiter; each
	// connection has its own trackingData limiter.
	r.With(middleware.PrometheusMetrics).Get("/ws", router.ws.ServeHTTP)

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.Get("/devices", router.handler.Devices)
		r.Get("/devices/{id}/history", router.handler.DeviceHistory)
		r.Get("/devices/{id}/latest", router.handler.DeviceLatest)
		r.Get("/analytics", router.handler.Analytics)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return r
}
