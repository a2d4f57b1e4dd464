// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

// Package middleware holds the HTTP middleware shared by the API router:
// request IDs wired into the zerolog context, and Prometheus request
// metrics labeled by chi route pattern.
//
// Both are plain func(http.Handler) http.Handler and go straight into
// chi's r.Use:
//
//	r.Use(middleware.RequestID)
//	r.Use(middleware.PrometheusMetrics)
package middleware
