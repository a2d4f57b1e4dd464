// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

/*
Package api is the relay's HTTP surface, routed with chi.

Routes:

	GET /ws                             websocket upgrade (see internal/websocket)
	GET /api/v1/health/live             liveness, always 200 while running
	GET /api/v1/health/ready            pings the durable log and snapshot cache
	GET /api/v1/devices                 device IDs with at least one event
	GET /api/v1/devices/{id}/history    newest events first, ?limit=1..1000 (default 100)
	GET /api/v1/devices/{id}/latest     cached snapshot, 404 once expired
	GET /api/v1/analytics               stored daily summaries, ?limit=1..365 (default 30)
	GET /metrics                        Prometheus exposition

Every JSON response uses the APIResponse envelope:

	{"success":true,"data":[...],"meta":{"request_id":"...","timestamp":"...","count":3}}
	{"success":false,"error":{"code":"NOT_FOUND","message":"..."}}

The read routes are rate limited per client IP with go-chi/httprate and
gzip-compressed. CORS is handled globally by go-chi/cors so preflight
requests never reach a handler.
*/
package api
