// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/trackrelay/internal/cache"
	"github.com/tomtom215/trackrelay/internal/eventlog"
	"github.com/tomtom215/trackrelay/internal/validation"
)

// DefaultAnalyticsLimit is the number of daily summaries returned when the
// client does not ask for a specific count.
const DefaultAnalyticsLimit = 30

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RoomCounter reports live websocket state for the health body.
type RoomCounter interface {
	GetClientCount() int
	GetRoomCount() int
}

// Handler serves the read-only HTTP API.
type Handler struct {
	store     eventlog.Querier
	snapshots cache.SnapshotStore
	hub       RoomCounter
	checks    map[string]Pinger
	startTime time.Time
}

// NewHandler creates the API handler. checks are pinged by /health/ready,
// keyed by the name reported in the response.
func NewHandler(store eventlog.Querier, snapshots cache.SnapshotStore, hub RoomCounter, checks map[string]Pinger) *Handler {
	if checks == nil {
		checks = map[string]Pinger{}
	}
	return &Handler{
		store:     store,
		snapshots: snapshots,
		hub:       hub,
		checks:    checks,
		startTime: time.Now(),
	}
}

// HealthLive returns 200 while the process is up, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}
	if h.hub != nil {
		data["clients"] = h.hub.GetClientCount()
		data["rooms"] = h.hub.GetRoomCount()
	}
	WriteSuccess(w, r, data)
}

// HealthReady returns 200 only when every dependency answers a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			ready = false
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	data := map[string]interface{}{"ready": ready, "checks": results}
	rw := NewResponseWriter(w, r)
	if !ready {
		rw.ServiceUnavailableWith(data)
		return
	}
	rw.Success(data)
}

// Devices lists every device with at least one logged event.
func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ids, err := h.store.ListDeviceIDs(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.List(ids, len(ids), 0)
}

type historyQuery struct {
	DeviceID string `json:"id" validate:"required,max=128,deviceid"`
	Limit    int    `json:"limit" validate:"min=0,max=1000"`
}

type analyticsQuery struct {
	Limit int `json:"limit" validate:"min=0,max=365"`
}

// DeviceHistory returns the newest events for one device, newest first.
func (h *Handler) DeviceHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit, ok := intParam(rw, r, "limit", eventlog.DefaultHistoryLimit)
	if !ok {
		return
	}
	q := historyQuery{DeviceID: chi.URLParam(r, "id"), Limit: limit}
	if verr := validation.ValidateStruct(&q); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	events, err := h.store.History(r.Context(), q.DeviceID, q.Limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.List(events, len(events), q.Limit)
}

// DeviceLatest returns the cached snapshot for one device. Expired or
// never-seen devices are 404; an unreachable cache is 503.
func (h *Handler) DeviceLatest(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q := historyQuery{DeviceID: chi.URLParam(r, "id")}
	if verr := validation.ValidateStruct(&q); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	ev, found, err := h.snapshots.Get(r.Context(), q.DeviceID)
	if err != nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "snapshot cache unavailable")
		return
	}
	if !found {
		rw.NotFound("no recent snapshot for device")
		return
	}
	rw.Success(ev)
}

// Analytics returns the most recent stored daily summaries.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit, ok := intParam(rw, r, "limit", DefaultAnalyticsLimit)
	if !ok {
		return
	}
	q := analyticsQuery{Limit: limit}
	if verr := validation.ValidateStruct(&q); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	summaries, err := h.store.RecentAnalytics(r.Context(), q.Limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.List(summaries, len(summaries), q.Limit)
}

// intParam reads an optional integer query parameter. It writes a 400 and
// returns false when the value is not an integer.
func intParam(rw *ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		rw.BadRequest(key + " must be an integer")
		return 0, false
	}
	return v, true
}
