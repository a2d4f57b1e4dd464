// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest results.
const (
	ResultAccepted    = "accepted"
	ResultInvalid     = "invalid"
	ResultPersistFail = "persistence_failed"
)

var (
	// Relay pipeline
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackrelay_ingest_total",
			Help: "Telemetry events submitted to the relay pipeline by source and result",
		},
		[]string{"source", "result"}, // source: websocket, mqtt
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trackrelay_ingest_duration_seconds",
			Help:    "End-to-end ingest latency including append, cache write and fan-out",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1, 5},
		},
	)

	// Durable log
	EventLogAppendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackrelay_eventlog_append_duration_seconds",
			Help:    "Durable log append latency by backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	EventLogAppendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackrelay_eventlog_append_errors_total",
			Help: "Durable log append failures by backend",
		},
		[]string{"backend"},
	)

	// Snapshot cache
	SnapshotWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackrelay_snapshot_write_errors_total",
			Help: "Snapshot cache writes that failed and were swallowed",
		},
		[]string{"store"},
	)

	SnapshotLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackrelay_snapshot_lookups_total",
			Help: "Snapshot cache lookups by store and outcome",
		},
		[]string{"store", "outcome"}, // outcome: hit, miss, error
	)

	SnapshotEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackrelay_snapshot_entries",
			Help: "Entries held by the in-memory snapshot store after the last sweep",
		},
	)

	// Connection registry
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackrelay_ws_connections",
			Help: "Current number of registered websocket connections",
		},
	)

	WSRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackrelay_ws_rooms",
			Help: "Current number of rooms with at least one member",
		},
	)

	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackrelay_broadcast_deliveries_total",
			Help: "Per-member broadcast outcomes by room kind",
		},
		[]string{"room_kind", "outcome"}, // outcome: queued, dropped
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackrelay_ws_messages_received_total",
			Help: "Inbound websocket frames by type",
		},
		[]string{"type"},
	)

	WSRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackrelay_ws_rate_limited_total",
			Help: "trackingData frames rejected by the per-connection rate limit",
		},
	)

	// Mirror (NATS)
	MirrorPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackrelay_mirror_published_total",
			Help: "Events mirrored to the message bus by result",
		},
		[]string{"result"}, // ok, error
	)

	// Circuit breakers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trackrelay_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackrelay_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Agent (only populated by the agent binary)
	AgentEventsEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackrelay_agent_events_emitted_total",
			Help: "Telemetry events written to the relay connection",
		},
	)

	AgentEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackrelay_agent_events_dropped_total",
			Help: "Telemetry events the agent discarded by reason",
		},
		[]string{"reason"}, // disconnected, backpressure, emit_error
	)

	AgentState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trackrelay_agent_state",
			Help: "1 for the agent's current tracking state, 0 otherwise",
		},
		[]string{"state"},
	)
)

// RecordIngest records one pipeline invocation.
func RecordIngest(source, result string, duration time.Duration) {
	IngestTotal.WithLabelValues(source, result).Inc()
	if result == ResultAccepted {
		IngestDuration.Observe(duration.Seconds())
	}
}

// RecordAppend records one durable log append.
func RecordAppend(backend string, duration time.Duration, err error) {
	EventLogAppendDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if err != nil {
		EventLogAppendErrors.WithLabelValues(backend).Inc()
	}
}

// RecordSnapshotLookup records a snapshot read outcome.
func RecordSnapshotLookup(store string, found bool, err error) {
	outcome := "miss"
	switch {
	case err != nil:
		outcome = "error"
	case found:
		outcome = "hit"
	}
	SnapshotLookups.WithLabelValues(store, outcome).Inc()
}

// RecordBroadcast records delivered and dropped counts for one broadcast.
func RecordBroadcast(roomKind string, queued, dropped int) {
	if queued > 0 {
		BroadcastDeliveries.WithLabelValues(roomKind, "queued").Add(float64(queued))
	}
	if dropped > 0 {
		BroadcastDeliveries.WithLabelValues(roomKind, "dropped").Add(float64(dropped))
	}
}

// RecordAPIRequest records API request metrics.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements active request counter.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// SetAgentState marks state as the agent's only active state.
func SetAgentState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		AgentState.WithLabelValues(s).Set(v)
	}
}
