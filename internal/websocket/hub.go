// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/trackrelay/internal/logging"
	"github.com/tomtom215/trackrelay/internal/metrics"
	"github.com/tomtom215/trackrelay/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Member is anything the hub can put in a room.
//
// Deliver must not block: it enqueues msg on the member's outbound queue
// and reports false when the queue is full or closed. Messages a member
// accepts are written in the order they were accepted.
type Member interface {
	ID() uint64
	Deliver(msg models.Outbound) bool
	Close()
}

// Hub is the connection registry. It owns two tables kept in step under
// one lock: member -> rooms and room -> members.
//
// Membership exists only here. Rooms are created on first join and removed
// when their last member leaves.
type Hub struct {
	mu          sync.RWMutex
	members     map[uint64]Member
	memberships map[uint64]map[string]struct{}
	rooms       map[string]map[uint64]Member
}

// NewHub creates an empty registry.
func NewHub() *Hub {
	return &Hub{
		members:     make(map[uint64]Member),
		memberships: make(map[uint64]map[string]struct{}),
		rooms:       make(map[string]map[uint64]Member),
	}
}

// Register tracks m as connected. It belongs to no rooms yet.
func (h *Hub) Register(m Member) {
	h.mu.Lock()
	h.members[m.ID()] = m
	if _, ok := h.memberships[m.ID()]; !ok {
		h.memberships[m.ID()] = make(map[string]struct{})
	}
	total := len(h.members)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Uint64("conn_id", m.ID()).Int("total_clients", total).Msg("websocket client connected")
}

// Unregister removes m from every room, forgets it and closes it.
// Calling it twice is harmless.
func (h *Hub) Unregister(m Member) {
	h.mu.Lock()
	_, known := h.members[m.ID()]
	left := h.leaveAllLocked(m.ID())
	delete(h.members, m.ID())
	total := len(h.members)
	rooms := len(h.rooms)
	h.mu.Unlock()

	if !known {
		return
	}
	m.Close()

	metrics.WSConnections.Set(float64(total))
	metrics.WSRooms.Set(float64(rooms))
	logging.Info().
		Uint64("conn_id", m.ID()).
		Int("rooms_left", left).
		Int("total_clients", total).
		Msg("websocket client disconnected")
}

// Join adds m to room. Joining a room twice is a no-op.
func (h *Hub) Join(m Member, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uint64]Member)
		h.rooms[room] = members
	}
	members[m.ID()] = m

	set, ok := h.memberships[m.ID()]
	if !ok {
		set = make(map[string]struct{})
		h.memberships[m.ID()] = set
	}
	_, already := set[room]
	set[room] = struct{}{}
	rooms := len(h.rooms)
	h.mu.Unlock()

	metrics.WSRooms.Set(float64(rooms))
	if !already {
		logging.Debug().Uint64("conn_id", m.ID()).Str("room", room).Msg("joined room")
	}
}

// Leave removes m from room. Leaving a room m is not in is a no-op.
func (h *Hub) Leave(m Member, room string) {
	h.mu.Lock()
	h.leaveLocked(m.ID(), room)
	rooms := len(h.rooms)
	h.mu.Unlock()

	metrics.WSRooms.Set(float64(rooms))
}

// LeaveAll removes m from every room it joined and returns how many.
func (h *Hub) LeaveAll(m Member) int {
	h.mu.Lock()
	n := h.leaveAllLocked(m.ID())
	rooms := len(h.rooms)
	h.mu.Unlock()

	metrics.WSRooms.Set(float64(rooms))
	return n
}

func (h *Hub) leaveLocked(id uint64, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if set, ok := h.memberships[id]; ok {
		delete(set, room)
	}
}

func (h *Hub) leaveAllLocked(id uint64) int {
	set := h.memberships[id]
	n := len(set)
	for room := range set {
		h.leaveLocked(id, room)
	}
	delete(h.memberships, id)
	return n
}

// MembersOf returns the current members of room ordered by ID. Unknown
// rooms yield an empty, non-nil slice.
func (h *Hub) MembersOf(room string) []Member {
	h.mu.RLock()
	members := h.rooms[room]
	out := make([]Member, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// RoomsOf returns the rooms m belongs to, sorted.
func (h *Hub) RoomsOf(m Member) []string {
	h.mu.RLock()
	set := h.memberships[m.ID()]
	out := make([]string, 0, len(set))
	for room := range set {
		out = append(out, room)
	}
	h.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Broadcast delivers msg to every member of room at the time of the call.
//
// Members are snapshotted under the read lock and delivered to outside it,
// in ID order. A member that cannot accept the message is skipped; the
// rest still receive it. Broadcasting to an empty room is a no-op.
func (h *Hub) Broadcast(room string, msg models.Outbound) (queued, dropped int) {
	members := h.MembersOf(room)
	if len(members) == 0 {
		return 0, 0
	}

	for _, m := range members {
		if m.Deliver(msg) {
			queued++
			continue
		}
		dropped++
		logging.Debug().
			Uint64("conn_id", m.ID()).
			Str("room", room).
			Str("type", msg.Type).
			Msg("dropping message for slow or closed client")
	}

	metrics.RecordBroadcast(models.RoomKind(room), queued, dropped)
	return queued, dropped
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// GetRoomCount returns the number of non-empty rooms.
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// RunWithContext blocks until ctx is done and then closes every client.
// It is the supervised lifetime of the hub; the registry itself needs no
// background goroutine.
func (h *Hub) RunWithContext(ctx context.Context) error {
	<-ctx.Done()
	h.logGracefulShutdown(ctx)
	return ctx.Err()
}

// logGracefulShutdown closes all clients and logs why. ctx.Err() is not
// logged as an error because cancellation is the expected path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients empties both tables and closes clients in ID order.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := make([]Member, 0, len(h.members))
	for _, m := range h.members {
		clients = append(clients, m)
	}
	h.members = make(map[uint64]Member)
	h.memberships = make(map[uint64]map[string]struct{})
	h.rooms = make(map[string]map[uint64]Member)
	h.mu.Unlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].ID() < clients[j].ID() })
	for _, m := range clients {
		m.Close()
	}

	metrics.WSConnections.Set(0)
	metrics.WSRooms.Set(0)
}
