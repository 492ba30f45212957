// Package hub manages the live connections of a server instance and the
// server that routes their messages to the room registry.
package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/roomcast/server/src/conn"
	"github.com/roomcast/server/src/types"
)

// Hub is the ordered set of live connections. A connection present here
// has not reached the closed state; removal on invalidation is immediate
// and irreversible.
type Hub struct {
	mu     sync.RWMutex
	conns  []*conn.Conn
	logger zerolog.Logger
}

// New creates an empty hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{logger: logger.With().Str("component", "hub").Logger()}
}

// Add registers a connection.
func (h *Hub) Add(c *conn.Conn) {
	h.mu.Lock()
	h.conns = append(h.conns, c)
	h.mu.Unlock()
	h.logger.Debug().Str("conn_id", c.ID()).Msg("connection registered")
}

// Remove deregisters a connection.
func (h *Hub) Remove(c *conn.Conn) {
	h.mu.Lock()
	for i, it := range h.conns {
		if it == c {
			h.conns = append(h.conns[:i], h.conns[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
	h.logger.Debug().Str("conn_id", c.ID()).Msg("connection removed")
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast sends the payload to every connection the filter accepts, in
// registration order. Individual send failures are swallowed by the
// connections themselves, so one stale target never affects the rest.
func (h *Hub) Broadcast(p types.Payload, filter func(*conn.Conn) bool) {
	h.mu.RLock()
	targets := make([]*conn.Conn, 0, len(h.conns))
	for _, c := range h.conns {
		if filter == nil || filter(c) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Send(p)
	}
}

// InRoom returns a filter accepting connections attached to roomID.
func InRoom(roomID int) func(*conn.Conn) bool {
	return func(c *conn.Conn) bool {
		id, ok := c.Room()
		return ok && id == roomID
	}
}

// InLobby returns a filter accepting connections not attached to any room.
func InLobby() func(*conn.Conn) bool {
	return func(c *conn.Conn) bool {
		_, ok := c.Room()
		return !ok
	}
}
