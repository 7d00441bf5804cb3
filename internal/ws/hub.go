// Package ws manages live websocket connections and fans events out to a
// user's connections.
package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"onboardflow/backend/internal/logging"
	"onboardflow/backend/pkg/models"
)

// Sender delivers an event to a named user's live connections.
type Sender interface {
	// SendToUser reports whether the event reached at least one connection.
	SendToUser(userID string, event models.Event) bool
}

// Hub tracks active connections per user. A user may hold several
// connections at once; connections that fail a write are dropped.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]map[*websocket.Conn]*client
	logger *logging.Logger
}

// client wraps a connection with its own write lock. Gorilla connections do
// not support concurrent writers, and serializing all writes through the hub
// lock would let one slow connection stall delivery to every user.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]map[*websocket.Conn]*client),
		logger: logger,
	}
}

// Add registers a connection for a user.
func (h *Hub) Add(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]*client)
	}
	h.conns[userID][conn] = &client{conn: conn}
	h.logger.Info("client connected", "user_id", userID, "connections", len(h.conns[userID]))
}

// Remove unregisters a connection. Safe to call for unknown connections.
func (h *Hub) Remove(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(userID, conn)
	h.logger.Info("client disconnected", "user_id", userID, "connections", len(h.conns[userID]))
}

func (h *Hub) removeLocked(userID string, conn *websocket.Conn) {
	if set, ok := h.conns[userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.conns, userID)
		}
	}
}

// SendToUser writes the event to every connection the user holds. The
// connection set is snapshotted under the hub lock and the writes happen
// outside it, so a stalled connection only delays its own user's writes.
// Failed connections are closed and dropped.
func (h *Hub) SendToUser(userID string, event models.Event) bool {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.conns[userID]))
	for _, c := range h.conns[userID] {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	delivered := 0
	for _, c := range clients {
		if err := c.writeJSON(event); err != nil {
			h.logger.Debug("dropping dead connection", "user_id", userID, "error", err)
			c.conn.Close()
			h.mu.Lock()
			h.removeLocked(userID, c.conn)
			h.mu.Unlock()
			continue
		}
		delivered++
	}

	if delivered == 0 {
		h.logger.Debug("no live connection for user", "user_id", userID, "event", event.Type())
		return false
	}
	return true
}

// ConnectionCount returns the number of live connections for a user.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

var _ Sender = (*Hub)(nil)
