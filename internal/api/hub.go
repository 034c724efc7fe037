package api

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	clientBuffer   = 64
)

// Message types pushed to dashboard clients.
const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeChange   = "change"
)

// Message is one frame pushed to dashboard clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

var clientIDCounter atomic.Uint64

// client is one connected dashboard socket.
type client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out state changes to connected dashboards.
// Params: logger.
// Returns: broadcast hub; slow clients are dropped instead of blocking.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger.With("component", "ws-hub"),
		clients: make(map[*client]struct{}),
	}
}

// Broadcast encodes message once and queues it for every client.
// Params: message type and payload.
// Returns: none; clients whose buffer is full are disconnected.
func (h *Hub) Broadcast(messageType string, data any) {
	frame, err := json.Marshal(Message{Type: messageType, Data: data})
	if err != nil {
		h.logger.Error("encode websocket message failed", "type", messageType, "error", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.sortedClientsLocked() {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("websocket client too slow, dropping", "client_id", c.id)
			h.removeLocked(c)
		}
	}
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// attach registers connection, queues the initial frame and starts pumps.
// Params: upgraded connection and initial frame builder, called under the hub lock
// so no broadcast can slip between snapshot and registration.
// Returns: false when hub is closed.
func (h *Hub) attach(conn *websocket.Conn, initial func() Message) bool {
	c := &client{
		id:   clientIDCounter.Add(1),
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	frame, err := json.Marshal(initial())
	if err != nil {
		h.mu.Unlock()
		h.logger.Error("encode websocket snapshot failed", "error", err.Error())
		return false
	}
	c.send <- frame
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected", "client_id", c.id, "total_clients", total)
	go c.writePump()
	go c.readPump()
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.removeLocked(c)
	h.logger.Info("websocket client disconnected", "client_id", c.id, "total_clients", len(h.clients))
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// sortedClientsLocked orders clients by id so delivery order is stable.
func (h *Hub) sortedClientsLocked() []*client {
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// readPump discards inbound frames and keeps the read deadline fresh.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", "client_id", c.id, "error", err.Error())
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
