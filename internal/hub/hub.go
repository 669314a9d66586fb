// Package hub provides connection management for stream subscribers.
package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultSendBuffer is the per-connection frame buffer used when none is given.
const DefaultSendBuffer = 2048

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// Connection represents a single subscriber connection.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	mu     sync.Mutex
	closed bool
}

// Hub manages all subscriber connections. Register and Unregister take effect
// before they return, so a frame broadcast afterwards is never lost to or sent
// after them.
type Hub struct {
	connections map[string]*Connection
	sendBuffer  int
	logger      *zap.Logger

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub(sendBuffer int, logger *zap.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		sendBuffer:  sendBuffer,
		logger:      logger.With(zap.String("component", "hub")),
	}
}

// NewConnection creates a new connection. It is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, h.sendBuffer),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	h.connections[conn.ID] = conn
	h.mu.Unlock()
	h.logger.Debug("connection registered", zap.String("conn_id", conn.ID))
}

// Unregister removes a connection and closes its send channel. It is safe to
// call more than once.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	_, ok := h.connections[conn.ID]
	delete(h.connections, conn.ID)
	h.mu.Unlock()

	if conn.closeSend() && ok {
		h.logger.Debug("connection unregistered", zap.String("conn_id", conn.ID))
	}
}

// Broadcast sends data to every connection. Connections whose buffer is full
// are dropped; they resume from their cursor when they reconnect.
func (h *Hub) Broadcast(data []byte) {
	var saturated []*Connection

	h.mu.RLock()
	for _, conn := range h.connections {
		if err := conn.enqueue(data); err != nil {
			saturated = append(saturated, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range saturated {
		h.logger.Warn("connection buffer full, closing", zap.String("conn_id", conn.ID))
		h.Unregister(conn)
	}
}

// BroadcastJSON sends a JSON message to every connection.
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// SendToConnection sends a message to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	return conn.enqueue(data)
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CloseAll unregisters every connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.Unregister(conn)
	}
}

func (c *Connection) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrBufferFull
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// closeSend closes Send once and reports whether this call closed it.
func (c *Connection) closeSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.Send)
	return true
}

// WriteMessage writes a message to the connection. Only the write pump may
// call it.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the underlying websocket.
func (c *Connection) Close() error {
	if c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}
