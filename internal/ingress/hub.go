// Package ingress is the human-facing boundary: HTTP submit/credential
// endpoints that bridge into the agent mesh, and a WebSocket hub that
// pushes finished results to subscribed clients.
package ingress

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection is a single WebSocket client.
type Connection struct {
	ID       string
	UserAddr string
	Conn     *websocket.Conn
	Send     chan []byte
	mu       sync.Mutex
}

// WriteMessage writes to the socket with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// Hub tracks WebSocket connections and fans finished results out to every
// connection subscribed to a user address.
type Hub struct {
	connections map[string]*Connection
	users       map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *userMessage

	mu sync.RWMutex
}

type userMessage struct {
	UserAddr string
	Data     []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		users:       make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *userMessage, 256),
	}
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if conn.UserAddr != "" {
				if h.users[conn.UserAddr] == nil {
					h.users[conn.UserAddr] = make(map[string]bool)
				}
				h.users[conn.UserAddr][conn.ID] = true
			}
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.dropSubscription(conn)
				close(conn.Send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.users[msg.UserAddr] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					log.Printf("WARN: connection %s buffer full, closing", connID)
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// caller holds h.mu
func (h *Hub) dropSubscription(conn *Connection) {
	if conn.UserAddr == "" || h.users[conn.UserAddr] == nil {
		return
	}
	delete(h.users[conn.UserAddr], conn.ID)
	if len(h.users[conn.UserAddr]) == 0 {
		delete(h.users, conn.UserAddr)
	}
}

// NewConnection wraps a raw socket.
func (h *Hub) NewConnection(ws *websocket.Conn, userAddr string) *Connection {
	return &Connection{
		ID:       uuid.New().String(),
		UserAddr: userAddr,
		Conn:     ws,
		Send:     make(chan []byte, 256),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Broadcast sends raw data to every connection subscribed to the address.
func (h *Hub) Broadcast(userAddr string, data []byte) {
	h.broadcast <- &userMessage{UserAddr: userAddr, Data: data}
}

// BroadcastJSON marshals v and broadcasts it.
func (h *Hub) BroadcastJSON(userAddr string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(userAddr, data)
	return nil
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
