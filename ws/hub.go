package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bierbaron/config"
	"bierbaron/metrics"
)

// Hub is the connection registry and broadcast channel. Sends never block:
// a client whose buffer is full misses the frame.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	metrics      *metrics.Metrics
	pingInterval time.Duration
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		metrics:      m,
		pingInterval: config.PingInterval,
	}
}

// Run performs the liveness sweep every ping interval until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	log.Printf("💓 Liveness sweep started (%s interval)", h.pingInterval)
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// sweep terminates every client that did not answer the previous ping and
// pings the rest.
func (h *Hub) sweep() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.alive.Swap(false) {
			log.Printf("💀 Client %s missed a ping, terminating", c.ID)
			c.Conn.Close()
			continue
		}
		deadline := time.Now().Add(config.WriteWait)
		if err := c.Conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			log.Printf("⚠️  Ping to client %s failed: %v", c.ID, err)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	log.Printf("✅ Client registered: %s (Total: %d)", c.ID, total)
}

// remove unregisters c and closes its send queue. It reports false when c
// was already gone.
func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.clients, c.ID)
	close(c.Send)
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectionClosed()
	log.Printf("👋 Client unregistered: %s (Total: %d)", c.ID, total)
	return true
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.Conn.Close()
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every live connection.
func (h *Hub) Broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("❌ Failed to marshal broadcast: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.enqueue(c, data)
	}
}

// SendTo sends msg to one connection, if it is still live.
func (h *Hub) SendTo(connID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("❌ Failed to marshal message for %s: %v", connID, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		h.enqueue(c, data)
	}
}

// enqueue must be called with h.mu held so c.Send cannot be closed under it.
func (h *Hub) enqueue(c *Client, data []byte) {
	select {
	case c.Send <- data:
	default:
		h.metrics.SendDropped()
		log.Printf("⚠️  Client %s send buffer full, skipping message", c.ID)
	}
}
