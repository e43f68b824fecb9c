package realtime

import (
	"log/slog"
	"sync"

	v1 "linkup/shared/contracts/realtime/v1"
)

// Hub holds the clients connected to this process and fans envelopes out to
// them.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client // by connection id
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		clients: make(map[string]*Client),
	}
}

// Register adds c. A second client with the same connection id replaces the first.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ConnectionID] = c
}

// Unregister removes the client with connID.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, connID)
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues env on every client without blocking. A client whose send
// queue is full misses the envelope; the next snapshot supersedes it.
func (h *Hub) Broadcast(env v1.Envelope) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.TrySend(env) {
			h.log.Warn("ws.broadcast.drop",
				slog.String("conn_id", c.ConnectionID),
				slog.String("user_id", c.UserID),
				slog.String("type", env.Type),
			)
		}
	}
}
