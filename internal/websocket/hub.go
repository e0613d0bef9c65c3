package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub maintains the set of connected dashboard clients and pushes messages to them
type Hub struct {
	// Registered clients map: connection id -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client

	// closed once Run returns
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu  sync.RWMutex
	log *zap.Logger
}

// NewHub creates a new Hub instance
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		log:        log,
	}
}

// Run processes registrations until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Debug("dashboard connected", zap.String("client", client.ID), zap.Uint("user", client.UserID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Debug("dashboard disconnected", zap.String("client", client.ID))
			}
			h.mu.Unlock()
		}
	}
}

// add registers c and reports false once the hub has stopped
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// SendToUser delivers message to every connection of one user and returns how many got it
func (h *Hub) SendToUser(userID uint, message interface{}) int {
	return h.deliver(message, func(c *Client) bool { return c.UserID == userID })
}

// Broadcast delivers message to every connection
func (h *Hub) Broadcast(message interface{}) int {
	return h.deliver(message, func(*Client) bool { return true })
}

// ClientCount reports the number of open connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) deliver(message interface{}, match func(*Client) bool) int {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		h.log.Error("marshal websocket message", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.send <- jsonMsg:
			sent++
		default:
			// Buffer full or client dead
		}
	}
	return sent
}
