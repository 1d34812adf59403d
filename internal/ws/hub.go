package ws

import (
	"encoding/json"
	"sync"
)

// Client represents a single WebSocket connection with user context.
type Client struct {
	UserID  uint
	Send    chan []byte
	hub     *Hub
	circles map[uint]struct{}
	mu      sync.Mutex
	closed  bool
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
	if c.hub != nil {
		c.hub.unregister(c)
	}
}

// Hub maintains the set of active clients, indexed by user and by the
// circles each connection subscribed to.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	byUser   map[uint]map[*Client]struct{}
	byCircle map[uint]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		byUser:   make(map[uint]map[*Client]struct{}),
		byCircle: make(map[uint]map[*Client]struct{}),
	}
}

// Register adds a connection subscribed to the given circles.
func (h *Hub) Register(c *Client, circleIDs []uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.hub = h
	c.circles = make(map[uint]struct{}, len(circleIDs))
	h.clients[c] = struct{}{}
	if h.byUser[c.UserID] == nil {
		h.byUser[c.UserID] = make(map[*Client]struct{})
	}
	h.byUser[c.UserID][c] = struct{}{}
	for _, id := range circleIDs {
		c.circles[id] = struct{}{}
		if h.byCircle[id] == nil {
			h.byCircle[id] = make(map[*Client]struct{})
		}
		h.byCircle[id][c] = struct{}{}
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	if m := h.byUser[c.UserID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	for id := range c.circles {
		if m := h.byCircle[id]; m != nil {
			delete(m, c)
			if len(m) == 0 {
				delete(h.byCircle, id)
			}
		}
	}
}

func (h *Hub) BroadcastToUser(userID uint, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.mu.RLock()
	clients := collect(h.byUser[userID])
	h.mu.RUnlock()
	deliver(clients, data)
}

// BroadcastToCircle fans a payload out to every connection subscribed to
// the circle.
func (h *Hub) BroadcastToCircle(circleID uint, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.mu.RLock()
	clients := collect(h.byCircle[circleID])
	h.mu.RUnlock()
	deliver(clients, data)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func collect(m map[*Client]struct{}) []*Client {
	clients := make([]*Client, 0, len(m))
	for c := range m {
		clients = append(clients, c)
	}
	return clients
}

func deliver(clients []*Client, data []byte) {
	for _, c := range clients {
		select {
		case c.Send <- data:
		default: // slow consumer, drop
		}
	}
}
