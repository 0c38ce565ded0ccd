// Package gateway is the transport collaborator: it fans engine events out
// to WebSocket chart clients and maps HTTP requests onto the four
// engine operations. The core never imports this package.
package gateway

import (
	"context"
	"log"
	"sync"

	"chartreplay/internal/model"
)

// Hub manages WebSocket clients and broadcasts engine events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	// latest caches the most recent event per type so a late-joining client
	// can be primed immediately.
	latest map[model.EventType][]byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[model.EventType][]byte),
	}
}

// Run consumes engine events and broadcasts them until ctx is cancelled or
// the channel closes.
func (h *Hub) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-events:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(&ev)
		}
	}
}

func (h *Hub) broadcast(ev *model.Event) {
	data := ev.JSON()

	h.mu.Lock()
	h.latest[ev.Type] = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow client: drop the event for it, never block the hub.
			log.Printf("[gateway] client send buffer full, dropping event seq=%d", ev.Seq)
		}
	}
	h.mu.Unlock()
}

// primeOrder fixes the order late-joining clients receive cached frames in:
// session anchor first, then structure, then data. Map iteration would
// interleave them arbitrarily and could put a stale window after a newer step.
var primeOrder = []model.EventType{
	model.EventJump,
	model.EventTransition,
	model.EventWindow,
	model.EventStep,
}

// register adds a client and primes it with the latest event of each type.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	for _, typ := range primeOrder {
		data, ok := h.latest[typ]
		if !ok {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
	h.mu.Unlock()
}

// unregister removes a client and closes its send channel.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
