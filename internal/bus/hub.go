package bus

import (
	"context"
	"sync"
)

var _ Bridge = (*Hub)(nil)

// Hub is an in-process Bridge connecting several buses, the equivalent of
// the storage-change signal shared by tabs of one origin.
type Hub struct {
	mu    sync.RWMutex
	next  int
	peers map[int]func(Event)
}

// NewHub returns an empty hub.
func NewHub() *Hub { return &Hub{peers: make(map[int]func(Event))} }

// Broadcast delivers ev to every attached bus, the sender included; buses
// drop their own events.
func (h *Hub) Broadcast(_ context.Context, ev Event) error {
	h.mu.RLock()
	peers := make([]func(Event), 0, len(h.peers))
	for _, fn := range h.peers {
		peers = append(peers, fn)
	}
	h.mu.RUnlock()
	for _, fn := range peers {
		fn(ev)
	}
	return nil
}

// Attach registers fn and returns its detach function.
func (h *Hub) Attach(fn func(Event)) (func(), error) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.peers[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.peers, id)
		h.mu.Unlock()
	}, nil
}
