package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
)

// Hub fans events out to in-process subscribers such as websocket streams.
// A subscriber that falls behind loses events instead of blocking commits.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan models.DomainEvent
	nextID  uint64
	buf     int
	dropped uint64
	closed  bool
}

func NewHub(buf int) *Hub {
	if buf <= 0 {
		buf = 64
	}
	return &Hub{subs: map[uint64]chan models.DomainEvent{}, buf: buf}
}

// Subscribe returns a channel of events and a function that closes it.
// After Close the channel comes back already closed.
func (h *Hub) Subscribe() (<-chan models.DomainEvent, func()) {
	ch := make(chan models.DomainEvent, h.buf)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
}

// Close ends every subscription; open streams see their channel close.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) Publish(_ context.Context, evt models.DomainEvent) error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			atomic.AddUint64(&h.dropped, 1)
		}
	}
	return nil
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}
