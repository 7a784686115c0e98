package monitor

import (
	"context"
	"sync"

	channerics "github.com/niceyeti/channerics/channels"
)

// TrajectoryUpdate is the payload pushed to monitor subscribers each time the
// master completes a macro step.
type TrajectoryUpdate struct {
	Time   float64            `json:"time"`
	Values map[string]float64 `json:"values"`
}

const subscriberBuffer = 8

// Hub fans a single source of TrajectoryUpdates out to any number of
// websocket clients that connect and disconnect over the life of a run.
// channerics.Broadcast requires the subscriber count up front, which does not
// fit dynamically-connecting websocket peers, so Hub keeps its own
// registration set and relies on channerics.OrDone only for honoring
// cancellation on the single source read.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan TrajectoryUpdate
	nextID int
	closed bool
}

// NewHub starts consuming source and fanning updates out to subscribers until
// ctx is cancelled or source closes. Call Subscribe to register a receiver.
func NewHub(ctx context.Context, source <-chan TrajectoryUpdate) *Hub {
	h := &Hub{subs: make(map[int]chan TrajectoryUpdate)}

	go func() {
		defer h.closeAll()
		for update := range channerics.OrDone(ctx.Done(), source) {
			h.broadcast(update)
		}
	}()

	return h
}

func (h *Hub) broadcast(update TrajectoryUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub <- update:
		default:
			// Slow subscriber: drop the sample rather than block the run.
		}
	}
}

// Subscribe registers a new receiver and returns it along with an unsubscribe
// function the caller must invoke when done.
func (h *Hub) Subscribe() (<-chan TrajectoryUpdate, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan TrajectoryUpdate, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[id] = ch

	return ch, func() { h.unsubscribe(id) }
}

func (h *Hub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
