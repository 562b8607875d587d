package queue

import (
	"sync"

	"github.com/google/uuid"
)

// Hub fans every published item out to the queues of all subscribers. Each
// subscriber drains its own queue at its own pace; a slow subscriber only
// loses its own items.
type Hub[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription[T]
	closed      bool
}

type subscription[T any] struct {
	name  string
	queue *Queue[T]
}

// SubscriberStats describes one subscriber queue.
type SubscriberStats struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Stats
}

// NewHub creates an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subscribers: make(map[string]*subscription[T])}
}

// Subscribe attaches a new queue of the given capacity. The returned id is
// used to Unsubscribe. Subscribing to a closed hub returns a closed queue.
func (h *Hub[T]) Subscribe(name string, capacity int) (string, *Queue[T]) {
	id := uuid.NewString()
	q := New[T](capacity)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		q.Close()
		return id, q
	}
	h.subscribers[id] = &subscription[T]{name: name, queue: q}
	return id, q
}

// Unsubscribe detaches and closes a subscriber queue.
func (h *Hub[T]) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		sub.queue.Close()
		delete(h.subscribers, id)
	}
}

// Publish offers item to every subscriber without blocking and returns how
// many queues accepted it.
func (h *Hub[T]) Publish(item T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	accepted := 0
	for _, sub := range h.subscribers {
		if sub.queue.Enqueue(item) {
			accepted++
		}
	}
	return accepted
}

// Len returns the number of attached subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Stats returns the counters of every subscriber queue.
func (h *Hub[T]) Stats() []SubscriberStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]SubscriberStats, 0, len(h.subscribers))
	for id, sub := range h.subscribers {
		out = append(out, SubscriberStats{ID: id, Name: sub.name, Stats: sub.queue.Stats()})
	}
	return out
}

// Close closes every subscriber queue and rejects new subscriptions.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subscribers {
		sub.queue.Close()
		delete(h.subscribers, id)
	}
}
