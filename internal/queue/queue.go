// Package queue provides the bounded buffers that decouple station ingestion
// from slower consumers.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Dequeue once the queue has been closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO. Enqueue never blocks: when the queue is full the
// new item is dropped and counted. Dequeue blocks until an item is available.
type Queue[T any] struct {
	items     chan T
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

// Stats is a point-in-time view of a queue's counters.
type Stats struct {
	Capacity int    `json:"capacity"`
	Length   int    `json:"length"`
	Enqueued uint64 `json:"enqueued"`
	Dropped  uint64 `json:"dropped"`
}

// New creates a queue holding at most capacity items (minimum 1).
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

// Enqueue adds item without blocking. It reports false when the item was
// dropped because the queue is full or closed.
func (q *Queue[T]) Enqueue(item T) bool {
	if q.closed.Load() {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.items <- item:
		q.enqueued.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dequeue returns the oldest item, blocking until one is available, the
// context is cancelled, or the queue is closed. Items still buffered at close
// are delivered before ErrClosed.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	select {
	case item := <-q.items:
		return item, nil
	default:
	}

	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		select {
		case item := <-q.items:
			return item, nil
		default:
			return zero, ErrClosed
		}
	}
}

// Close wakes all blocked consumers. Later Enqueue calls are dropped.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.done)
	})
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int { return len(q.items) }

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return cap(q.items) }

// Stats returns the queue counters.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Capacity: q.Cap(),
		Length:   q.Len(),
		Enqueued: q.enqueued.Load(),
		Dropped:  q.dropped.Load(),
	}
}
