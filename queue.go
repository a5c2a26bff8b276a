package pulse

import (
	"sync"
)

// eventQueue is the bounded FIFO buffer between the enricher and the
// dispatcher. Enqueue overflow evicts the oldest event; requeue overflow
// evicts the newest, because a requeued batch represents work already
// accepted and attempted, which takes precedence over events admitted later.
// All mutation happens under one write lock; Size takes the read lock.
type eventQueue struct {
	mu       sync.RWMutex
	events   []*EnrichedEvent
	capacity int
}

// newEventQueue creates a queue holding at most capacity events.
func newEventQueue(capacity int) *eventQueue {
	return &eventQueue{
		events:   make([]*EnrichedEvent, 0, min(capacity, 256)),
		capacity: capacity,
	}
}

// Size returns the current number of queued events.
func (q *eventQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.events)
}

// Enqueue appends e at the tail. At capacity it first evicts the head and
// returns it so the caller can log the overflow; otherwise it returns nil.
func (q *eventQueue) Enqueue(e *EnrichedEvent) *EnrichedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	var evicted *EnrichedEvent
	if len(q.events) >= q.capacity {
		evicted = q.events[0]
		q.events[0] = nil
		q.events = q.events[1:]
	}
	q.events = append(q.events, e)
	return evicted
}

// Drain removes and returns up to n events from the head, preserving order.
// Returns nil when the queue is empty or n is not positive.
func (q *eventQueue) Drain(n int) []*EnrichedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.events) == 0 {
		return nil
	}
	if n > len(q.events) {
		n = len(q.events)
	}

	batch := make([]*EnrichedEvent, n)
	copy(batch, q.events[:n])
	for i := 0; i < n; i++ {
		q.events[i] = nil
	}
	q.events = q.events[n:]
	return batch
}

// RequeueFront prepends batch at the head, preserving its internal order, so
// a failed batch is retried before anything enqueued after it was drained.
// If the result would exceed capacity, events are evicted newest-first: the
// queue's tail, then the batch's own tail if the batch alone is oversized.
// Returns the number of evicted events.
func (q *eventQueue) RequeueFront(batch []*EnrichedEvent) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	overflow := len(batch) + len(q.events) - q.capacity
	if overflow > 0 {
		if overflow <= len(q.events) {
			q.events = q.events[:len(q.events)-overflow]
		} else {
			batch = batch[:len(batch)-(overflow-len(q.events))]
			q.events = q.events[:0]
		}
	}

	merged := make([]*EnrichedEvent, 0, len(batch)+len(q.events))
	merged = append(merged, batch...)
	merged = append(merged, q.events...)
	q.events = merged

	if overflow < 0 {
		return 0
	}
	return overflow
}

// Clear removes all events and returns how many were dropped.
func (q *eventQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.events)
	q.events = nil
	return n
}
