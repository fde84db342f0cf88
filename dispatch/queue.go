package dispatch

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultQueueCapacity bounds the event queue. The producer gets no
// back-pressure signal; once the bound is hit new events are dropped with
// a warning, which keeps FIFO order of everything already accepted.
const DefaultQueueCapacity = 4096

// Queue is a FIFO event queue safe for one or more concurrent producers
// and a single consumer.
type Queue struct {
	mu       sync.Mutex
	events   []Event
	capacity int
	closed   bool
	dropped  uint64
}

// NewQueue creates a queue with the given capacity; zero or negative means
// DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{capacity: capacity}
}

// Push appends an event and reports whether it was accepted. A push after
// Close or against a full queue is silently dropped (logged, not fatal) so
// a producer racing shutdown never crashes.
func (q *Queue) Push(event Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if len(q.events) >= q.capacity {
		q.dropped++
		logrus.WithFields(logrus.Fields{
			"event_type":    event.Type,
			"queue_len":     len(q.events),
			"total_dropped": q.dropped,
		}).Warn("event queue full, dropping event")
		return false
	}

	q.events = append(q.events, event)
	return true
}

// TryPopUpTo removes and returns at most n queued events in FIFO order.
// It never blocks; an empty queue returns nil.
func (q *Queue) TryPopUpTo(n int) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.events) == 0 {
		return nil
	}
	if n > len(q.events) {
		n = len(q.events)
	}

	batch := make([]Event, n)
	copy(batch, q.events[:n])
	remaining := copy(q.events, q.events[n:])
	for i := remaining; i < len(q.events); i++ {
		q.events[i] = Event{}
	}
	q.events = q.events[:remaining]
	return batch
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close marks the queue closed; subsequent pushes are dropped. Safe to call
// concurrently with Push and more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.events = nil
	q.mu.Unlock()
}
