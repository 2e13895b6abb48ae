package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rzbill/funnel/internal/event"
)

var (
	// ErrFull is returned by Offer when the queue is at capacity. Producers
	// should back off and retry at their own layer; the pipeline never
	// retries intake.
	ErrFull = errors.New("queue: full")
	// ErrClosed is returned by Offer once the queue is closed for intake.
	// Non-retryable for this pipeline instance.
	ErrClosed = errors.New("queue: closed")
)

// Stats is a point-in-time snapshot of queue state.
type Stats struct {
	Depth    int
	Capacity int
	Closed   bool
}

// Queue is a bounded FIFO over accepted events.
type Queue struct {
	mu       sync.Mutex
	buf      []*event.Event
	head     int
	count    int
	capacity int
	closed   bool
	// notify is closed and replaced whenever an event arrives or the queue
	// closes, waking any parked Take.
	notify chan struct{}
}

// New creates a queue with the given capacity. Capacity must be positive.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		buf:      make([]*event.Event, capacity),
		capacity: capacity,
		notify:   make(chan struct{}),
	}
}

// Offer appends ev in FIFO position. It never blocks: ErrFull at capacity,
// ErrClosed after Close.
func (q *Queue) Offer(ev *event.Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.count == q.capacity {
		q.mu.Unlock()
		return ErrFull
	}
	q.buf[(q.head+q.count)%q.capacity] = ev
	q.count++
	q.wakeLocked()
	q.mu.Unlock()
	return nil
}

// Take returns up to max buffered events in FIFO order. With an empty queue
// it blocks until an event arrives, wait elapses (returns nil, nil), ctx is
// done (returns ctx.Err()), or the queue is closed and empty (ErrClosed).
// A wait of 0 blocks without a deadline.
func (q *Queue) Take(ctx context.Context, max int, wait time.Duration) ([]*event.Event, error) {
	if max <= 0 {
		max = 1
	}
	var deadline <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		deadline = t.C
	}
	for {
		q.mu.Lock()
		if q.count > 0 {
			out := q.popLocked(max)
			q.mu.Unlock()
			return out, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		ch := q.notify
		q.mu.Unlock()

		select {
		case <-ch:
		case <-deadline:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// DrainAll removes and returns everything currently buffered, in FIFO order.
// Never blocks. Used by the shutdown coordinator to fold leftovers into
// final batches.
func (q *Queue) DrainAll() []*event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil
	}
	return q.popLocked(q.count)
}

// Close marks the queue closed for intake. Idempotent. Buffered contents
// remain retrievable via Take/DrainAll.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.wakeLocked()
	}
	q.mu.Unlock()
}

// Stats returns the current occupancy, capacity, and closed flag.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Depth: q.count, Capacity: q.capacity, Closed: q.closed}
}

func (q *Queue) popLocked(max int) []*event.Event {
	n := q.count
	if n > max {
		n = max
	}
	out := make([]*event.Event, n)
	for i := 0; i < n; i++ {
		idx := (q.head + i) % q.capacity
		out[i] = q.buf[idx]
		q.buf[idx] = nil
	}
	q.head = (q.head + n) % q.capacity
	q.count -= n
	return out
}

func (q *Queue) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}
