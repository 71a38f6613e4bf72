package engine

import (
	"sync"

	"github.com/wakefeed/wake/internal/activity"
)

// seedQueue is a thread-safe FIFO queue of accepted activity seeds.
//
// The queue is unbounded so posting call sites hand off and return without
// ever blocking on the worker. A buffered signal channel (size 1) coalesces
// wakeups and lets the worker wait with context awareness.
type seedQueue struct {
	mu     sync.Mutex
	seeds  []*activity.Seed
	closed bool
	signal chan struct{}
}

func newSeedQueue() *seedQueue {
	return &seedQueue{
		seeds:  make([]*activity.Seed, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a seed to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *seedQueue) Enqueue(s *activity.Seed) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.seeds = append(q.seeds, s)

	// Non-blocking send; the size-1 buffer coalesces repeated signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front seed without blocking.
// Dequeuing keeps working after Close so the worker drains the backlog.
func (q *seedQueue) TryDequeue() (*activity.Seed, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.seeds) == 0 {
		return nil, false
	}

	s := q.seeds[0]

	// Nil the slot so the backing array does not retain the seed.
	q.seeds[0] = nil

	if len(q.seeds) == 1 {
		q.seeds = q.seeds[:0]
	} else {
		q.seeds = q.seeds[1:]
	}

	return s, true
}

// Wait returns a channel that signals when seeds may be available. The
// channel closes when the queue closes, so waiters always wake. A wakeup
// is a hint, not a guarantee: callers must re-check with TryDequeue.
func (q *seedQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *seedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.seeds)
}

// Closed reports whether Close has been called.
func (q *seedQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting seeds and wakes all waiters.
func (q *seedQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
