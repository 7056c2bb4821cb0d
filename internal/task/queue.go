package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the queue.
var (
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrQueueFull is the backpressure signal: the caller should retry later
	// or shed load, never treat it as silently dropped work.
	ErrQueueFull = errors.New("task queue is full")
)

// queue is a bounded buffered-channel task queue. Capacity is fixed at
// construction; a full queue rejects submissions instead of buffering
// unboundedly.
type queue struct {
	items  chan *WorkItem
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// newQueue creates a queue with the given capacity.
func newQueue(capacity int, logger *slog.Logger) *queue {
	return &queue{
		items:  make(chan *WorkItem, capacity),
		logger: logger,
	}
}

// enqueue adds an item for processing. Returns ErrQueueClosed after close and
// ErrQueueFull when the buffer is at capacity.
func (q *queue) enqueue(item *WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- item:
		q.logger.Debug("task enqueued",
			"task_id", item.ID,
			"task_kind", item.Kind,
			"queue_len", len(q.items),
			"queue_cap", cap(q.items))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.items))
	}
}

// close stops further submission. Safe to call more than once.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.items)
		q.logger.Info("task queue closed")
	}
}

// channel returns the read side for workers.
func (q *queue) channel() <-chan *WorkItem {
	return q.items
}

// size returns the number of buffered, not-yet-claimed items.
func (q *queue) size() int {
	return len(q.items)
}
