package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler executes one work item of a given kind. report may be called with
// a fraction in [0,1] as the handler passes milestones; the pool republishes
// it to progress hooks.
type Handler func(ctx context.Context, payload json.RawMessage, report func(float64)) (json.RawMessage, error)

// Descriptor is the submission form of a work item.
type Descriptor struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// QueueStats summarizes the pool's current load.
type QueueStats struct {
	QueueSize int `json:"queue_size"` // buffered, not yet claimed
	Active    int `json:"active"`     // pending or running
	Completed int `json:"completed"`  // reached a terminal state
	Running   int `json:"running"`    // currently executing
}

// PoolConfig holds configuration options for the worker pool.
type PoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// QueueSize determines the buffer size for the bounded task queue.
	QueueSize int
}

// DefaultPoolConfig returns a PoolConfig with reasonable defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		WorkerCount: 2,
		QueueSize:   100,
	}
}

// WorkerPool is a bounded queue plus a fixed set of long-lived workers that
// pull work items and execute them one at a time per worker, updating
// per-item state and emitting lifecycle hooks. A handler's failure is
// recorded on its item and never terminates the worker.
type WorkerPool struct {
	queue       *queue
	workerCount int
	handlers    map[string]Handler
	hooks       *hookSet

	// ctx signals shutdown to the worker dequeue loops. Handlers run under
	// handlerCtx instead, which Stop cancels only after every worker has
	// exited, so an in-flight task finishes rather than being interrupted.
	ctx           context.Context
	cancel        context.CancelFunc
	handlerCtx    context.Context
	handlerCancel context.CancelFunc
	wg            sync.WaitGroup
	logger        *slog.Logger

	mu             sync.RWMutex
	items          map[uuid.UUID]*WorkItem
	runningCount   int
	completedCount int
	started        bool
}

// NewWorkerPool creates a worker pool with the specified configuration.
// Handlers and hooks must be registered before Start.
func NewWorkerPool(config PoolConfig, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultPoolConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	handlerCtx, handlerCancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:         newQueue(queueSize, logger),
		workerCount:   workerCount,
		handlers:      make(map[string]Handler),
		hooks:         newHookSet(logger),
		ctx:           ctx,
		cancel:        cancel,
		handlerCtx:    handlerCtx,
		handlerCancel: handlerCancel,
		logger:        logger.With("component", "worker_pool"),
		items:         make(map[uuid.UUID]*WorkItem),
	}
}

// RegisterHandler binds a handler to a task kind. Submissions of an
// unregistered kind are rejected.
func (p *WorkerPool) RegisterHandler(kind string, handler Handler) {
	p.handlers[kind] = handler
}

// RegisterHook adds an observer for one of the lifecycle hook points.
func (p *WorkerPool) RegisterHook(kind HookKind, hook Hook) {
	p.hooks.register(kind, hook)
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("worker pool already started")
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Info("worker pool started", "worker_count", p.workerCount)
	return nil
}

// Stop shuts the pool down: new submissions are rejected, workers exit after
// their current task, and the call blocks until every worker has terminated.
// Items still buffered at shutdown are marked Cancelled. Callers wanting a
// deadline wrap this externally.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	// All workers have exited, so no handler is in flight; cancelling the
	// handler context now only releases its resources.
	p.handlerCancel()
	p.queue.close()

	// Drain whatever the workers never claimed.
	for item := range p.queue.channel() {
		p.mu.Lock()
		if !item.Status.Terminal() {
			now := time.Now().UTC()
			item.Status = StatusCancelled
			item.CompletedAt = &now
			p.completedCount++
		}
		p.mu.Unlock()
	}

	p.logger.Info("worker pool stopped")
}

// Submit enqueues one work item and returns its id. Fails with ErrQueueFull
// when the bounded queue is at capacity.
func (p *WorkerPool) Submit(kind string, payload json.RawMessage) (uuid.UUID, error) {
	if _, ok := p.handlers[kind]; !ok {
		return uuid.Nil, fmt.Errorf("no handler registered for kind %q", kind)
	}

	item := newWorkItem(kind, payload)

	p.mu.Lock()
	p.items[item.ID] = item
	p.mu.Unlock()

	if err := p.queue.enqueue(item); err != nil {
		p.mu.Lock()
		delete(p.items, item.ID)
		p.mu.Unlock()
		return uuid.Nil, err
	}

	return item.ID, nil
}

// SubmitBatch enqueues several descriptors, returning the ids accepted so
// far. On a queue-full condition the already-accepted ids are returned along
// with the error so the caller can resubmit the remainder later.
func (p *WorkerPool) SubmitBatch(descriptors []Descriptor) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(descriptors))
	for _, desc := range descriptors {
		id, err := p.Submit(desc.Kind, desc.Payload)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetStatus returns a snapshot of the work item, or ok=false when the id is
// unknown. An unknown id is not an error.
func (p *WorkerPool) GetStatus(id uuid.UUID) (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	item, ok := p.items[id]
	if !ok {
		return Snapshot{}, false
	}
	return item.snapshot(), true
}

// Cancel marks a still-pending item Cancelled. Running items are not
// interrupted; the call reports whether the cancellation took effect.
func (p *WorkerPool) Cancel(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.items[id]
	if !ok || item.Status != StatusPending {
		return false
	}

	now := time.Now().UTC()
	item.Status = StatusCancelled
	item.CompletedAt = &now
	p.completedCount++
	return true
}

// QueueStats reports the pool's current load.
func (p *WorkerPool) QueueStats() QueueStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return QueueStats{
		QueueSize: p.queue.size(),
		Active:    len(p.items) - p.completedCount,
		Completed: p.completedCount,
		Running:   p.runningCount,
	}
}

// worker pulls items until the pool shuts down. A single item's failure is
// recorded on the item; the worker loops to the next one.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		// Shutdown wins over queued work so a worker exits after its current
		// task instead of draining the backlog.
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return
		default:
		}

		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case item, ok := <-p.queue.channel():
			if !ok {
				p.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			p.process(item, id)
		}
	}
}

// process drives one work item from Running to a terminal state.
func (p *WorkerPool) process(item *WorkItem, workerID int) {
	p.mu.Lock()
	if item.Status != StatusPending {
		// Cancelled while queued; nothing to do.
		p.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	item.Status = StatusRunning
	item.StartedAt = &now
	p.runningCount++
	snap := item.snapshot()
	p.mu.Unlock()

	logger := p.logger.With(
		"task_id", item.ID,
		"task_kind", item.Kind,
		"worker_id", workerID,
	)
	logger.Info("processing task")

	p.hooks.dispatch(HookStart, snap)

	report := func(fraction float64) {
		if fraction < 0 {
			fraction = 0
		} else if fraction > 1 {
			fraction = 1
		}
		p.mu.Lock()
		if item.Status != StatusRunning {
			p.mu.Unlock()
			return
		}
		item.Progress = fraction
		progressSnap := item.snapshot()
		p.mu.Unlock()
		p.hooks.dispatch(HookProgress, progressSnap)
	}

	result, err := p.runHandler(item, report)

	p.mu.Lock()
	completedAt := time.Now().UTC()
	item.CompletedAt = &completedAt
	p.runningCount--
	p.completedCount++
	if err != nil {
		item.Status = StatusFailed
		item.Error = err.Error()
	} else {
		item.Status = StatusCompleted
		item.Result = result
		item.Progress = 1
	}
	terminalSnap := item.snapshot()
	p.mu.Unlock()

	if err != nil {
		logger.Error("task execution failed", "error", err)
		p.hooks.dispatch(HookError, terminalSnap)
	} else {
		logger.Info("task completed successfully")
		p.hooks.dispatch(HookComplete, terminalSnap)
	}
}

// runHandler invokes the handler with panic recovery so a panicking handler
// fails its item instead of crashing the worker.
func (p *WorkerPool) runHandler(item *WorkItem, report func(float64)) (result json.RawMessage, err error) {
	handler, ok := p.handlers[item.Kind]
	if !ok {
		return nil, fmt.Errorf("no handler registered for kind %q", item.Kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panicked: %v", r)
		}
	}()

	return handler(p.handlerCtx, item.Payload, report)
}
