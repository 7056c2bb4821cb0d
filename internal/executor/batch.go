package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/shelfscribe/engine/internal/cache"
	"golang.org/x/sync/semaphore"
)

// WorkRequest is one item of a batch: the operation kind plus the structured
// data needed to perform it. The pair also determines the cache key.
type WorkRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// ItemResult is the terminal outcome of one batch item. Exactly one of Value
// or Err is meaningful; Cached marks results served without a live invocation.
type ItemResult struct {
	Value  []byte `json:"value,omitempty"`
	Err    error  `json:"-"`
	Cached bool   `json:"cached"`
}

// BatchHandler performs the live work for one request.
type BatchHandler func(ctx context.Context, req WorkRequest) ([]byte, error)

// inflightCall coalesces concurrent executions of the same logical request so
// duplicates within a batch (or across batches) trigger one live invocation.
type inflightCall struct {
	done  chan struct{}
	value []byte
	err   error
}

// BatchExecutor runs many work items concurrently under a global concurrency
// gate, consulting the result cache before invoking and writing successes
// back. The gate is the sole mutual-exclusion point bounding outbound calls;
// every batch run by this executor shares it.
type BatchExecutor struct {
	resultCache *cache.ResultCache
	invoker     *RetryingInvoker
	gate        *semaphore.Weighted
	cacheTTL    time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	inflight map[string]*inflightCall
}

// NewBatchExecutor creates a BatchExecutor. maxConcurrent bounds how many
// work items may be in flight at once across all batches; cacheTTL is applied
// to successful results written back to the cache.
func NewBatchExecutor(
	resultCache *cache.ResultCache,
	invoker *RetryingInvoker,
	maxConcurrent int64,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *BatchExecutor {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &BatchExecutor{
		resultCache: resultCache,
		invoker:     invoker,
		gate:        semaphore.NewWeighted(maxConcurrent),
		cacheTTL:    cacheTTL,
		logger:      logger.With("component", "batch_executor"),
		inflight:    make(map[string]*inflightCall),
	}
}

// RunBatch executes every request and returns one result per input in input
// order, regardless of completion order. Individual failures are captured in
// the result list and never abort sibling items. namespace partitions the
// cache key space (typically one namespace per content field type).
func (e *BatchExecutor) RunBatch(
	ctx context.Context,
	namespace string,
	requests []WorkRequest,
	handler BatchHandler,
) []ItemResult {
	results := make([]ItemResult, len(requests))
	if len(requests) == 0 {
		return results
	}

	var wg sync.WaitGroup
	for i := range requests {
		wg.Add(1)
		go func(idx int, req WorkRequest) {
			defer wg.Done()
			results[idx] = e.runOne(ctx, namespace, req, handler)
		}(i, requests[i])
	}
	wg.Wait()

	return results
}

// runOne drives a single request to a terminal outcome: cache hit,
// coalesced duplicate, or live invocation under the gate.
func (e *BatchExecutor) runOne(
	ctx context.Context,
	namespace string,
	req WorkRequest,
	handler BatchHandler,
) ItemResult {
	key, err := cache.DeriveKey(req.Kind, req.Payload)
	if err != nil {
		// An unkeyable payload skips caching but still gets a live attempt.
		e.logger.Warn("failed to derive cache key, skipping cache",
			"kind", req.Kind, "error", err)
		return e.invokeLive(ctx, req, handler)
	}

	if value, ok := e.resultCache.Get(ctx, namespace, key); ok {
		return ItemResult{Value: value, Cached: true}
	}

	// Coalesce concurrent identical requests: one leader invokes, the rest
	// wait and reuse its outcome.
	e.mu.Lock()
	if call, exists := e.inflight[key]; exists {
		e.mu.Unlock()
		select {
		case <-call.done:
			if call.err != nil {
				return ItemResult{Err: call.err}
			}
			return ItemResult{Value: call.value, Cached: true}
		case <-ctx.Done():
			return ItemResult{Err: ctx.Err()}
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	e.inflight[key] = call
	e.mu.Unlock()

	result := e.invokeLive(ctx, req, handler)

	if result.Err == nil {
		e.resultCache.Set(ctx, namespace, key, result.Value, e.cacheTTL)
	}

	e.mu.Lock()
	delete(e.inflight, key)
	e.mu.Unlock()
	call.value = result.Value
	call.err = result.Err
	close(call.done)

	return result
}

// invokeLive admits the request through the concurrency gate and runs it
// through the retrying invoker.
func (e *BatchExecutor) invokeLive(
	ctx context.Context,
	req WorkRequest,
	handler BatchHandler,
) ItemResult {
	if err := e.gate.Acquire(ctx, 1); err != nil {
		return ItemResult{Err: err}
	}
	defer e.gate.Release(1)

	value, err := e.invoker.Invoke(ctx, func(attemptCtx context.Context) ([]byte, error) {
		return handler(attemptCtx, req)
	})
	if err != nil {
		return ItemResult{Err: err}
	}
	return ItemResult{Value: value}
}
