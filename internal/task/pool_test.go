package task

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func waitForStatus(t *testing.T, pool *WorkerPool, id uuid.UUID, want Status) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		got, ok := pool.GetStatus(id)
		if !ok {
			return false
		}
		snap = got
		return got.Status == want
	}, 2*time.Second, 5*time.Millisecond, "item %s never reached status %s", id, want)
	return snap
}

func echoHandler(ctx context.Context, payload json.RawMessage, report func(float64)) (json.RawMessage, error) {
	return payload, nil
}

func TestSubmit_UnknownKindRejected(t *testing.T) {
	pool := NewWorkerPool(DefaultPoolConfig(), testLogger())

	_, err := pool.Submit("unregistered", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler registered")
}

func TestSubmit_QueueFullBackpressure(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 2}, testLogger())
	pool.RegisterHandler("generate", echoHandler)

	// Workers are not started, so nothing drains the queue.
	_, err := pool.Submit("generate", json.RawMessage(`{"sku":"A"}`))
	require.NoError(t, err)
	_, err = pool.Submit("generate", json.RawMessage(`{"sku":"B"}`))
	require.NoError(t, err)

	_, err = pool.Submit("generate", json.RawMessage(`{"sku":"C"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)

	// Draining makes room again.
	require.NoError(t, pool.Start())
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return pool.QueueStats().QueueSize == 0
	}, 2*time.Second, 5*time.Millisecond)

	_, err = pool.Submit("generate", json.RawMessage(`{"sku":"C"}`))
	assert.NoError(t, err)
}

func TestProcess_CompletesSuccessfully(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 10}, testLogger())
	pool.RegisterHandler("generate", echoHandler)
	require.NoError(t, pool.Start())
	defer pool.Stop()

	payload := json.RawMessage(`{"sku":"A-100"}`)
	id, err := pool.Submit("generate", payload)
	require.NoError(t, err)

	snap := waitForStatus(t, pool, id, StatusCompleted)
	assert.Equal(t, "generate", snap.Kind)
	assert.JSONEq(t, string(payload), string(snap.Result))
	assert.Equal(t, 1.0, snap.Progress)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.StartedAt)
	require.NotNil(t, snap.CompletedAt)
	assert.False(t, snap.CompletedAt.Before(*snap.StartedAt))
}

func TestProcess_HandlerErrorRecordedWorkerSurvives(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 10}, testLogger())
	boom := errors.New("upstream rejected the prompt")
	pool.RegisterHandler("failing", func(ctx context.Context, payload json.RawMessage, report func(float64)) (json.RawMessage, error) {
		return nil, boom
	})
	pool.RegisterHandler("generate", echoHandler)
	require.NoError(t, pool.Start())
	defer pool.Stop()

	failID, err := pool.Submit("failing", json.RawMessage(`{}`))
	require.NoError(t, err)

	snap := waitForStatus(t, pool, failID, StatusFailed)
	assert.Equal(t, boom.Error(), snap.Error)

	// The same worker keeps processing subsequent items.
	okID, err := pool.Submit("generate", json.RawMessage(`{"sku":"B"}`))
	require.NoError(t, err)
	waitForStatus(t, pool, okID, StatusCompleted)
}

func TestProcess_HandlerPanicFailsItemOnly(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 10}, testLogger())
	pool.RegisterHandler("panicking", func(ctx context.Context, payload json.RawMessage, report func(float64)) (json.RawMessage, error) {
		panic("handler exploded")
	})
	pool.RegisterHandler("generate", echoHandler)
	require.NoError(t, pool.Start())
	defer pool.Stop()

	panicID, err := pool.Submit("panicking", json.RawMessage(`{}`))
	require.NoError(t, err)

	snap := waitForStatus(t, pool, panicID, StatusFailed)
	assert.Contains(t, snap.Error, "handler panicked")

	okID, err := pool.Submit("generate", json.RawMessage(`{}`))
	require.NoError(t, err)
	waitForStatus(t, pool, okID, StatusCompleted)
}

func TestProcess_ProgressMilestonesReachHooks(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 10}, testLogger())
	pool.RegisterHandler("stepped", func(ctx context.Context, payload json.RawMessage, report func(float64)) (json.RawMessage, error) {
		report(0.25)
		report(0.5)
		report(0.75)
		return json.RawMessage(`"done"`), nil
	})

	var mu sync.Mutex
	var fractions []float64
	pool.RegisterHook(HookProgress, func(snap Snapshot) {
		mu.Lock()
		fractions = append(fractions, snap.Progress)
		mu.Unlock()
	})

	require.NoError(t, pool.Start())
	defer pool.Stop()

	id, err := pool.Submit("stepped", json.RawMessage(`{}`))
	require.NoError(t, err)
	waitForStatus(t, pool, id, StatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{0.25, 0.5, 0.75}, fractions)
}

func TestHooks_LifecycleOrderAndIsolation(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 10}, testLogger())
	pool.RegisterHandler("generate", echoHandler)

	var mu sync.Mutex
	var order []string
	pool.RegisterHook(HookStart, func(snap Snapshot) {
		panic("first observer exploded")
	})
	pool.RegisterHook(HookStart, func(snap Snapshot) {
		mu.Lock()
		order = append(order, "start:"+string(snap.Status))
		mu.Unlock()
	})
	pool.RegisterHook(HookComplete, func(snap Snapshot) {
		mu.Lock()
		order = append(order, "complete:"+string(snap.Status))
		mu.Unlock()
	})

	require.NoError(t, pool.Start())
	defer pool.Stop()

	id, err := pool.Submit("generate", json.RawMessage(`{}`))
	require.NoError(t, err)
	waitForStatus(t, pool, id, StatusCompleted)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"start:running", "complete:completed"}, order)
}

func TestHooks_ErrorHookFiresOnFailure(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 10}, testLogger())
	pool.RegisterHandler("failing", func(ctx context.Context, payload json.RawMessage, report func(float64)) (json.RawMessage, error) {
		return nil, errors.New("nope")
	})

	errored := make(chan Snapshot, 1)
	pool.RegisterHook(HookError, func(snap Snapshot) {
		errored <- snap
	})

	require.NoError(t, pool.Start())
	defer pool.Stop()

	id, err := pool.Submit("failing", json.RawMessage(`{}`))
	require.NoError(t, err)

	select {
	case snap := <-errored:
		assert.Equal(t, id, snap.ID)
		assert.Equal(t, StatusFailed, snap.Status)
		assert.Equal(t, "nope", snap.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("error hook never fired")
	}
}

func TestGetStatus_UnknownIDIsNotFoundNotError(t *testing.T) {
	pool := NewWorkerPool(DefaultPoolConfig(), testLogger())

	_, ok := pool.GetStatus(uuid.New())
	assert.False(t, ok)
}

func TestCancel_PendingItemIsSkipped(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 10}, testLogger())
	executed := make(chan uuid.UUID, 10)
	pool.RegisterHandler("generate", func(ctx context.Context, payload json.RawMessage, report func(float64)) (json.RawMessage, error) {
		return payload, nil
	})
	pool.RegisterHook(HookStart, func(snap Snapshot) {
		executed <- snap.ID
	})

	// Cancel before any worker runs.
	id, err := pool.Submit("generate", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.True(t, pool.Cancel(id))

	snap, ok := pool.GetStatus(id)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, snap.Status)

	require.NoError(t, pool.Start())
	defer pool.Stop()

	// The cancelled item never starts.
	otherID, err := pool.Submit("generate", json.RawMessage(`{}`))
	require.NoError(t, err)
	waitForStatus(t, pool, otherID, StatusCompleted)

	close(executed)
	for startedID := range executed {
		assert.NotEqual(t, id, startedID)
	}
}

func TestCancel_RunningItemNotInterrupted(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 10}, testLogger())
	release := make(chan struct{})
	pool.RegisterHandler("slow", func(ctx context.Context, payload json.RawMessage, report func(float64)) (json.RawMessage, error) {
		<-release
		return json.RawMessage(`"done"`), nil
	})
	require.NoError(t, pool.Start())
	defer pool.Stop()

	id, err := pool.Submit("slow", json.RawMessage(`{}`))
	require.NoError(t, err)
	waitForStatus(t, pool, id, StatusRunning)

	assert.False(t, pool.Cancel(id))
	close(release)
	waitForStatus(t, pool, id, StatusCompleted)
}

func TestQueueStats_TracksCounts(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 10}, testLogger())
	release := make(chan struct{})
	pool.RegisterHandler("slow", func(ctx context.Context, payload json.RawMessage, report func(float64)) (json.RawMessage, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, pool.Start())
	defer pool.Stop()

	first, err := pool.Submit("slow", json.RawMessage(`{}`))
	require.NoError(t, err)
	waitForStatus(t, pool, first, StatusRunning)

	_, err = pool.Submit("slow", json.RawMessage(`{}`))
	require.NoError(t, err)

	stats := pool.QueueStats()
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.QueueSize)
	assert.Equal(t, 0, stats.Completed)

	close(release)
	require.Eventually(t, func() bool {
		return pool.QueueStats().Completed == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSubmitBatch_ReturnsAcceptedIDsOnOverflow(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 2}, testLogger())
	pool.RegisterHandler("generate", echoHandler)

	descriptors := []Descriptor{
		{Kind: "generate", Payload: json.RawMessage(`{"sku":"A"}`)},
		{Kind: "generate", Payload: json.RawMessage(`{"sku":"B"}`)},
		{Kind: "generate", Payload: json.RawMessage(`{"sku":"C"}`)},
	}

	ids, err := pool.SubmitBatch(descriptors)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Len(t, ids, 2)
}

func TestStop_MarksBufferedItemsCancelled(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 10}, testLogger())
	release := make(chan struct{})
	var once sync.Once
	pool.RegisterHandler("slow", func(ctx context.Context, payload json.RawMessage, report func(float64)) (json.RawMessage, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, pool.Start())

	runningID, err := pool.Submit("slow", json.RawMessage(`{}`))
	require.NoError(t, err)
	waitForStatus(t, pool, runningID, StatusRunning)

	queuedID, err := pool.Submit("slow", json.RawMessage(`{}`))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	once.Do(func() { close(release) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never returned")
	}

	runningSnap, ok := pool.GetStatus(runningID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, runningSnap.Status, "in-flight work finishes before shutdown")

	queuedSnap, ok := pool.GetStatus(queuedID)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, queuedSnap.Status, "unclaimed work is cancelled at shutdown")
}

func TestStop_DoesNotCancelInFlightHandlerContext(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 10}, testLogger())
	started := make(chan struct{})
	pool.RegisterHandler("generate", func(ctx context.Context, payload json.RawMessage, report func(float64)) (json.RawMessage, error) {
		close(started)
		// A context-aware handler, the shape every real handler has: its
		// outbound calls abort the moment the context is cancelled.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(150 * time.Millisecond):
			return json.RawMessage(`"done"`), nil
		}
	})
	require.NoError(t, pool.Start())

	id, err := pool.Submit("generate", json.RawMessage(`{}`))
	require.NoError(t, err)
	<-started

	pool.Stop()

	snap, ok := pool.GetStatus(id)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, snap.Status, "shutdown waits for the current task instead of interrupting it")
	assert.Empty(t, snap.Error)
	assert.Equal(t, json.RawMessage(`"done"`), snap.Result)
}
