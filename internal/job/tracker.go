package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shelfscribe/engine/internal/events"
	"github.com/shelfscribe/engine/internal/store"
)

// ReportFunc is called by a processor once per completed item, in the order
// the processor finishes them. Each call updates the job's counters, appends
// the outcome, persists the job, and republishes a progress event.
type ReportFunc func(outcome ItemOutcome)

// Processor executes a job's items. It must call report once per item and
// should poll cancelled between items to honor cooperative cancellation.
// Returning an error marks the job Failed.
type Processor func(ctx context.Context, job *Job, report ReportFunc, cancelled func() bool) error

// runningJob is the tracker's in-memory handle on an executing job.
// persistMu serializes writes to the job record; independent jobs persist
// concurrently without contention.
type runningJob struct {
	job       *Job
	cancelled atomic.Bool
	persistMu sync.Mutex
}

// Tracker owns job records: it persists every progress mutation so state
// survives restarts, and republishes each mutation to the event emitter so
// external observers see live progress without polling.
type Tracker struct {
	store   Store
	emitter events.Emitter
	logger  *slog.Logger

	mu      sync.Mutex
	running map[uuid.UUID]*runningJob
	wg      sync.WaitGroup
}

// NewTracker creates a Tracker.
func NewTracker(store Store, emitter events.Emitter, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:   store,
		emitter: emitter,
		logger:  logger.With("component", "job_tracker"),
		running: make(map[uuid.UUID]*runningJob),
	}
}

// CreateJob persists a new Queued job over the given item descriptors and
// returns it. Descriptors without an ID are assigned one.
func (t *Tracker) CreateJob(ctx context.Context, kind string, descriptors []ItemDescriptor) (*Job, error) {
	itemIDs := make([]uuid.UUID, len(descriptors))
	for i := range descriptors {
		if descriptors[i].ID == uuid.Nil {
			descriptors[i].ID = uuid.New()
		}
		itemIDs[i] = descriptors[i].ID
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.New(),
		Kind:      kind,
		ItemIDs:   itemIDs,
		Status:    StatusQueued,
		Total:     len(descriptors),
		Results:   make([]ItemOutcome, 0, len(descriptors)),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	t.logger.Info("job created",
		"job_id", job.ID,
		"job_kind", kind,
		"total_items", job.Total)
	return job.Clone(), nil
}

// StartJob begins asynchronous execution of a Queued job on a dedicated
// goroutine; the caller returns as soon as the job is marked Running. The
// processor's failure becomes the job's terminal error and never propagates
// to the caller or to other jobs.
func (t *Tracker) StartJob(ctx context.Context, id uuid.UUID, processor Processor) error {
	job, err := t.store.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status != StatusQueued {
		return fmt.Errorf("job %s is %s, only queued jobs can be started", id, job.Status)
	}

	now := time.Now().UTC()
	job.Status = StatusRunning
	job.StartedAt = &now
	job.UpdatedAt = now
	if err := t.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	run := &runningJob{job: job}
	t.mu.Lock()
	t.running[id] = run
	t.mu.Unlock()

	t.wg.Add(1)
	go t.execute(run, processor)

	return nil
}

// execute drives one job to a terminal state on its own goroutine.
func (t *Tracker) execute(run *runningJob, processor Processor) {
	defer t.wg.Done()

	// Detached from the submitting request's context: the job may outlive it
	// by hours.
	ctx := context.Background()
	job := run.job
	logger := t.logger.With("job_id", job.ID, "job_kind", job.Kind)
	logger.Info("job started", "total_items", job.Total)

	report := func(outcome ItemOutcome) {
		run.persistMu.Lock()
		job.Processed++
		if outcome.Success {
			job.Succeeded++
		} else {
			job.Failed++
		}
		job.Results = append(job.Results, outcome)
		job.UpdatedAt = time.Now().UTC()

		if err := t.store.UpdateJob(ctx, job); err != nil {
			logger.Error("failed to persist job progress", "error", err)
		}
		snapshot := job.Clone()
		run.persistMu.Unlock()

		t.emitProgress(ctx, snapshot, &outcome)
	}

	err := t.runProcessor(ctx, job, processor, report, run.cancelled.Load)

	run.persistMu.Lock()
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.UpdatedAt = now
	switch {
	// A cancellation that lands after every item has already been processed
	// has nothing left to cancel; the job ran to completion.
	case run.cancelled.Load() && job.Processed < job.Total:
		job.Status = StatusCancelled
		logger.Info("job cancelled",
			"processed", job.Processed,
			"total", job.Total)
	case err != nil:
		job.Status = StatusFailed
		job.Error = err.Error()
		logger.Error("job failed", "error", err)
	default:
		job.Status = StatusCompleted
		logger.Info("job completed",
			"processed", job.Processed,
			"succeeded", job.Succeeded,
			"failed", job.Failed)
	}

	if persistErr := t.store.UpdateJob(ctx, job); persistErr != nil {
		logger.Error("failed to persist terminal job state", "error", persistErr)
	}
	snapshot := job.Clone()
	run.persistMu.Unlock()

	t.emitProgress(ctx, snapshot, nil)

	t.mu.Lock()
	delete(t.running, job.ID)
	t.mu.Unlock()
}

// runProcessor invokes the processor with panic recovery so a panicking
// processor fails its job instead of crashing the process.
func (t *Tracker) runProcessor(
	ctx context.Context,
	job *Job,
	processor Processor,
	report ReportFunc,
	cancelled func() bool,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job processor panicked: %v", r)
		}
	}()
	return processor(ctx, job.Clone(), report, cancelled)
}

// emitProgress republishes the job snapshot to the event emitter.
func (t *Tracker) emitProgress(ctx context.Context, job *Job, current *ItemOutcome) {
	event := events.ProgressEvent{
		JobID:     job.ID,
		Status:    string(job.Status),
		Total:     job.Total,
		Processed: job.Processed,
		Succeeded: job.Succeeded,
		Failed:    job.Failed,
		EmittedAt: time.Now().UTC(),
	}
	if current != nil {
		if encoded, err := json.Marshal(current); err == nil {
			event.CurrentItem = encoded
		} else {
			t.logger.Warn("failed to encode item outcome for progress event",
				"job_id", job.ID, "error", err)
		}
	}
	t.emitter.EmitProgress(ctx, event)
}

// GetJob returns the persisted state of a job. Unknown IDs surface
// store.ErrJobNotFound, distinguished from genuine failures.
func (t *Tracker) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return t.store.GetJob(ctx, id)
}

// ListJobs returns persisted jobs matching the filter.
func (t *Tracker) ListJobs(ctx context.Context, filter Filter) ([]*Job, error) {
	return t.store.ListJobs(ctx, filter)
}

// CancelJob requests cooperative cancellation. For a running job it flips the
// flag the processor polls; for a queued job it marks the record Cancelled
// directly. Returns whether a cancellation was initiated.
func (t *Tracker) CancelJob(ctx context.Context, id uuid.UUID) (bool, error) {
	t.mu.Lock()
	run, isRunning := t.running[id]
	t.mu.Unlock()

	if isRunning {
		run.cancelled.Store(true)
		t.logger.Info("job cancellation requested", "job_id", id)
		return true, nil
	}

	job, err := t.store.GetJob(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return false, err
		}
		return false, fmt.Errorf("failed to load job for cancellation: %w", err)
	}
	if job.Status != StatusQueued {
		return false, nil
	}

	now := time.Now().UTC()
	job.Status = StatusCancelled
	job.CompletedAt = &now
	job.UpdatedAt = now
	if err := t.store.UpdateJob(ctx, job); err != nil {
		return false, fmt.Errorf("failed to persist cancellation: %w", err)
	}
	return true, nil
}

// RecoverJobs reconciles persisted state after a restart: jobs found Running
// were interrupted mid-flight and are marked Failed, since their in-memory
// execution state is gone. Queued jobs are left for resubmission. Returns the
// number of interrupted jobs.
func (t *Tracker) RecoverJobs(ctx context.Context) (int, error) {
	interrupted, err := t.store.ListJobs(ctx, Filter{Status: StatusRunning})
	if err != nil {
		return 0, fmt.Errorf("failed to list running jobs: %w", err)
	}

	for _, job := range interrupted {
		now := time.Now().UTC()
		job.Status = StatusFailed
		job.Error = "interrupted by process restart"
		job.CompletedAt = &now
		job.UpdatedAt = now
		if err := t.store.UpdateJob(ctx, job); err != nil {
			return 0, fmt.Errorf("failed to mark job %s interrupted: %w", job.ID, err)
		}
		t.logger.Warn("marked interrupted job as failed",
			"job_id", job.ID,
			"processed", job.Processed,
			"total", job.Total)
	}

	return len(interrupted), nil
}

// Wait blocks until every started job has reached a terminal state. Used
// during shutdown; callers wanting a deadline wrap this externally.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
