package job

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job.
type Status string

// Possible job status values. Transitions are forward-only:
// Queued -> Running -> {Completed, Failed, Cancelled}.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ItemDescriptor describes one work item of a job at submission time.
type ItemDescriptor struct {
	ID      uuid.UUID       `json:"id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// ItemOutcome is the terminal result record of one item. Partial success is
// a normal, expected state for a job: failed outcomes sit next to successful
// ones in the job's result list.
type ItemOutcome struct {
	ItemID  uuid.UUID       `json:"item_id"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Cached  bool            `json:"cached,omitempty"`
}

// Job is the durable aggregate over a fixed list of work items created
// together. Every mutation is flushed to storage before the next item starts,
// so a crash loses at most the in-flight item's partial progress.
type Job struct {
	ID      uuid.UUID
	Kind    string
	ItemIDs []uuid.UUID

	Status    Status
	Total     int
	Processed int
	Succeeded int
	Failed    int
	Results   []ItemOutcome
	Error     string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep copy safe to hand to callers while the tracker keeps
// mutating the original.
func (j *Job) Clone() *Job {
	clone := *j
	clone.ItemIDs = append([]uuid.UUID(nil), j.ItemIDs...)
	clone.Results = append([]ItemOutcome(nil), j.Results...)
	if j.StartedAt != nil {
		started := *j.StartedAt
		clone.StartedAt = &started
	}
	if j.CompletedAt != nil {
		completed := *j.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}

// Filter narrows ListJobs results. Zero values match everything.
type Filter struct {
	Status Status
	Kind   string
	Limit  int
}

// Store defines the interface for persisting jobs.
type Store interface {
	// SaveJob persists a newly created job.
	SaveJob(ctx context.Context, job *Job) error

	// UpdateJob persists the current state of an existing job.
	UpdateJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID. Returns store.ErrJobNotFound when absent.
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)

	// ListJobs retrieves jobs matching the filter, newest first.
	ListJobs(ctx context.Context, filter Filter) ([]*Job, error)
}
