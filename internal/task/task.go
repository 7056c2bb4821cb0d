package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a work item.
type Status string

// Possible work item status values. Transitions are forward-only:
// Pending -> Running -> {Completed, Failed, Cancelled}.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// WorkItem is the smallest unit of schedulable execution: one generation (or
// similar) operation. It is mutated only by the worker currently owning it
// and becomes read-only once terminal.
type WorkItem struct {
	ID      uuid.UUID
	Kind    string
	Payload json.RawMessage

	Status   Status
	Progress float64
	Result   json.RawMessage
	Error    string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Snapshot is an immutable copy of a work item's observable state, safe to
// hand to callers and hooks while the worker keeps mutating the original.
type Snapshot struct {
	ID          uuid.UUID       `json:"id"`
	Kind        string          `json:"kind"`
	Status      Status          `json:"status"`
	Progress    float64         `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// snapshot copies the item's observable state. Callers must hold the pool
// lock guarding the item.
func (w *WorkItem) snapshot() Snapshot {
	snap := Snapshot{
		ID:        w.ID,
		Kind:      w.Kind,
		Status:    w.Status,
		Progress:  w.Progress,
		Result:    w.Result,
		Error:     w.Error,
		CreatedAt: w.CreatedAt,
	}
	if w.StartedAt != nil {
		started := *w.StartedAt
		snap.StartedAt = &started
	}
	if w.CompletedAt != nil {
		completed := *w.CompletedAt
		snap.CompletedAt = &completed
	}
	return snap
}

// newWorkItem creates a Pending work item for submission.
func newWorkItem(kind string, payload json.RawMessage) *WorkItem {
	return &WorkItem{
		ID:        uuid.New(),
		Kind:      kind,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}
