package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProgressEvent is the snapshot republished to external observers after every
// processed item of a job. UIs consume it to show live progress without
// polling.
type ProgressEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`

	// CurrentItem carries the result record of the item that triggered this
	// event, when there is one.
	CurrentItem json.RawMessage `json:"current_item_result,omitempty"`

	EmittedAt time.Time `json:"emitted_at"`
}

// Sink receives progress events. Implementations must tolerate being called
// from the job's execution goroutine and should return quickly; delivery
// failures are the sink's own concern and never fail the job.
type Sink interface {
	// HandleProgress processes one progress event.
	HandleProgress(ctx context.Context, event ProgressEvent) error
}

// Emitter publishes progress events to registered sinks.
type Emitter interface {
	// EmitProgress delivers the event to every registered sink.
	EmitProgress(ctx context.Context, event ProgressEvent)
}
