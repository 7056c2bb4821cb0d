package events

import (
	"context"
	"log/slog"
	"sync"
)

// MultiSinkEmitter is a simple implementation of the Emitter interface that
// stores registered sinks in memory and dispatches events to them
// synchronously. One sink's failure or panic never suppresses delivery to
// the next.
type MultiSinkEmitter struct {
	sinks  []Sink
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewMultiSinkEmitter creates a new instance of MultiSinkEmitter.
func NewMultiSinkEmitter(logger *slog.Logger) *MultiSinkEmitter {
	return &MultiSinkEmitter{
		sinks:  make([]Sink, 0),
		logger: logger.With("component", "multi_sink_emitter"),
	}
}

// RegisterSink adds a new sink to receive progress events.
func (e *MultiSinkEmitter) RegisterSink(sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
	e.logger.Debug("registered progress sink", "sink_count", len(e.sinks))
}

// EmitProgress delivers the event to every registered sink with per-sink
// error and panic isolation.
func (e *MultiSinkEmitter) EmitProgress(ctx context.Context, event ProgressEvent) {
	e.mu.RLock()
	sinks := make([]Sink, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.RUnlock()

	for i, sink := range sinks {
		e.deliver(ctx, sink, i, event)
	}
}

// deliver invokes one sink, converting panics into logged errors.
func (e *MultiSinkEmitter) deliver(ctx context.Context, sink Sink, index int, event ProgressEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("progress sink panicked",
				"sink_index", index,
				"job_id", event.JobID,
				"panic", r)
		}
	}()

	if err := sink.HandleProgress(ctx, event); err != nil {
		e.logger.Error("progress sink failed",
			"sink_index", index,
			"job_id", event.JobID,
			"error", err)
	}
}

// LoggingSink writes progress events to the structured log. It is always
// registered so operators can trace a job with no other sink configured.
type LoggingSink struct {
	logger *slog.Logger
}

// NewLoggingSink creates a LoggingSink.
func NewLoggingSink(logger *slog.Logger) *LoggingSink {
	return &LoggingSink{logger: logger.With("component", "progress_log")}
}

// HandleProgress implements the Sink interface.
func (s *LoggingSink) HandleProgress(ctx context.Context, event ProgressEvent) error {
	s.logger.Info("job progress",
		"job_id", event.JobID,
		"status", event.Status,
		"processed", event.Processed,
		"total", event.Total,
		"succeeded", event.Succeeded,
		"failed", event.Failed)
	return nil
}

// Ensure implementations satisfy their interfaces.
var (
	_ Emitter = (*MultiSinkEmitter)(nil)
	_ Sink    = (*LoggingSink)(nil)
)
