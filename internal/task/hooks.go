package task

import "log/slog"

// HookKind identifies the observable points in a work item's lifecycle.
type HookKind int

const (
	HookStart HookKind = iota
	HookProgress
	HookComplete
	HookError
)

// Hook receives the current snapshot of a work item at one of the lifecycle
// points. Hooks run synchronously on the worker goroutine and must not block
// indefinitely; a hook's error or panic is logged and never fails the task.
type Hook func(snapshot Snapshot)

// hookSet stores registered hooks per kind. Registration happens during pool
// setup, before Start, so dispatch reads need no locking.
type hookSet struct {
	hooks  map[HookKind][]Hook
	logger *slog.Logger
}

func newHookSet(logger *slog.Logger) *hookSet {
	return &hookSet{
		hooks:  make(map[HookKind][]Hook),
		logger: logger,
	}
}

func (h *hookSet) register(kind HookKind, hook Hook) {
	h.hooks[kind] = append(h.hooks[kind], hook)
}

// dispatch invokes every hook registered for kind with panic isolation, so
// one observer's failure cannot suppress delivery to the next or kill the
// worker.
func (h *hookSet) dispatch(kind HookKind, snapshot Snapshot) {
	for i, hook := range h.hooks[kind] {
		h.invoke(hook, i, kind, snapshot)
	}
}

func (h *hookSet) invoke(hook Hook, index int, kind HookKind, snapshot Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("task hook panicked",
				"hook_kind", int(kind),
				"hook_index", index,
				"task_id", snapshot.ID,
				"panic", r)
		}
	}()
	hook(snapshot)
}
