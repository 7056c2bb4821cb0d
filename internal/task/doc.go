// Package task implements the bounded in-memory task queue and its fixed
// worker pool: per-item lifecycle state, backpressure on submission, handler
// dispatch by kind, and synchronous lifecycle hooks for observers.
package task
