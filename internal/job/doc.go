// Package job tracks long-running batch jobs: durable job records, background
// execution with per-item progress persistence, progress event publication,
// cooperative cancellation, and restart recovery.
package job
