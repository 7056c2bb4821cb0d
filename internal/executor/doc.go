// Package executor provides the concurrency-limited execution primitives of
// the engine: a retrying invoker for single units of work and a batch
// executor that fans out many items under one concurrency gate with cache
// consultation and duplicate coalescing.
package executor
