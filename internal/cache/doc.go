// Package cache implements the tiered result cache used to avoid repeating
// expensive generation work. A process-local tier answers most lookups; an
// optional shared tier (Redis) enables cross-process reuse and is strictly
// best-effort.
package cache
