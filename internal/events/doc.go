// Package events defines the progress event contract between the job tracker
// and external observers, plus the built-in sinks (structured log, webhook).
package events
