package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ErrMiss is returned by shared tier implementations when a key is absent.
// Callers of ResultCache never see it; the cache converts it to a miss.
var ErrMiss = errors.New("cache miss")

// SharedTier is an optional cross-process cache backend (e.g. Redis).
// Implementations must provide their own atomicity for single-key operations.
type SharedTier interface {
	// Get returns the value and its remaining TTL, or ErrMiss if absent.
	Get(ctx context.Context, key string) ([]byte, time.Duration, error)

	// Set stores the value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error

	// Purge removes every key with the given prefix.
	Purge(ctx context.Context, prefix string) error
}

// localEntry is a value held in the process-local tier.
type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// ResultCache is a two-tier key/value store used to avoid repeating expensive
// generation work. The process-local tier is authoritative for correctness;
// the shared tier is best-effort and any failure there degrades to a miss.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]localEntry

	shared SharedTier // may be nil
	logger *slog.Logger

	stats statsCounters
}

// NewResultCache creates a ResultCache. shared may be nil, in which case the
// cache operates with the local tier only.
func NewResultCache(shared SharedTier, logger *slog.Logger) *ResultCache {
	return &ResultCache{
		entries: make(map[string]localEntry),
		shared:  shared,
		logger:  logger.With("component", "result_cache"),
	}
}

// fullKey joins a namespace and key into the single flat key space used by
// both tiers. Namespaces must not contain the separator.
func fullKey(namespace, key string) string {
	return namespace + ":" + key
}

// Get returns the cached value for (namespace, key), or ok=false on a miss.
// An expired local entry is treated as a miss and evicted. A shared tier hit
// is promoted into the local tier with its remaining TTL.
func (c *ResultCache) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	fk := fullKey(namespace, key)

	c.mu.Lock()
	entry, found := c.entries[fk]
	if found {
		if time.Now().Before(entry.expiresAt) {
			c.mu.Unlock()
			c.stats.localHit()
			return entry.value, true
		}
		// Expired entries are misses, not errors.
		delete(c.entries, fk)
	}
	c.mu.Unlock()

	if c.shared == nil {
		c.stats.miss()
		return nil, false
	}

	value, ttl, err := c.shared.Get(ctx, fk)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("shared cache tier unavailable, treating as miss",
				"key", fk, "error", err)
		}
		c.stats.miss()
		return nil, false
	}

	if ttl > 0 {
		c.mu.Lock()
		c.entries[fk] = localEntry{value: value, expiresAt: time.Now().Add(ttl)}
		c.mu.Unlock()
	}

	c.stats.sharedHit()
	return value, true
}

// Set stores the value under (namespace, key) with the given TTL in both
// tiers. The local tier never fails the caller; a shared tier failure is
// logged and otherwise ignored.
func (c *ResultCache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	fk := fullKey(namespace, key)

	c.mu.Lock()
	c.entries[fk] = localEntry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()

	if c.shared == nil {
		return
	}
	if err := c.shared.Set(ctx, fk, value, ttl); err != nil {
		c.logger.Warn("failed to write to shared cache tier",
			"key", fk, "error", err)
	}
}

// Invalidate removes entries under the namespace. With no keys it purges the
// whole namespace; with keys it removes only those entries. Used by operators
// to force-expire stale cached generations after an upstream config change.
func (c *ResultCache) Invalidate(ctx context.Context, namespace string, keys ...string) {
	prefix := namespace + ":"

	c.mu.Lock()
	if len(keys) == 0 {
		for fk := range c.entries {
			if strings.HasPrefix(fk, prefix) {
				delete(c.entries, fk)
			}
		}
	} else {
		for _, key := range keys {
			delete(c.entries, fullKey(namespace, key))
		}
	}
	c.mu.Unlock()

	if c.shared == nil {
		return
	}

	var err error
	if len(keys) == 0 {
		err = c.shared.Purge(ctx, prefix)
	} else {
		fks := make([]string, len(keys))
		for i, key := range keys {
			fks[i] = fullKey(namespace, key)
		}
		err = c.shared.Delete(ctx, fks...)
	}
	if err != nil {
		c.logger.Warn("failed to invalidate shared cache tier",
			"namespace", namespace, "error", err)
	}
}

// Stats returns a snapshot of hit/miss counters for operational visibility.
func (c *ResultCache) Stats() Stats {
	return c.stats.snapshot()
}
