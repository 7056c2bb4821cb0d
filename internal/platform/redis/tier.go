// Package redis implements the shared cache tier on top of a Redis server
// using the go-redis client. The tier is best-effort by contract: callers
// treat any error as a cache miss.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shelfscribe/engine/internal/cache"
)

// Tier adapts a Redis client to the cache.SharedTier interface.
type Tier struct {
	client *redis.Client
}

// NewTier connects to the Redis server at addr and verifies the connection.
func NewTier(ctx context.Context, addr string) (*Tier, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &Tier{client: client}, nil
}

// Get returns the value and remaining TTL for key, or cache.ErrMiss.
func (t *Tier) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	value, err := t.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, cache.ErrMiss
		}
		return nil, 0, fmt.Errorf("redis get failed: %w", err)
	}

	ttl, err := t.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis pttl failed: %w", err)
	}
	if ttl < 0 {
		// Key vanished or has no expiry between the two calls; treat as miss
		// so the caller never promotes an entry without a deadline.
		return nil, 0, cache.ErrMiss
	}

	return value, ttl, nil
}

// Set stores the value with the given TTL.
func (t *Tier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes the given keys.
func (t *Tier) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := t.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Purge removes every key under the given prefix using incremental SCAN so
// large namespaces do not block the server.
func (t *Tier) Purge(ctx context.Context, prefix string) error {
	iter := t.client.Scan(ctx, 0, prefix+"*", 100).Iterator()

	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := t.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis del failed during purge: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed during purge: %w", err)
	}

	if len(batch) > 0 {
		if err := t.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis del failed during purge: %w", err)
		}
	}
	return nil
}

// Close releases the underlying client connection pool.
func (t *Tier) Close() error {
	return t.client.Close()
}

// Ensure Tier implements cache.SharedTier.
var _ cache.SharedTier = (*Tier)(nil)
