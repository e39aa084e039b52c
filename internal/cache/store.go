// Package cache holds the time-bounded price cache and its backing stores.
package cache

import (
	"context"
	"time"
)

// Store is the key/value contract shared by the Redis, Postgres and
// in-memory backends. A missing key yields an empty hash or a nil blob,
// never an error.
type Store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HSetWithTTL replaces the hash at key in one step and sets its expiry.
	HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
