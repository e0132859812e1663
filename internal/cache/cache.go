// Package cache defines the tile cache contract. Caching lives in the host,
// never inside a tile source.
package cache

import (
	"context"
	"time"
)

type Store interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
