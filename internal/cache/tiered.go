package cache

import (
	"context"
	"time"

	"github.com/maprender/tilesource/internal/observability"
)

// Tiered reads through a fast front store into a shared back store and
// promotes back-store hits. A nil Back degrades to front-only caching.
type Tiered struct {
	Front Store
	Back  Store
}

func (t Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if t.Front != nil {
		if v, ok, err := t.Front.Get(ctx, key); err == nil && ok {
			observability.IncCacheHit("memory")
			return v, true, nil
		}
	}
	if t.Back == nil {
		observability.IncCacheMiss()
		return nil, false, nil
	}

	v, ok, err := t.Back.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		observability.IncCacheMiss()
		return nil, false, nil
	}
	observability.IncCacheHit("redis")
	if t.Front != nil {
		_ = t.Front.Set(ctx, key, v, 0)
	}
	return v, true, nil
}

func (t Tiered) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if t.Front != nil {
		_ = t.Front.Set(ctx, key, val, ttl)
	}
	if t.Back == nil {
		return nil
	}
	return t.Back.Set(ctx, key, val, ttl)
}

func (t Tiered) Del(ctx context.Context, keys ...string) error {
	if t.Front != nil {
		_ = t.Front.Del(ctx, keys...)
	}
	if t.Back == nil {
		return nil
	}
	return t.Back.Del(ctx, keys...)
}

type prefixDeleter interface {
	DelPrefix(ctx context.Context, prefix string) (int, error)
}

type purger interface {
	Purge()
}

// DelPrefix removes every entry under a key prefix. The front tier cannot
// enumerate by prefix, so it is dropped wholesale.
func (t Tiered) DelPrefix(ctx context.Context, prefix string) (int, error) {
	if p, ok := t.Front.(purger); ok {
		p.Purge()
	}
	if pd, ok := t.Back.(prefixDeleter); ok {
		return pd.DelPrefix(ctx, prefix)
	}
	return 0, nil
}
