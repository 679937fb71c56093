package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented cache with TTLs and prefix invalidation.
// Writers invalidate, never patch: after any team mutation the whole
// team prefix is dropped so reads can't observe stale entries.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}
