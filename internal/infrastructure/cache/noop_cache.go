package cache

import (
	"context"
	"time"
)

// NoopCache never stores anything. Every read is a miss, so the repository
// layer falls through to the store on each call.
type NoopCache struct{}

// NewNoopCache creates a cache that caches nothing.
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (NoopCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (NoopCache) Delete(ctx context.Context, key string) error {
	return nil
}
