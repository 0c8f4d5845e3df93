package cache

import (
	"context"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/observability"
)

// InstrumentedCache counts hits, misses and backend errors per cache family.
type InstrumentedCache struct {
	inner   Cache
	metrics *observability.Collector
}

// NewInstrumentedCache wraps inner.
func NewInstrumentedCache(inner Cache, metrics *observability.Collector) *InstrumentedCache {
	return &InstrumentedCache{inner: inner, metrics: metrics}
}

func (c *InstrumentedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	family := Family(key)
	v, ok, err := c.inner.Get(ctx, key)
	switch {
	case err != nil:
		c.metrics.CacheErrors.WithLabelValues(family, "get").Inc()
	case ok:
		c.metrics.CacheHits.WithLabelValues(family).Inc()
	default:
		c.metrics.CacheMisses.WithLabelValues(family).Inc()
	}
	return v, ok, err
}

func (c *InstrumentedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.inner.Set(ctx, key, value, ttl)
	if err != nil {
		c.metrics.CacheErrors.WithLabelValues(Family(key), "set").Inc()
	}
	return err
}

func (c *InstrumentedCache) Delete(ctx context.Context, key string) error {
	err := c.inner.Delete(ctx, key)
	if err != nil {
		c.metrics.CacheErrors.WithLabelValues(Family(key), "delete").Inc()
	}
	return err
}
