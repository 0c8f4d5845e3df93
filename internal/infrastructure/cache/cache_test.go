package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/observability"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeKey(t *testing.T) {
	short := "v1:entity:Album:abc"
	assert.Equal(t, short, SafeKey(short))

	long := "v1:ac:ArtistName:" + strings.Repeat("x", 400)
	safe := SafeKey(long)
	assert.Len(t, safe, MaxKeyLength)
	assert.True(t, strings.HasPrefix(safe, "v1:ac:ArtistName:"))
	assert.Equal(t, safe, SafeKey(long), "digest is deterministic")
	assert.NotEqual(t, safe, SafeKey(long+"y"))
}

func TestFamily(t *testing.T) {
	assert.Equal(t, "last", Family("v1:last:Play:-:1:0"))
	assert.Equal(t, "entity", Family("v1:entity:Dj:bob"))
	assert.Equal(t, "other", Family("plain"))
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("Should expire entries after their ttl", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewMemoryCache(10, 1<<20, nil).WithClock(func() time.Time { return now })
		require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
		require.NoError(t, c.Set(ctx, "forever", []byte("2"), 0))

		v, ok, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("1"), v)

		now = now.Add(2 * time.Minute)
		_, ok, _ = c.Get(ctx, "a")
		assert.False(t, ok)
		_, ok, _ = c.Get(ctx, "forever")
		assert.True(t, ok)
	})

	t.Run("Should evict the least recently used entry", func(t *testing.T) {
		c := NewMemoryCache(2, 1<<20, nil)
		require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
		require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
		_, _, _ = c.Get(ctx, "a")
		require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

		_, ok, _ := c.Get(ctx, "b")
		assert.False(t, ok)
		_, ok, _ = c.Get(ctx, "a")
		assert.True(t, ok)
		assert.Equal(t, int64(1), c.Stats().Evictions())
	})

	t.Run("Should count traffic per cache family", func(t *testing.T) {
		c := NewMemoryCache(1, 1<<20, nil)
		require.NoError(t, c.Set(ctx, "v1:entity:Album:a", []byte("1"), 0))
		_, _, _ = c.Get(ctx, "v1:entity:Album:a")
		_, _, _ = c.Get(ctx, "v1:last:Play:-:2:1")
		require.NoError(t, c.Set(ctx, "v1:last:Play:-:2:1", []byte("[]"), 0))

		stats := c.Stats()
		assert.Equal(t, 1, stats.Entries)
		assert.Equal(t, FamilyStats{Hits: 1, Evictions: 1}, stats.Families["entity"])
		assert.Equal(t, int64(1), stats.Families["last"].Misses)
		assert.Equal(t, 1, stats.Families["last"].Entries)
	})

	t.Run("Should sweep expired entries", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewMemoryCache(10, 1<<20, nil).WithClock(func() time.Time { return now })
		require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
		require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
		now = now.Add(time.Hour)
		assert.Equal(t, 1, c.sweep())
		assert.Equal(t, 1, c.Stats().Entries)
	})

	t.Run("Should drop values larger than the cache", func(t *testing.T) {
		c := NewMemoryCache(10, 8, nil)
		require.NoError(t, c.Set(ctx, "k", []byte("old"), 0))
		require.NoError(t, c.Set(ctx, "k", []byte("much too large"), 0))
		_, ok, _ := c.Get(ctx, "k")
		assert.False(t, ok, "a dropped write must not leave the stale value behind")
	})
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	c := NewRedisCache(client, "wbor:")

	_, ok, err := c.Get(ctx, "v1:entity:Dj:alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "v1:entity:Dj:alice", []byte(`{"name":"Alice"}`), time.Minute))
	assert.True(t, srv.Exists("wbor:v1:entity:Dj:alice"))

	v, ok, err := c.Get(ctx, "v1:entity:Dj:alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"name":"Alice"}`, string(v))

	srv.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "v1:entity:Dj:alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, c.Delete(ctx, "k"))
	assert.False(t, srv.Exists("wbor:k"))

	srv.SetError("ERR server unavailable")
	_, _, err = c.Get(ctx, "k")
	assert.Error(t, err)
}

type failingCache struct {
	err   error
	calls int
}

func (f *failingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.calls++
	return nil, false, f.err
}

func (f *failingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.calls++
	return f.err
}

func (f *failingCache) Delete(ctx context.Context, key string) error {
	f.calls++
	return f.err
}

func TestBreakerCache(t *testing.T) {
	ctx := context.Background()
	inner := &failingCache{err: errors.New("connection refused")}
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 3
	cfg.Metrics = observability.NewCollector("test")
	b := NewBreakerCache(inner, cfg, nil)

	for i := 0; i < 3; i++ {
		_, _, err := b.Get(ctx, "k")
		assert.ErrorContains(t, err, "connection refused")
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(cfg.Metrics.BreakerState.WithLabelValues("test")))

	_, _, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 3, inner.calls, "open breaker must not reach the backend")
}

func TestInstrumentedCache(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewCollector("test")
	c := NewInstrumentedCache(NewMemoryCache(10, 1<<20, nil), metrics)

	_, _, _ = c.Get(ctx, "v1:last:Play:-:2:1")
	require.NoError(t, c.Set(ctx, "v1:last:Play:-:2:1", []byte("[]"), 0))
	_, _, _ = c.Get(ctx, "v1:last:Play:-:2:1")

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHits.WithLabelValues("last")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheMisses.WithLabelValues("last")))

	failing := NewInstrumentedCache(&failingCache{err: errors.New("down")}, metrics)
	_ = failing.Set(ctx, "v1:entity:Dj:x", nil, 0)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheErrors.WithLabelValues("entity", "set")))
}
