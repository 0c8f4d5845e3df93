package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("cache unavailable")
}

func (brokenCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("cache unavailable")
}

func (brokenCache) Delete(ctx context.Context, key string) error {
	return errors.New("cache unavailable")
}

func TestPointCache_Get(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	points := NewPointCache(f.deps, itemCodec("Album"), time.Hour)
	k := persistence.NewKey("Album", "kid-a", nil)
	_, err := f.store.Put(ctx, (&item{Key: k, Name: "Kid A"}).ToRecord())
	require.NoError(t, err)

	t.Run("Should return nothing on a miss without fallback", func(t *testing.T) {
		got, err := points.Get(ctx, k, false)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Zero(t, f.store.Stats().Gets)
	})

	t.Run("Should read through and then serve from cache", func(t *testing.T) {
		got, err := points.Get(ctx, k, true)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Kid A", got.Name)

		got, err = points.Get(ctx, k, true)
		require.NoError(t, err)
		assert.Equal(t, k, got.Key)
		assert.Equal(t, 1, f.store.Stats().Gets)
	})

	t.Run("Should return nothing for a missing entity", func(t *testing.T) {
		got, err := points.Get(ctx, persistence.NewKey("Album", "nope", nil), true)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should pass loaded refs through", func(t *testing.T) {
		loaded := &item{Key: k, Name: "unsaved edit"}
		got, err := points.Resolve(ctx, EntityRef(loaded))
		require.NoError(t, err)
		assert.Same(t, loaded, got)

		got, err = points.Resolve(ctx, KeyRef[*item](k))
		require.NoError(t, err)
		assert.Equal(t, "Kid A", got.Name)
	})
}

func TestPointCache_GetMulti(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	points := NewPointCache(f.deps, itemCodec("Album"), time.Hour)

	var keys []persistence.Key
	for _, name := range []string{"a", "b", "c"} {
		k, err := points.Put(ctx, &item{Key: persistence.NewKey("Album", name, nil), Name: name})
		require.NoError(t, err)
		keys = append(keys, k)
	}
	points.Evict(ctx, keys[1])
	missing := persistence.NewKey("Album", "gone", nil)

	got, err := points.GetMulti(ctx, []persistence.Key{keys[2], missing, keys[1], keys[0]})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, names(got))
	assert.Equal(t, 1, f.store.Stats().MultiGets, "misses fetched in one round trip")

	got, err = points.GetMulti(ctx, keys)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 1, f.store.Stats().MultiGets, "all hits after the first call")

	_, err = points.GetMulti(ctx, []persistence.Key{missing})
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.Stats().MultiGets, "the missing key is not remembered")
}

func TestPointCache_CacheFailuresDegrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.deps.Cache = brokenCache{}
	points := NewPointCache(f.deps, itemCodec("Album"), time.Hour)

	k, err := points.Put(ctx, &item{Key: persistence.NewKey("Album", "", nil), Name: "Loveless"})
	require.NoError(t, err)
	assert.False(t, k.Incomplete())

	got, err := points.Get(ctx, k, true)
	require.NoError(t, err)
	assert.Equal(t, "Loveless", got.Name)

	require.NoError(t, points.Delete(ctx, k))
	assert.Zero(t, f.store.Len())
}

func TestEntities_Hooks(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	points := NewPointCache(f.deps, itemCodec("Album"), time.Hour)

	var puts []bool
	var deletes int
	albums := NewEntities(points, HookFuncs[*item]{
		Put: func(ctx context.Context, e, prev *item, existed bool) error {
			puts = append(puts, existed)
			if existed {
				assert.Equal(t, "Draft", prev.Name)
			}
			return errors.New("derived cache unavailable")
		},
	})
	albums.Use(HookFuncs[*item]{
		Delete: func(ctx context.Context, e *item) error {
			deletes++
			assert.Equal(t, "Final", e.Name)
			return nil
		},
	})

	a := &item{Key: persistence.NewKey("Album", "", nil), Name: "Draft"}
	_, err := albums.Put(ctx, a)
	require.NoError(t, err, "hook failures are not fatal")

	a.Name = "Final"
	_, err = albums.Put(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, puts)

	require.NoError(t, albums.Delete(ctx, a.Key))
	require.NoError(t, albums.Delete(ctx, a.Key))
	assert.Equal(t, 1, deletes, "deleting a missing key runs no hooks")

	got, err := albums.Get(ctx, a.Key, true)
	require.NoError(t, err)
	assert.Nil(t, got)
}
