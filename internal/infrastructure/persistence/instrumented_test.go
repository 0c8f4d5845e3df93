package persistence_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/observability"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence/memory"
)

func TestInstrumentedStore(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewCollector("test")
	store := persistence.NewInstrumentedStore(memory.NewStore(), metrics)

	key, err := store.Put(ctx, persistence.Record{
		Key:   persistence.NewKey("Album", "", nil),
		Props: persistence.Properties{"title": "Odelay"},
	})
	require.NoError(t, err)

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Odelay", rec.Props["title"])

	_, err = store.Get(ctx, persistence.NewKey("Album", "missing", nil))
	assert.ErrorIs(t, err, persistence.ErrNoSuchEntity)

	_, err = store.Query(ctx, persistence.NewQuery("Album"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("put", "Album", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("get", "Album", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("get", "Album", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("query", "Album", "ok")))
}
