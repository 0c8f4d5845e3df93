package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type playsFixture struct {
	*fixture
	plays   *Entities[*item]
	last    *LastN[*item]
	program persistence.Key
}

func newPlaysFixture(pageSize int) *playsFixture {
	f := newFixture()
	points := NewPointCache(f.deps, itemCodec("Play"), time.Hour)
	last := NewLastN(f.deps, LastNConfig{
		Kind:        "Play",
		Field:       "date",
		Order:       Descending,
		Width:       7 * 24 * time.Hour,
		Granularity: time.Hour,
		PageSize:    pageSize,
		TTL:         time.Hour,
	}, points)
	return &playsFixture{
		fixture: f,
		plays:   NewEntities(points, last),
		last:    last,
		program: persistence.NewKey("Program", "morning", nil),
	}
}

func (f *playsFixture) chart(t *testing.T, name string, at time.Time) *item {
	t.Helper()
	p := &item{Key: persistence.NewKey("Play", "", &f.program), Name: name, Date: at}
	_, err := f.plays.Put(context.Background(), p)
	require.NoError(t, err)
	return p
}

func TestLastN_Window(t *testing.T) {
	f := newPlaysFixture(20)

	before, after := f.last.Window(LastQuery{})
	assert.Equal(t, time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC), before)
	assert.Equal(t, before.Add(-7*24*time.Hour), after)

	explicit := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	before, after = f.last.Window(LastQuery{Before: explicit})
	assert.Equal(t, explicit, before)
	assert.Equal(t, explicit.Add(-7*24*time.Hour), after)

	before, after = f.last.Window(LastQuery{After: explicit})
	assert.Equal(t, explicit.Add(7*24*time.Hour), before)
	assert.Equal(t, explicit, after)

	soonest := NewLastN[*item](f.deps, LastNConfig{Kind: "Event", Field: "date", Order: Ascending, Granularity: 24 * time.Hour}, nil)
	before, after = soonest.Window(LastQuery{})
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), after)
	assert.Equal(t, after.Add(7*24*time.Hour), before)
}

func TestLastN_ThreePlays(t *testing.T) {
	for _, pageSize := range []int{1, 2, 20} {
		t.Run(fmt.Sprintf("page size %d", pageSize), func(t *testing.T) {
			ctx := context.Background()
			f := newPlaysFixture(pageSize)
			d := testNow.Add(-time.Hour)
			p1 := f.chart(t, "P1", d)
			p2 := f.chart(t, "P2", d.Add(time.Minute))
			p3 := f.chart(t, "P3", d.Add(2*time.Minute))
			scope := LastQuery{Scope: &f.program}

			got, err := f.last.GetLast(ctx, 2, scope)
			require.NoError(t, err)
			assert.Equal(t, []string{"P3", "P2"}, names(got))

			require.NoError(t, f.plays.Delete(ctx, p3.Key))

			got, err = f.last.GetLast(ctx, 2, scope)
			require.NoError(t, err)
			assert.Equal(t, []string{"P2", "P1"}, names(got))

			keys, err := f.last.GetLastKeys(ctx, 5, LastQuery{})
			require.NoError(t, err)
			assert.Equal(t, []persistence.Key{p2.Key, p1.Key}, keys)
		})
	}
}

func TestLastN_IdempotentPopulation(t *testing.T) {
	ctx := context.Background()
	f := newPlaysFixture(3)
	for i := 0; i < 10; i++ {
		f.chart(t, fmt.Sprintf("P%d", i), testNow.Add(-time.Duration(i)*time.Minute))
	}

	first, err := f.last.GetLastKeys(ctx, 5, LastQuery{})
	require.NoError(t, err)
	queries := f.store.Stats().Queries

	second, err := f.last.GetLastKeys(ctx, 5, LastQuery{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, queries, f.store.Stats().Queries, "second call is served from cache")
}

func TestLastN_BoundedCorrectness(t *testing.T) {
	ctx := context.Background()
	f := newPlaysFixture(4)
	for i := 0; i < 12; i++ {
		// Out of order on purpose.
		f.chart(t, fmt.Sprintf("P%02d", i), testNow.Add(-time.Duration((i*7)%12)*time.Minute))
	}

	for _, n := range []int{1, 3, 5, 12, 30} {
		got, err := f.last.GetLast(ctx, n, LastQuery{Scope: &f.program})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), n)

		seen := map[persistence.Key]bool{}
		for i, p := range got {
			assert.False(t, seen[p.Key], "duplicate key %s", p.Key)
			seen[p.Key] = true
			if i > 0 {
				assert.False(t, p.Date.After(got[i-1].Date), "not descending at %d", i)
			}
		}
	}
}

func TestLastN_ReadYourWrites(t *testing.T) {
	ctx := context.Background()
	f := newPlaysFixture(2)
	for i := 0; i < 5; i++ {
		f.chart(t, fmt.Sprintf("P%d", i), testNow.Add(-time.Duration(10+i)*time.Minute))
	}
	_, err := f.last.GetLast(ctx, 2, LastQuery{})
	require.NoError(t, err)

	fresh := f.chart(t, "fresh", testNow)
	latest, err := f.last.GetLatest(ctx, LastQuery{})
	require.NoError(t, err)
	assert.Equal(t, fresh.Key, latest.Key)

	latest, err = f.last.GetLatest(ctx, LastQuery{Scope: &f.program})
	require.NoError(t, err)
	assert.Equal(t, fresh.Key, latest.Key)
}

func TestLastN_InvalidNum(t *testing.T) {
	f := newPlaysFixture(2)
	got, err := f.last.GetLast(context.Background(), 0, LastQuery{})
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, f.store.Stats().Queries)
}

func TestLastN_LatestOnly(t *testing.T) {
	ctx := context.Background()
	f := newPlaysFixture(2)
	f.chart(t, "older", testNow.Add(-time.Hour))
	newest := f.chart(t, "newest", testNow.Add(-time.Minute))

	got, err := f.last.GetLast(ctx, -1, LastQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, newest.Key, got[0].Key)

	got, err = f.last.GetLast(ctx, -2, LastQuery{})
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestLastN_RequestAboveCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	points := NewPointCache(f.deps, itemCodec("Play"), time.Hour)
	last := NewLastN(f.deps, LastNConfig{
		Kind:       "Play",
		Field:      "date",
		Order:      Descending,
		MaxEntries: 3,
		PageSize:   2,
		TTL:        time.Hour,
	}, points)
	plays := NewEntities(points, last)
	program := persistence.NewKey("Program", "morning", nil)
	for i := 0; i < 6; i++ {
		p := &item{Key: persistence.NewKey("Play", "", &program), Name: fmt.Sprintf("P%d", i), Date: testNow.Add(-time.Duration(i) * time.Minute)}
		_, err := plays.Put(ctx, p)
		require.NoError(t, err)
	}

	keys, err := last.GetLastKeys(ctx, 5, LastQuery{})
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	queries := f.store.Stats().Queries

	for i := 0; i < 3; i++ {
		again, err := last.GetLastKeys(ctx, 5, LastQuery{})
		require.NoError(t, err)
		assert.Equal(t, keys, again)
	}
	assert.Equal(t, queries, f.store.Stats().Queries, "capped list is served from cache")
}

func TestLastN_StaleCursor(t *testing.T) {
	ctx := context.Background()
	f := newPlaysFixture(2)
	for i := 0; i < 6; i++ {
		f.chart(t, fmt.Sprintf("P%d", i), testNow.Add(-time.Duration(i)*time.Minute))
	}
	_, err := f.last.GetLastKeys(ctx, 2, LastQuery{})
	require.NoError(t, err)

	f.store.ExpireCursors()
	got, err := f.last.GetLast(ctx, 4, LastQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"P0", "P1", "P2", "P3"}, names(got))

	f.store.FailNextQuery(persistence.ErrStaleCursor)
	got, err = f.last.GetLast(ctx, 6, LastQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"P0", "P1", "P2", "P3", "P4", "P5"}, names(got))
}

func TestLastN_ConcurrentPopulation(t *testing.T) {
	ctx := context.Background()
	f := newPlaysFixture(5)
	for i := 0; i < 8; i++ {
		f.chart(t, fmt.Sprintf("P%d", i), testNow.Add(-time.Duration(i)*time.Minute))
	}
	f.cache.Flush()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.last.GetLastKeys(ctx, 5, LastQuery{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	before, after := f.last.Window(LastQuery{})
	list := f.last.loadList(ctx, f.last.cacheKey(nil, before, after))
	assert.Equal(t, 5, list.Len())

	got, err := f.last.GetLast(ctx, 5, LastQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"P0", "P1", "P2", "P3", "P4"}, names(got))
}
