package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyN(name string) persistence.Key {
	return persistence.NewKey("Item", name, nil)
}

func TestWindow_NeedFetch(t *testing.T) {
	tests := []struct {
		name   string
		window Window
		n      int
		count  int
		want   bool
	}{
		{"never populated", Window{}, 0, 0, true},
		{"never populated with items", Window{More: true}, 1, 5, true},
		{"confirmed empty", Window{Populated: true}, 5, 0, false},
		{"short and more", Window{Populated: true, More: true}, 5, 3, true},
		{"short and exhausted", Window{Populated: true}, 5, 3, false},
		{"enough with more", Window{Populated: true, More: true}, 3, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.needFetch(tt.n, tt.count))
		})
	}
}

func TestKeyList(t *testing.T) {
	var l KeyList
	assert.True(t, l.NeedFetch(1))

	l.Set([]persistence.Key{keyN("b")}, "c1", true)
	l.Prepend(keyN("a"))
	l.Append(keyN("d"))
	l.Insert(2, keyN("c"))
	assert.Equal(t, []persistence.Key{keyN("a"), keyN("b"), keyN("c"), keyN("d")}, l.Keys)

	l.ExtendBy([]persistence.Key{keyN("d"), keyN("e")}, "c2", false)
	assert.Len(t, l.Keys, 5)
	assert.Equal(t, "c2", l.Cursor)
	assert.False(t, l.NeedFetch(10))

	require.NoError(t, l.Remove(keyN("a")))
	assert.ErrorIs(t, l.Remove(keyN("a")), ErrNotCached)
}

func TestKeySet(t *testing.T) {
	var s KeySet
	assert.True(t, s.Add(keyN("a")))
	assert.False(t, s.Add(keyN("a")))
	assert.True(t, s.Discard(keyN("a")))
	assert.False(t, s.Discard(keyN("a")))

	s.Set([]persistence.Key{keyN("b"), keyN("a"), keyN("b")}, "", false)
	assert.Equal(t, []persistence.Key{keyN("a"), keyN("b")}, s.Keys())
	assert.True(t, s.Has(keyN("b")))
	assert.False(t, s.NeedFetch(2))
}

func TestSortedList_OrderedUniqueInsert(t *testing.T) {
	t.Run("Should keep one entry per key", func(t *testing.T) {
		l := SortedList{Order: Descending}
		assert.True(t, l.Insert(keyN("a"), "2024-01-01"))
		assert.False(t, l.Insert(keyN("a"), "2024-01-01"))
		assert.Equal(t, 1, l.Len())
	})

	t.Run("Should place higher priority entries first", func(t *testing.T) {
		l := SortedList{Order: Descending}
		l.Insert(keyN("old"), "2024-01-01")
		l.Insert(keyN("mid"), "2024-01-02")
		l.Insert(keyN("new"), "2024-01-03")
		assert.Equal(t, []persistence.Key{keyN("new"), keyN("mid"), keyN("old")}, l.Keys())

		asc := SortedList{Order: Ascending}
		asc.Insert(keyN("later"), "2024-02-01")
		asc.Insert(keyN("sooner"), "2024-01-01")
		assert.Equal(t, []persistence.Key{keyN("sooner"), keyN("later")}, asc.Keys())
	})

	t.Run("Should keep insertion order among equal values", func(t *testing.T) {
		l := SortedList{Order: Descending}
		l.Insert(keyN("first"), "x")
		l.Insert(keyN("second"), "x")
		assert.Equal(t, []persistence.Key{keyN("first"), keyN("second")}, l.Keys())
	})

	t.Run("Should move a key whose value changed", func(t *testing.T) {
		l := SortedList{Order: Descending}
		l.Insert(keyN("a"), "1")
		l.Insert(keyN("b"), "2")
		assert.True(t, l.Insert(keyN("a"), "3"))
		assert.Equal(t, []persistence.Key{keyN("a"), keyN("b")}, l.Keys())
		assert.Equal(t, 2, l.Len())
	})

	t.Run("Should drop the tail and forget the cursor past the cap", func(t *testing.T) {
		l := SortedList{Order: Descending, MaxEntries: 2}
		l.ExtendBy([]SortedEntry{{keyN("a"), "1"}, {keyN("b"), "2"}}, "cursor", false)
		assert.Equal(t, "cursor", l.Cursor)

		l.Insert(keyN("c"), "3")
		assert.Equal(t, []persistence.Key{keyN("c"), keyN("b")}, l.Keys())
		assert.Empty(t, l.Cursor)
		assert.True(t, l.More)
	})
}

func TestSortedList_Admits(t *testing.T) {
	l := SortedList{Order: Descending}
	l.Set([]SortedEntry{{keyN("a"), "5"}, {keyN("b"), "3"}}, "c", true)
	assert.True(t, l.Admits("4"))
	assert.True(t, l.Admits("3"))
	assert.False(t, l.Admits("2"), "beyond the fetched tail")

	l.More = false
	assert.True(t, l.Admits("1"))
}

func TestCountTable(t *testing.T) {
	var c CountTable
	c.Increment(keyN("a"), 1)
	c.Increment(keyN("b"), 1)
	c.Increment(keyN("b"), 1)
	c.Increment(keyN("c"), 1)
	c.Increment(keyN("c"), -1)

	assert.Equal(t, []Count{{keyN("b"), 2}, {keyN("a"), 1}}, c.Top(5))
	assert.Len(t, c.Top(1), 1)

	c.Reset()
	assert.Empty(t, c.Top(0))
	assert.False(t, c.Populated)
}

func TestFetchInto_StaleCursor(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	for _, name := range []string{"a", "b", "c", "d"} {
		_, err := f.store.Put(ctx, (&item{Key: keyN(name), Name: name}).ToRecord())
		require.NoError(t, err)
	}

	var got []persistence.Key
	var w Window
	restarts := 0
	spec := fetchSpec{
		family: "test",
		query:  persistence.NewQuery("Item").WithLimit(2),
		window: &w,
		gate:   func() bool { return len(got) < 2 },
		absorb: func(recs []persistence.Record) {
			for _, r := range recs {
				got = append(got, r.Key)
			}
		},
		restart: func() { restarts++ },
	}
	deps := f.deps.withDefaults()
	require.NoError(t, deps.fetchInto(ctx, spec))
	assert.Equal(t, []persistence.Key{keyN("a"), keyN("b")}, got)
	assert.True(t, w.More)

	// Act
	f.store.ExpireCursors()
	got = nil
	require.NoError(t, deps.fetchInto(ctx, spec))

	// Assert
	assert.Equal(t, 1, restarts)
	assert.Equal(t, []persistence.Key{keyN("a"), keyN("b")}, got, "restarted from the beginning")
	assert.True(t, w.Populated)

	f.store.FailNextQuery(errors.New("backend down"))
	got = nil
	assert.ErrorContains(t, deps.fetchInto(ctx, spec), "backend down")
}
