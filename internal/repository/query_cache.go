package repository

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"

	"go.uber.org/zap"
)

// Window is the bookkeeping shared by every bounded query cache: where the
// backing query stopped and whether it has more. A zero Window is
// unpopulated, which is distinct from populated with no results.
type Window struct {
	Cursor    string `json:"cursor,omitempty"`
	More      bool   `json:"more"`
	Populated bool   `json:"populated"`
}

func (w Window) needFetch(n, count int) bool {
	return !w.Populated || (n > count && w.More)
}

func (w *Window) advance(cursor string, more bool) {
	w.Cursor = cursor
	w.More = more
	w.Populated = true
}

// KeyList is an insertion ordered list of keys.
type KeyList struct {
	Window
	Keys []persistence.Key `json:"keys"`
}

// NeedFetch reports whether n results require a store fetch.
func (l *KeyList) NeedFetch(n int) bool { return l.needFetch(n, len(l.Keys)) }

// Set replaces the contents wholesale.
func (l *KeyList) Set(keys []persistence.Key, cursor string, more bool) {
	l.Keys = slices.Clone(keys)
	l.advance(cursor, more)
}

// ExtendBy appends keys not already present.
func (l *KeyList) ExtendBy(keys []persistence.Key, cursor string, more bool) {
	for _, k := range keys {
		if !slices.Contains(l.Keys, k) {
			l.Keys = append(l.Keys, k)
		}
	}
	l.advance(cursor, more)
}

func (l *KeyList) Append(k persistence.Key)  { l.Keys = append(l.Keys, k) }
func (l *KeyList) Prepend(k persistence.Key) { l.Keys = slices.Insert(l.Keys, 0, k) }

// Insert places k at index i, clamped to the list bounds.
func (l *KeyList) Insert(i int, k persistence.Key) {
	l.Keys = slices.Insert(l.Keys, max(0, min(i, len(l.Keys))), k)
}

// Remove drops the first occurrence of k.
func (l *KeyList) Remove(k persistence.Key) error {
	i := slices.Index(l.Keys, k)
	if i < 0 {
		return ErrNotCached
	}
	l.Keys = slices.Delete(l.Keys, i, i+1)
	return nil
}

// KeySet is an unordered set of keys.
type KeySet struct {
	Window
	Members map[string]persistence.Key `json:"members"`
}

// NeedFetch reports whether n results require a store fetch.
func (s *KeySet) NeedFetch(n int) bool { return s.needFetch(n, len(s.Members)) }

// Len returns the number of members.
func (s *KeySet) Len() int { return len(s.Members) }

// Add is idempotent and reports whether k was new.
func (s *KeySet) Add(k persistence.Key) bool {
	if s.Members == nil {
		s.Members = make(map[string]persistence.Key)
	}
	enc := k.Encode()
	if _, ok := s.Members[enc]; ok {
		return false
	}
	s.Members[enc] = k
	return true
}

// Discard is idempotent and reports whether k was present.
func (s *KeySet) Discard(k persistence.Key) bool {
	enc := k.Encode()
	if _, ok := s.Members[enc]; !ok {
		return false
	}
	delete(s.Members, enc)
	return true
}

// Has reports membership.
func (s *KeySet) Has(k persistence.Key) bool {
	_, ok := s.Members[k.Encode()]
	return ok
}

// Keys returns the members ordered by their encoding.
func (s *KeySet) Keys() []persistence.Key {
	out := make([]persistence.Key, 0, len(s.Members))
	for _, enc := range slices.Sorted(maps.Keys(s.Members)) {
		out = append(out, s.Members[enc])
	}
	return out
}

// Set replaces the contents wholesale.
func (s *KeySet) Set(keys []persistence.Key, cursor string, more bool) {
	s.Members = nil
	s.ExtendBy(keys, cursor, more)
}

// ExtendBy merges keys.
func (s *KeySet) ExtendBy(keys []persistence.Key, cursor string, more bool) {
	for _, k := range keys {
		s.Add(k)
	}
	s.advance(cursor, more)
}

// SortOrder is the direction of a sorted list.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// SortedEntry is a key with the sortable value it is ordered by.
type SortedEntry struct {
	Key   persistence.Key `json:"k"`
	Value string          `json:"v"`
}

// SortedList keeps unique keys ordered by value. Values are compared as
// strings; callers pass persistence.SortableString renderings.
type SortedList struct {
	Window
	Entries []SortedEntry `json:"entries"`
	Order   SortOrder     `json:"order"`
	// MaxEntries caps the list; zero means unbounded.
	MaxEntries int `json:"max,omitempty"`
}

// NeedFetch reports whether n results require a store fetch.
func (l *SortedList) NeedFetch(n int) bool { return l.needFetch(n, len(l.Entries)) }

// Len returns the number of entries.
func (l *SortedList) Len() int { return len(l.Entries) }

// precedes reports whether value a sorts strictly before b.
func (l *SortedList) precedes(a, b string) bool {
	if l.Order == Descending {
		return a > b
	}
	return a < b
}

// Insert performs an ordered unique insert and reports whether the list
// changed. A key already present with the same value is left alone; one whose
// value changed is moved. A new entry goes immediately before the first entry
// it precedes, so equal values keep insertion order.
func (l *SortedList) Insert(k persistence.Key, value string) bool {
	if i := l.index(k); i >= 0 {
		if l.Entries[i].Value == value {
			return false
		}
		l.Entries = slices.Delete(l.Entries, i, i+1)
	}
	pos := len(l.Entries)
	for i, e := range l.Entries {
		if l.precedes(value, e.Value) {
			pos = i
			break
		}
	}
	l.Entries = slices.Insert(l.Entries, pos, SortedEntry{Key: k, Value: value})
	l.enforceCap()
	return true
}

// Remove drops k and reports whether it was present.
func (l *SortedList) Remove(k persistence.Key) bool {
	i := l.index(k)
	if i < 0 {
		return false
	}
	l.Entries = slices.Delete(l.Entries, i, i+1)
	return true
}

// Contains reports whether k is listed.
func (l *SortedList) Contains(k persistence.Key) bool {
	return l.index(k) >= 0
}

// Keys returns the keys in list order.
func (l *SortedList) Keys() []persistence.Key {
	out := make([]persistence.Key, len(l.Entries))
	for i, e := range l.Entries {
		out[i] = e.Key
	}
	return out
}

// Admits reports whether inserting value keeps the list gap free: the value
// falls before the current tail, or the list already holds everything.
func (l *SortedList) Admits(value string) bool {
	if !l.More {
		return true
	}
	if len(l.Entries) == 0 {
		return false
	}
	return !l.precedes(l.Entries[len(l.Entries)-1].Value, value)
}

// Set replaces the contents wholesale.
func (l *SortedList) Set(entries []SortedEntry, cursor string, more bool) {
	l.Entries = nil
	l.ExtendBy(entries, cursor, more)
}

// ExtendBy inserts every entry then adopts the new cursor.
func (l *SortedList) ExtendBy(entries []SortedEntry, cursor string, more bool) {
	for _, e := range entries {
		l.insertNoCap(e.Key, e.Value)
	}
	l.advance(cursor, more)
	l.enforceCap()
}

func (l *SortedList) insertNoCap(k persistence.Key, value string) {
	limit := l.MaxEntries
	l.MaxEntries = 0
	l.Insert(k, value)
	l.MaxEntries = limit
}

// enforceCap drops the tail beyond MaxEntries. The cursor no longer points
// just past the last entry, so it is forgotten and the list marked incomplete.
func (l *SortedList) enforceCap() {
	if l.MaxEntries <= 0 || len(l.Entries) <= l.MaxEntries {
		return
	}
	l.Entries = l.Entries[:l.MaxEntries]
	l.Cursor = ""
	l.More = true
}

func (l *SortedList) index(k persistence.Key) int {
	return slices.IndexFunc(l.Entries, func(e SortedEntry) bool { return e.Key == k })
}

// Count is one row of a count table.
type Count struct {
	Key   persistence.Key `json:"key"`
	Count int64           `json:"count"`
}

// CountTable tallies counts per key.
type CountTable struct {
	Window
	Counts map[string]int64 `json:"counts"`
}

// Increment adds amount to k's count. Counts that drop to zero are removed.
func (t *CountTable) Increment(k persistence.Key, amount int64) {
	if t.Counts == nil {
		t.Counts = make(map[string]int64)
	}
	enc := k.Encode()
	t.Counts[enc] += amount
	if t.Counts[enc] <= 0 {
		delete(t.Counts, enc)
	}
}

// Reset clears every count and the window.
func (t *CountTable) Reset() {
	t.Counts = nil
	t.Window = Window{}
}

// Top returns the n highest counts, ties broken by key. n < 1 returns all.
func (t *CountTable) Top(n int) []Count {
	out := make([]Count, 0, len(t.Counts))
	for enc, c := range t.Counts {
		k, err := persistence.ParseKey(enc)
		if err != nil {
			continue
		}
		out = append(out, Count{Key: k, Count: c})
	}
	slices.SortFunc(out, func(a, b Count) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Key.Encode(), b.Key.Encode()))
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// fetchSpec drives fetchInto.
type fetchSpec struct {
	family string
	query  persistence.Query
	window *Window
	// gate reports whether another page is wanted.
	gate func() bool
	// absorb merges one page of records.
	absorb func([]persistence.Record)
	// restart runs before a cursor-less restart; nil keeps cached items.
	restart func()
}

// fetchInto pages the store into a query cache. A stale cursor restarts the
// query from the beginning. Pages stop once the gate closes, the store has no
// more, the cursor stops moving or the page budget is spent.
func (d Deps) fetchInto(ctx context.Context, f fetchSpec) error {
	for page := 0; page < d.MaxFetchPages && f.gate(); page++ {
		res, err := d.Store.Query(ctx, f.query.Start(f.window.Cursor))
		if errors.Is(err, persistence.ErrStaleCursor) {
			d.Logger.Info("restarting query after stale cursor",
				zap.String("family", f.family), zap.String("kind", f.query.Kind))
			if d.Metrics != nil {
				d.Metrics.StaleCursors.Inc()
			}
			if f.restart != nil {
				f.restart()
			}
			f.window.Cursor = ""
			res, err = d.Store.Query(ctx, f.query)
		}
		if err != nil {
			return fmt.Errorf("query %s: %w", f.query.Kind, err)
		}
		if d.Metrics != nil {
			d.Metrics.QueryFetches.WithLabelValues(f.family).Inc()
		}

		f.absorb(res.Records)
		moved := res.Cursor != f.window.Cursor
		f.window.advance(res.Cursor, res.More)
		if !res.More || !moved {
			break
		}
	}
	return nil
}
