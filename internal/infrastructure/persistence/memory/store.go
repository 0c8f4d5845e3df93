// Package memory provides an in-memory implementation of persistence.Store.
// It keeps the same ordering and cursor semantics as the DynamoDB store and is
// used for local development and tests.
package memory

import (
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"slices"
	"sync"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
)

// Stats counts store round trips.
type Stats struct {
	Gets      int
	MultiGets int
	Puts      int
	Deletes   int
	Queries   int
}

// Store is a thread-safe ordered record store.
type Store struct {
	mu      sync.RWMutex
	records map[string]persistence.Record
	epoch   int64
	stats   Stats

	// failQuery, when set, is returned by the next Query call.
	failQuery error
}

var _ persistence.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]persistence.Record)}
}

type cursorData struct {
	Signature string `json:"s"`
	Epoch     int64  `json:"e"`
	Value     string `json:"v"`
	Key       string `json:"k"`
}

// Get retrieves a record by key.
func (s *Store) Get(ctx context.Context, key persistence.Key) (*persistence.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Gets++
	rec, ok := s.records[key.Encode()]
	if !ok {
		return nil, persistence.ErrNoSuchEntity
	}
	out := rec.Clone()
	return &out, nil
}

// GetMulti retrieves records in key order, nil where missing.
func (s *Store) GetMulti(ctx context.Context, keys []persistence.Key) ([]*persistence.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.MultiGets++
	out := make([]*persistence.Record, len(keys))
	for i, key := range keys {
		if rec, ok := s.records[key.Encode()]; ok {
			c := rec.Clone()
			out[i] = &c
		}
	}
	return out, nil
}

// Put stores a record, completing its key if needed.
func (s *Store) Put(ctx context.Context, rec persistence.Record) (persistence.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Puts++
	rec = rec.Clone()
	rec.Key = persistence.CompleteKey(rec.Key)
	s.records[rec.Key.Encode()] = rec
	return rec.Key, nil
}

// Delete removes a record. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key persistence.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Deletes++
	delete(s.records, key.Encode())
	return nil
}

// Query returns one page of matching records.
func (s *Store) Query(ctx context.Context, q persistence.Query) (*persistence.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Queries++
	if err := s.failQuery; err != nil {
		s.failQuery = nil
		return nil, err
	}

	sig := q.Signature()
	var after *cursorData
	if q.Cursor != "" {
		c, err := decodeCursor(q.Cursor)
		if err != nil || c.Signature != sig || c.Epoch != s.epoch {
			return nil, persistence.ErrStaleCursor
		}
		after = c
	}

	matched := make([]persistence.Record, 0)
	for _, rec := range s.records {
		if !persistence.MatchesAll(rec, q) {
			continue
		}
		if q.Order.Field != "" {
			if _, ok := rec.Props[q.Order.Field]; !ok {
				continue
			}
		}
		matched = append(matched, rec)
	}
	slices.SortFunc(matched, func(a, b persistence.Record) int {
		return compareAt(q, sortValue(q, a), a.Key.Encode(), sortValue(q, b), b.Key.Encode())
	})

	start := 0
	if after != nil {
		start = len(matched)
		for i, rec := range matched {
			if compareAt(q, sortValue(q, rec), rec.Key.Encode(), after.Value, after.Key) > 0 {
				start = i
				break
			}
		}
	}
	rest := matched[start:]

	end := len(rest)
	if q.Limit > 0 && q.Limit < end {
		end = q.Limit
	}
	page := &persistence.Page{More: end < len(rest), Cursor: q.Cursor}
	for _, rec := range rest[:end] {
		page.Records = append(page.Records, rec.Clone())
	}
	if end > 0 {
		last := rest[end-1]
		page.Cursor = encodeCursor(cursorData{
			Signature: sig,
			Epoch:     s.epoch,
			Value:     sortValue(q, last),
			Key:       last.Key.Encode(),
		})
	}
	return page, nil
}

// ExpireCursors invalidates every cursor handed out so far.
func (s *Store) ExpireCursors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
}

// FailNextQuery makes the next Query call return err.
func (s *Store) FailNextQuery(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failQuery = err
}

// Stats returns the round trip counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func sortValue(q persistence.Query, rec persistence.Record) string {
	if q.Order.Field == "" {
		return ""
	}
	return persistence.SortableString(rec.Props[q.Order.Field])
}

// compareAt orders (value, key) pairs in query order; ties on value fall back
// to the key in the same direction.
func compareAt(q persistence.Query, av, ak, bv, bk string) int {
	c := cmp.Or(cmp.Compare(av, bv), cmp.Compare(ak, bk))
	if q.Order.Descending {
		return -c
	}
	return c
}

func encodeCursor(c cursorData) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(cursor string) (*cursorData, error) {
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, err
	}
	var c cursorData
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
