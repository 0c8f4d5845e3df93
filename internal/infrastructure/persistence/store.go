// Package persistence provides database-agnostic persistence interfaces.
// The repository layer works against Store; DynamoDB backs it in production and
// an in-memory ordered store backs local runs and tests.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrNoSuchEntity is returned by Get when the key resolves to nothing.
	ErrNoSuchEntity = errors.New("persistence: no such entity")

	// ErrStaleCursor is returned by Query when the supplied cursor can no
	// longer be resumed. Callers restart the query without a cursor.
	ErrStaleCursor = errors.New("persistence: stale cursor")
)

// Operator is a filter comparison.
type Operator string

const (
	OpEqual          Operator = "="
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
)

// Filter restricts a query to records whose field compares to Value. An
// equality filter on a list property matches when any element is equal.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Order sorts query results by one field. An empty field orders by key.
type Order struct {
	Field      string
	Descending bool
}

// Query represents a query operation against the store.
type Query struct {
	Kind     string
	Ancestor *Key
	Filters  []Filter
	Order    Order
	Limit    int // <= 0 means no limit
	Cursor   string
}

// NewQuery starts a query over one kind.
func NewQuery(kind string) Query {
	return Query{Kind: kind}
}

// WithAncestor scopes the query to descendants of k.
func (q Query) WithAncestor(k Key) Query {
	q.Ancestor = &k
	return q
}

// Where adds a filter.
func (q Query) Where(field string, op Operator, value any) Query {
	q.Filters = append(slices.Clone(q.Filters), Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy sets the sort order.
func (q Query) OrderBy(field string, descending bool) Query {
	q.Order = Order{Field: field, Descending: descending}
	return q
}

// WithLimit caps the page size.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// Start resumes the query from a cursor.
func (q Query) Start(cursor string) Query {
	q.Cursor = cursor
	return q
}

// Signature identifies the result set a cursor belongs to. Limit and cursor
// are excluded: they only select a window of the same results.
func (q Query) Signature() string {
	var b strings.Builder
	b.WriteString(q.Kind)
	if q.Ancestor != nil {
		b.WriteString("|anc=" + q.Ancestor.Encode())
	}
	for _, f := range q.Filters {
		fmt.Fprintf(&b, "|%s%s%s", f.Field, f.Op, SortableString(f.Value))
	}
	dir := "asc"
	if q.Order.Descending {
		dir = "desc"
	}
	fmt.Fprintf(&b, "|order=%s:%s", q.Order.Field, dir)
	return b.String()
}

// Page is one page of query results.
type Page struct {
	Records []Record
	Cursor  string // resumes after the last record; may be set even when More is false
	More    bool
}

// Keys returns the keys of the page's records.
func (p *Page) Keys() []Key {
	keys := make([]Key, len(p.Records))
	for i, r := range p.Records {
		keys[i] = r.Key
	}
	return keys
}

// Store abstracts the underlying database technology.
type Store interface {
	// Get returns ErrNoSuchEntity when the key resolves to nothing.
	Get(ctx context.Context, key Key) (*Record, error)
	// GetMulti returns one entry per key, nil where the key resolves to nothing.
	GetMulti(ctx context.Context, keys []Key) ([]*Record, error)
	// Put writes the record, completing an incomplete key, and returns the key.
	Put(ctx context.Context, rec Record) (Key, error)
	Delete(ctx context.Context, key Key) error
	Query(ctx context.Context, q Query) (*Page, error)
}

// Matches reports whether the record satisfies the filter. Records missing the
// field never match.
func Matches(rec Record, f Filter) bool {
	v, ok := rec.Props[f.Field]
	if !ok || v == nil {
		return false
	}
	want := SortableString(f.Value)
	if f.Op == OpEqual {
		if list := rec.Strings(f.Field); list != nil {
			return slices.Contains(list, want)
		}
	}
	got := SortableString(v)
	switch f.Op {
	case OpEqual:
		return got == want
	case OpGreaterOrEqual:
		return got >= want
	case OpLess:
		return got < want
	}
	return false
}

// MatchesAll reports whether the record satisfies every filter of the query,
// including ancestry.
func MatchesAll(rec Record, q Query) bool {
	if rec.Key.Kind != q.Kind {
		return false
	}
	if q.Ancestor != nil && !rec.Key.HasAncestor(*q.Ancestor) {
		return false
	}
	for _, f := range q.Filters {
		if !Matches(rec, f) {
			return false
		}
	}
	return true
}
