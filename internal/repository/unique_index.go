package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	apperrors "github.com/hchapman/WBOR-sub000/pkg/errors"
)

// UniqueIndex looks entities up by a field whose values are unique within
// the kind, such as a slug or a username.
type UniqueIndex[E Entity] struct {
	deps   Deps
	kind   string
	field  string
	ttl    time.Duration
	points *PointCache[E]
}

// NewUniqueIndex creates the lookup of kind by field.
func NewUniqueIndex[E Entity](deps Deps, field string, ttl time.Duration, points *PointCache[E]) *UniqueIndex[E] {
	return &UniqueIndex[E]{deps: deps.withDefaults(), kind: points.Kind(), field: field, ttl: ttl, points: points}
}

func (u *UniqueIndex[E]) cacheKey(value string) string {
	return u.deps.key(u.deps.Keys.Unique, u.kind, u.field, value)
}

// LookupKey returns the key holding value, and false when there is none.
func (u *UniqueIndex[E]) LookupKey(ctx context.Context, value string) (persistence.Key, bool, error) {
	if value == "" {
		return persistence.Key{}, false, nil
	}
	var enc string
	if u.deps.load(ctx, u.cacheKey(value), &enc) {
		if k, err := persistence.ParseKey(enc); err == nil {
			return k, true, nil
		}
	}

	// Ordered on the field so the store answers from that field's index.
	var k persistence.Key
	var w Window
	err := u.deps.fetchInto(ctx, fetchSpec{
		family: "unique",
		query:  persistence.NewQuery(u.kind).
			Where(u.field, persistence.OpEqual, value).
			OrderBy(u.field, false),
		window: &w,
		gate:   func() bool { return k.IsZero() },
		absorb: func(recs []persistence.Record) {
			if len(recs) > 0 && k.IsZero() {
				k = recs[0].Key
			}
		},
	})
	if err != nil {
		return persistence.Key{}, false, fmt.Errorf("lookup %s by %s: %w", u.kind, u.field, err)
	}
	if k.IsZero() {
		return persistence.Key{}, false, nil
	}
	u.deps.save(ctx, u.cacheKey(value), k.Encode(), u.ttl)
	return k, true, nil
}

// Find returns the entity holding value, or false when there is none.
func (u *UniqueIndex[E]) Find(ctx context.Context, value string) (E, bool, error) {
	var zero E
	k, ok, err := u.LookupKey(ctx, value)
	if err != nil || !ok {
		return zero, false, err
	}
	e, found, err := u.points.lookup(ctx, k, true)
	if err != nil {
		return zero, false, err
	}
	if !found {
		// The mapping outlived its entity.
		u.deps.drop(ctx, u.cacheKey(value))
		return zero, false, nil
	}
	return e, true, nil
}

// Lookup is Find for callers that require the entity to exist.
func (u *UniqueIndex[E]) Lookup(ctx context.Context, value string) (E, error) {
	e, ok, err := u.Find(ctx, value)
	if err != nil {
		return e, err
	}
	if !ok {
		return e, apperrors.NewNotFound(fmt.Sprintf("%s with %s %q not found", u.kind, u.field, value))
	}
	return e, nil
}

func (u *UniqueIndex[E]) value(e E) string {
	return e.ToRecord().String(u.field)
}

// OnPut maps the entity's current value and forgets a value it moved away from.
func (u *UniqueIndex[E]) OnPut(ctx context.Context, e, prev E, existed bool) error {
	if existed {
		if old := u.value(prev); old != "" && old != u.value(e) {
			u.deps.drop(ctx, u.cacheKey(old))
		}
	}
	if v := u.value(e); v != "" {
		u.deps.save(ctx, u.cacheKey(v), e.EntityKey().Encode(), u.ttl)
	}
	return nil
}

// OnDelete forgets the entity's value.
func (u *UniqueIndex[E]) OnDelete(ctx context.Context, e E) error {
	if v := u.value(e); v != "" {
		u.deps.drop(ctx, u.cacheKey(v))
	}
	return nil
}
