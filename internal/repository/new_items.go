package repository

import (
	"context"
	"slices"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
)

// NewItemsConfig describes the set of entities carrying a boolean flag.
type NewItemsConfig[E Entity] struct {
	Kind     string
	Flag     string // boolean field, e.g. is_new
	PageSize int
	TTL      time.Duration
	// Less orders the materialized members; nil keeps key order.
	Less func(a, b E) int
}

// NewItems is the cached set of flagged entities. Membership is cached, the
// order is re-derived from the entities on every read.
type NewItems[E Entity] struct {
	deps   Deps
	cfg    NewItemsConfig[E]
	points *PointCache[E]
}

// NewNewItems creates the flagged set for one kind.
func NewNewItems[E Entity](deps Deps, cfg NewItemsConfig[E], points *PointCache[E]) *NewItems[E] {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &NewItems[E]{deps: deps.withDefaults(), cfg: cfg, points: points}
}

func (n *NewItems[E]) cacheKey() string {
	return n.deps.key(n.deps.Keys.NewItems, n.cfg.Kind)
}

func (n *NewItems[E]) load(ctx context.Context) *KeySet {
	set := &KeySet{}
	if !n.deps.load(ctx, n.cacheKey(), set) {
		return &KeySet{}
	}
	return set
}

// Keys returns the flagged keys, querying the store to completion when the
// set is cold or incomplete.
func (n *NewItems[E]) Keys(ctx context.Context) ([]persistence.Key, error) {
	set := n.load(ctx)
	if !set.Populated || set.More {
		query := persistence.NewQuery(n.cfg.Kind).
			Where(n.cfg.Flag, persistence.OpEqual, true).
			WithLimit(n.cfg.PageSize)
		err := n.deps.fetchInto(ctx, fetchSpec{
			family: "new",
			query:  query,
			window: &set.Window,
			gate:   func() bool { return !set.Populated || set.More },
			absorb: func(recs []persistence.Record) {
				for _, rec := range recs {
					set.Add(rec.Key)
				}
			},
		})
		if err != nil {
			return nil, err
		}
		n.deps.save(ctx, n.cacheKey(), set, n.cfg.TTL)
	}
	return set.Keys(), nil
}

// Get returns the flagged entities. Members whose flag has been cleared since
// they were cached are skipped.
func (n *NewItems[E]) Get(ctx context.Context) ([]E, error) {
	keys, err := n.Keys(ctx)
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	items, err := n.points.GetMulti(ctx, keys)
	if err != nil {
		return nil, err
	}
	items = slices.DeleteFunc(items, func(e E) bool { return !e.ToRecord().Bool(n.cfg.Flag) })
	if n.cfg.Less != nil {
		slices.SortStableFunc(items, n.cfg.Less)
	}
	return items, nil
}

func (n *NewItems[E]) update(ctx context.Context, k persistence.Key, member bool) {
	set := n.load(ctx)
	if !set.Populated {
		return
	}
	var changed bool
	if member {
		changed = set.Add(k)
	} else {
		changed = set.Discard(k)
	}
	if changed {
		n.deps.save(ctx, n.cacheKey(), set, n.cfg.TTL)
	}
}

// OnPut adds or discards e according to its flag.
func (n *NewItems[E]) OnPut(ctx context.Context, e, _ E, _ bool) error {
	n.update(ctx, e.EntityKey(), e.ToRecord().Bool(n.cfg.Flag))
	return nil
}

// OnDelete discards e.
func (n *NewItems[E]) OnDelete(ctx context.Context, e E) error {
	n.update(ctx, e.EntityKey(), false)
	return nil
}
