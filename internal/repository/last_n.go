package repository

import (
	"context"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
)

// LastNConfig describes one "most recent" (or "soonest") list of a kind.
type LastNConfig struct {
	Kind  string
	Field string // time valued sort field
	Order SortOrder
	// Width is the span of the default window. Granularity is the step the
	// default window is anchored to, which keeps cache keys stable between
	// requests.
	Width       time.Duration
	Granularity time.Duration
	MaxEntries  int
	PageSize    int
	TTL         time.Duration
}

func (c LastNConfig) withDefaults() LastNConfig {
	if c.Width <= 0 {
		c.Width = 7 * 24 * time.Hour
	}
	if c.Granularity <= 0 {
		c.Granularity = time.Hour
	}
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
	return c
}

// LastQuery narrows a last-N lookup. Zero bounds are derived from the
// configured window; a nil scope means every parent.
type LastQuery struct {
	Before time.Time
	After  time.Time
	Scope  *persistence.Key
}

// LastN serves the most recent (or soonest) entities of a kind.
type LastN[E Entity] struct {
	deps   Deps
	cfg    LastNConfig
	points *PointCache[E]
}

// NewLastN creates the last-N component for one kind.
func NewLastN[E Entity](deps Deps, cfg LastNConfig, points *PointCache[E]) *LastN[E] {
	return &LastN[E]{deps: deps.withDefaults(), cfg: cfg.withDefaults(), points: points}
}

// Window returns the normalized [after, before) bounds for q.
func (l *LastN[E]) Window(q LastQuery) (before, after time.Time) {
	before, after = q.Before.UTC(), q.After.UTC()
	switch {
	case !q.Before.IsZero() && !q.After.IsZero():
	case !q.Before.IsZero():
		after = before.Add(-l.cfg.Width)
	case !q.After.IsZero():
		before = after.Add(l.cfg.Width)
	default:
		anchor := l.deps.Now().UTC().Truncate(l.cfg.Granularity)
		if l.cfg.Order == Descending {
			before = anchor.Add(l.cfg.Granularity)
			after = before.Add(-l.cfg.Width)
		} else {
			after = anchor
			before = after.Add(l.cfg.Width)
		}
	}
	return before, after
}

func (l *LastN[E]) cacheKey(scope *persistence.Key, before, after time.Time) string {
	s := "-"
	if scope != nil {
		s = scope.Encode()
	}
	return l.deps.key(l.deps.Keys.Last, l.cfg.Kind, s, before.Unix(), after.Unix())
}

func (l *LastN[E]) newList() *SortedList {
	return &SortedList{Order: l.cfg.Order, MaxEntries: l.cfg.MaxEntries}
}

func (l *LastN[E]) loadList(ctx context.Context, key string) *SortedList {
	list := l.newList()
	if !l.deps.load(ctx, key, list) {
		return l.newList()
	}
	list.Order, list.MaxEntries = l.cfg.Order, l.cfg.MaxEntries
	return list
}

// GetLastKeys returns up to num keys in list order without materializing
// entities. num == -1 asks for the latest key only; other values below 1
// return nil. num is capped at MaxEntries when one is configured.
func (l *LastN[E]) GetLastKeys(ctx context.Context, num int, q LastQuery) ([]persistence.Key, error) {
	if num == -1 {
		num = 1
	}
	if num < 1 {
		return nil, nil
	}
	if l.cfg.MaxEntries > 0 {
		num = min(num, l.cfg.MaxEntries)
	}
	before, after := l.Window(q)
	key := l.cacheKey(q.Scope, before, after)
	list := l.loadList(ctx, key)

	if list.NeedFetch(num) {
		query := persistence.NewQuery(l.cfg.Kind).
			Where(l.cfg.Field, persistence.OpGreaterOrEqual, after).
			Where(l.cfg.Field, persistence.OpLess, before).
			OrderBy(l.cfg.Field, l.cfg.Order == Descending).
			WithLimit(max(num-list.Len(), l.cfg.PageSize))
		if q.Scope != nil {
			query = query.WithAncestor(*q.Scope)
		}
		err := l.deps.fetchInto(ctx, fetchSpec{
			family: "last",
			query:  query,
			window: &list.Window,
			gate:   func() bool { return list.NeedFetch(num) },
			absorb: func(recs []persistence.Record) {
				for _, rec := range recs {
					list.insertNoCap(rec.Key, persistence.SortableString(rec.Props[l.cfg.Field]))
				}
			},
		})
		if err != nil {
			return nil, err
		}
		list.enforceCap()
		l.deps.save(ctx, key, list, l.cfg.TTL)
	}

	keys := list.Keys()
	if len(keys) > num {
		keys = keys[:num]
	}
	return keys, nil
}

// GetLast returns up to num entities in list order. Entities deleted since
// they were listed are dropped. num == -1 behaves like GetLatest.
func (l *LastN[E]) GetLast(ctx context.Context, num int, q LastQuery) ([]E, error) {
	keys, err := l.GetLastKeys(ctx, num, q)
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	return l.points.GetMulti(ctx, keys)
}

// GetLatest returns the single most recent (or soonest) entity, or the zero
// value when there is none.
func (l *LastN[E]) GetLatest(ctx context.Context, q LastQuery) (E, error) {
	var zero E
	items, err := l.GetLast(ctx, 1, q)
	if err != nil || len(items) == 0 {
		return zero, err
	}
	return items[0], nil
}

// scopes lists the default-window caches e participates in.
func (l *LastN[E]) scopes(e E) []*persistence.Key {
	out := []*persistence.Key{nil}
	if parent, ok := e.EntityKey().ParentKey(); ok {
		out = append(out, &parent)
	}
	return out
}

// OnPut keeps the default-window lists current. An entity is inserted only
// into populated lists whose window holds its value, and only where that
// cannot open a gap; an entity that moved out of the window is removed.
func (l *LastN[E]) OnPut(ctx context.Context, e E, _ E, _ bool) error {
	rec := e.ToRecord()
	raw, ok := rec.Props[l.cfg.Field]
	if !ok {
		return nil
	}
	value := persistence.SortableString(raw)
	before, after := l.Window(LastQuery{})
	inWindow := value >= persistence.SortableString(after) && value < persistence.SortableString(before)

	for _, scope := range l.scopes(e) {
		key := l.cacheKey(scope, before, after)
		list := l.loadList(ctx, key)
		if !list.Populated {
			continue
		}
		var changed bool
		switch {
		case !inWindow:
			changed = list.Remove(e.EntityKey())
		case list.Contains(e.EntityKey()) || list.Admits(value):
			changed = list.Insert(e.EntityKey(), value)
		default:
			// Beyond the fetched tail: a later fetch will reach it.
			changed = false
		}
		if changed {
			l.deps.save(ctx, key, list, l.cfg.TTL)
		}
	}
	return nil
}

// OnDelete removes e from the default-window lists. Absent keys are ignored.
func (l *LastN[E]) OnDelete(ctx context.Context, e E) error {
	before, after := l.Window(LastQuery{})
	for _, scope := range l.scopes(e) {
		key := l.cacheKey(scope, before, after)
		list := l.loadList(ctx, key)
		if list.Populated && list.Remove(e.EntityKey()) {
			l.deps.save(ctx, key, list, l.cfg.TTL)
		}
	}
	return nil
}
