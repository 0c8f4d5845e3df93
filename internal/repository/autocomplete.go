package repository

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/pkg/text"
)

// AutocompleteConfig describes prefix search over one kind.
type AutocompleteConfig[E Entity] struct {
	Kind string
	// Fields are stored, already normalized text fields that are range
	// queried for a prefix, e.g. lower_name and search_name.
	Fields []string
	// Text returns the display text an entity is matched and sorted by.
	Text func(E) string
	// Threshold is both the page size of a prefix query and the number of
	// candidates that makes a prefix cache good enough without one.
	Threshold int
	TTL       time.Duration
}

// prefixEntry is the cache of one prefix. The embedded window summarizes the
// per-field windows: populated once every field has been queried, with more
// while any field has.
type prefixEntry struct {
	KeySet
	Fields map[string]Window `json:"fields,omitempty"`
}

// Autocompleter serves prefix search from per-prefix key sets that are built
// from shorter prefixes before the store is consulted.
type Autocompleter[E Entity] struct {
	deps   Deps
	cfg    AutocompleteConfig[E]
	points *PointCache[E]
}

// NewAutocompleter creates the autocomplete component for one kind.
func NewAutocompleter[E Entity](deps Deps, cfg AutocompleteConfig[E], points *PointCache[E]) *Autocompleter[E] {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 20
	}
	return &Autocompleter[E]{deps: deps.withDefaults(), cfg: cfg, points: points}
}

func (a *Autocompleter[E]) cacheKey(prefix string) string {
	return a.deps.key(a.deps.Keys.Autocomplete, a.cfg.Kind, prefix)
}

func (a *Autocompleter[E]) loadEntry(ctx context.Context, prefix string) (*prefixEntry, bool) {
	entry := &prefixEntry{}
	if !a.deps.load(ctx, a.cacheKey(prefix), entry) {
		return &prefixEntry{}, false
	}
	return entry, true
}

// shorterPrefixes lists the proper prefixes of p, shortest first. Prefixes
// ending in a space are skipped since they normalize to a listed one.
func shorterPrefixes(p string) []string {
	runes := []rune(p)
	var out []string
	for i := 1; i < len(runes); i++ {
		if runes[i-1] == ' ' {
			continue
		}
		out = append(out, string(runes[:i]))
	}
	return out
}

// Autocomplete returns the entities whose text matches prefix, sorted by
// search name. An empty prefix returns nil.
func (a *Autocompleter[E]) Autocomplete(ctx context.Context, prefix string) ([]E, error) {
	p := text.Normalize(prefix)
	if p == "" {
		return nil, nil
	}

	entry, cached := a.loadEntry(ctx, p)
	dirty := false
	if !cached || entry.NeedFetch(a.cfg.Threshold) {
		seeded, err := a.seed(ctx, p, entry)
		if err != nil {
			return nil, err
		}
		dirty = seeded
	}

	if entry.NeedFetch(a.cfg.Threshold) {
		if err := a.fetch(ctx, p, entry); err != nil {
			return nil, err
		}
		a.propagate(ctx, p, entry.Keys())
		dirty = true
	}
	if dirty {
		a.deps.save(ctx, a.cacheKey(p), entry, a.cfg.TTL)
	}

	items, err := a.points.GetMulti(ctx, entry.Keys())
	if err != nil {
		return nil, err
	}
	items = slices.DeleteFunc(items, func(e E) bool {
		return !text.MatchesPrefix(p, a.cfg.Text(e))
	})
	slices.SortStableFunc(items, func(x, y E) int {
		return cmp.Or(
			cmp.Compare(text.SearchName(a.cfg.Text(x)), text.SearchName(a.cfg.Text(y))),
			cmp.Compare(x.EntityKey().Encode(), y.EntityKey().Encode()),
		)
	})
	return items, nil
}

// seed fills entry from the cached sets of shorter prefixes, keeping the
// candidates that still match p. A complete shorter set makes entry complete;
// enough candidates make it good enough to serve without a store query.
func (a *Autocompleter[E]) seed(ctx context.Context, p string, entry *prefixEntry) (bool, error) {
	var candidates []persistence.Key
	complete := false
	for _, shorter := range shorterPrefixes(p) {
		e, ok := a.loadEntry(ctx, shorter)
		if !ok || !e.Populated {
			continue
		}
		candidates = append(candidates, e.Keys()...)
		if !e.More {
			complete = true
		}
	}
	if len(candidates) == 0 && !complete {
		return false, nil
	}

	items, err := a.points.GetMulti(ctx, candidates)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if text.MatchesPrefix(p, a.cfg.Text(item)) {
			entry.Add(item.EntityKey())
		}
	}

	switch {
	case complete:
		entry.Populated, entry.More = true, false
		entry.Fields = nil
	case entry.Len() >= a.cfg.Threshold && !entry.Populated:
		entry.Populated, entry.More = true, true
	}
	return true, nil
}

// fetch range queries every field from its own cursor.
func (a *Autocompleter[E]) fetch(ctx context.Context, p string, entry *prefixEntry) error {
	if entry.Fields == nil {
		entry.Fields = make(map[string]Window, len(a.cfg.Fields))
	}
	more := false
	for _, field := range a.cfg.Fields {
		w := entry.Fields[field]
		query := persistence.NewQuery(a.cfg.Kind).
			Where(field, persistence.OpGreaterOrEqual, p).
			Where(field, persistence.OpLess, p+"\uffff").
			OrderBy(field, false).
			WithLimit(a.cfg.Threshold)
		err := a.deps.fetchInto(ctx, fetchSpec{
			family: "autocomplete",
			query:  query,
			window: &w,
			gate:   func() bool { return w.needFetch(a.cfg.Threshold, entry.Len()) },
			absorb: func(recs []persistence.Record) {
				for _, rec := range recs {
					entry.Add(rec.Key)
				}
			},
		})
		if err != nil {
			return err
		}
		entry.Fields[field] = w
		more = more || w.More
	}
	entry.Populated, entry.More = true, more
	return nil
}

// propagate adds keys to every shorter prefix set so a shorter set always
// holds what a longer one has found. Entries that do not exist yet are
// created unpopulated, which still leaves them to their own first fetch.
func (a *Autocompleter[E]) propagate(ctx context.Context, p string, keys []persistence.Key) {
	for _, shorter := range shorterPrefixes(p) {
		e, _ := a.loadEntry(ctx, shorter)
		changed := false
		for _, k := range keys {
			if e.Add(k) {
				changed = true
			}
		}
		if changed {
			a.deps.save(ctx, a.cacheKey(shorter), e, a.cfg.TTL)
		}
	}
}

// Forget drops the cached set for prefix.
func (a *Autocompleter[E]) Forget(ctx context.Context, prefix string) {
	a.deps.drop(ctx, a.cacheKey(text.Normalize(prefix)))
}

// OnPut leaves the prefix sets alone. A new entity shows up once a set it
// belongs to is fetched again.
func (a *Autocompleter[E]) OnPut(context.Context, E, E, bool) error { return nil }

// OnDelete forgets every prefix of e's indexed fields and of each of its
// tokens, so stale keys stop counting towards a set's threshold.
func (a *Autocompleter[E]) OnDelete(ctx context.Context, e E) error {
	rec := e.ToRecord()
	words := text.Tokens(a.cfg.Text(e))
	for _, field := range a.cfg.Fields {
		if v := rec.String(field); v != "" {
			words = append(words, v)
		}
	}
	seen := make(map[string]bool)
	for _, w := range words {
		w = text.Normalize(w)
		for _, p := range append(shorterPrefixes(w), w) {
			if !seen[p] {
				seen[p] = true
				a.Forget(ctx, p)
			}
		}
	}
	return nil
}
