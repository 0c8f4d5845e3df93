package repository

import (
	"context"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
)

// TopCounterConfig describes one chart: counts of a derived key over the
// entities of a kind inside a trailing window.
type TopCounterConfig struct {
	Name  string // chart name, part of the cache key
	Kind  string
	Field string // time valued field the window applies to
	// Window is the trailing span counted, anchored to Granularity.
	Window      time.Duration
	Granularity time.Duration
	// ChunkSize and MaxChunksPerCall bound a backfill step; progress is
	// saved so the next call resumes where this one stopped.
	ChunkSize        int
	MaxChunksPerCall int
	TTL              time.Duration
	// Derive maps a counted record to the key it counts toward.
	Derive func(persistence.Record) (persistence.Key, bool)
}

func (c TopCounterConfig) withDefaults() TopCounterConfig {
	if c.Window <= 0 {
		c.Window = 7 * 24 * time.Hour
	}
	if c.Granularity <= 0 {
		c.Granularity = 24 * time.Hour
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 100
	}
	if c.MaxChunksPerCall <= 0 {
		c.MaxChunksPerCall = 5
	}
	return c
}

// tally is a count table plus the sort value of the last counted record,
// which tells a hook whether a backfill in progress has passed a record.
type tally struct {
	CountTable
	Through string `json:"through,omitempty"`
}

// TopCounter ranks keys by how often they occur in a trailing window.
type TopCounter[E Entity] struct {
	deps Deps
	cfg  TopCounterConfig
}

// NewTopCounter creates a chart.
func NewTopCounter[E Entity](deps Deps, cfg TopCounterConfig) *TopCounter[E] {
	return &TopCounter[E]{deps: deps.withDefaults(), cfg: cfg.withDefaults()}
}

// Window returns the current [after, before) bounds.
func (c *TopCounter[E]) Window() (before, after time.Time) {
	before = c.deps.Now().UTC().Truncate(c.cfg.Granularity).Add(c.cfg.Granularity)
	return before, before.Add(-c.cfg.Window)
}

func (c *TopCounter[E]) cacheKey(before, after time.Time) string {
	return c.deps.key(c.deps.Keys.Top, c.cfg.Name, before.Unix(), after.Unix())
}

func (c *TopCounter[E]) load(ctx context.Context, key string) *tally {
	t := &tally{}
	if !c.deps.load(ctx, key, t) {
		return &tally{}
	}
	return t
}

// Top returns the n highest counts. A table that is not fully counted yet is
// advanced by at most MaxChunksPerCall chunks first, so early calls may rank
// a partial window.
func (c *TopCounter[E]) Top(ctx context.Context, n int) ([]Count, error) {
	before, after := c.Window()
	key := c.cacheKey(before, after)
	t := c.load(ctx, key)

	if !t.Populated || t.More {
		if err := c.backfill(ctx, t, before, after); err != nil {
			return nil, err
		}
		c.deps.save(ctx, key, t, c.cfg.TTL)
	}
	return t.Top(n), nil
}

func (c *TopCounter[E]) backfill(ctx context.Context, t *tally, before, after time.Time) error {
	query := persistence.NewQuery(c.cfg.Kind).
		Where(c.cfg.Field, persistence.OpGreaterOrEqual, after).
		Where(c.cfg.Field, persistence.OpLess, before).
		OrderBy(c.cfg.Field, false).
		WithLimit(c.cfg.ChunkSize)

	deps := c.deps
	deps.MaxFetchPages = c.cfg.MaxChunksPerCall
	return deps.fetchInto(ctx, fetchSpec{
		family: "top",
		query:  query,
		window: &t.Window,
		gate:   func() bool { return !t.Populated || t.More },
		absorb: func(recs []persistence.Record) {
			for _, rec := range recs {
				if k, ok := c.cfg.Derive(rec); ok {
					t.Increment(k, 1)
				}
				t.Through = persistence.SortableString(rec.Props[c.cfg.Field])
			}
			if c.deps.Metrics != nil {
				c.deps.Metrics.BackfillBatches.Inc()
			}
		},
		// Counts from before the restart would be counted twice.
		restart: func() {
			t.Reset()
			t.Through = ""
		},
	})
}

// adjust applies delta for e to the current table when the table already
// covers e: fully counted, or backfilled past e's value.
func (c *TopCounter[E]) adjust(ctx context.Context, e E, delta int64) {
	rec := e.ToRecord()
	raw, ok := rec.Props[c.cfg.Field]
	if !ok {
		return
	}
	k, ok := c.cfg.Derive(rec)
	if !ok {
		return
	}
	before, after := c.Window()
	value := persistence.SortableString(raw)
	if value < persistence.SortableString(after) || value >= persistence.SortableString(before) {
		return
	}

	key := c.cacheKey(before, after)
	t := c.load(ctx, key)
	if !t.Populated || (t.More && value > t.Through) {
		return
	}
	t.Increment(k, delta)
	c.deps.save(ctx, key, t, c.cfg.TTL)
}

// OnPut counts a fresh entity. Counted kinds are append-only, so updates are
// ignored.
func (c *TopCounter[E]) OnPut(ctx context.Context, e E, _ E, existed bool) error {
	if !existed {
		c.adjust(ctx, e, 1)
	}
	return nil
}

// OnDelete uncounts e.
func (c *TopCounter[E]) OnDelete(ctx context.Context, e E) error {
	c.adjust(ctx, e, -1)
	return nil
}
