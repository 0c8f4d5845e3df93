package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"

	"go.uber.org/zap"
)

// PointCache memoizes single entities by key in front of the store.
type PointCache[E Entity] struct {
	deps  Deps
	codec Codec[E]
	ttl   time.Duration
}

// NewPointCache creates the point cache for one kind.
func NewPointCache[E Entity](deps Deps, codec Codec[E], ttl time.Duration) *PointCache[E] {
	return &PointCache[E]{deps: deps.withDefaults(), codec: codec, ttl: ttl}
}

// Kind returns the entity kind served by this cache.
func (p *PointCache[E]) Kind() string {
	return p.codec.Kind
}

func (p *PointCache[E]) cacheKey(k persistence.Key) string {
	return p.deps.key(p.deps.Keys.Entity, k.Encode())
}

func (p *PointCache[E]) fromCache(ctx context.Context, k persistence.Key) (E, bool) {
	e := p.codec.New()
	if !p.deps.load(ctx, p.cacheKey(k), e) {
		var zero E
		return zero, false
	}
	// The cached document may predate a key migration; the lookup key wins.
	e.SetEntityKey(k)
	return e, true
}

// Prime stores e in the cache without touching the store.
func (p *PointCache[E]) Prime(ctx context.Context, e E) {
	p.deps.save(ctx, p.cacheKey(e.EntityKey()), e, p.ttl)
}

// Evict removes k from the cache without touching the store.
func (p *PointCache[E]) Evict(ctx context.Context, k persistence.Key) {
	p.deps.drop(ctx, p.cacheKey(k))
}

func (p *PointCache[E]) lookup(ctx context.Context, k persistence.Key, fallback bool) (E, bool, error) {
	var zero E
	if k.IsZero() || k.Incomplete() {
		return zero, false, nil
	}
	if e, ok := p.fromCache(ctx, k); ok {
		return e, true, nil
	}
	if !fallback {
		return zero, false, nil
	}

	rec, err := p.deps.Store.Get(ctx, k)
	if errors.Is(err, persistence.ErrNoSuchEntity) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("get %s: %w", k, err)
	}
	e, err := p.codec.Decode(*rec)
	if err != nil {
		return zero, false, fmt.Errorf("decode %s: %w", k, err)
	}
	p.Prime(ctx, e)
	return e, true, nil
}

// Get returns the entity for k, or the zero value when it does not exist.
// Without fallback a cache miss also yields the zero value.
func (p *PointCache[E]) Get(ctx context.Context, k persistence.Key, fallback bool) (E, error) {
	e, _, err := p.lookup(ctx, k, fallback)
	return e, err
}

// Resolve normalizes a ref to an entity. Loaded refs are returned as is.
func (p *PointCache[E]) Resolve(ctx context.Context, ref Ref[E]) (E, error) {
	if e, ok := ref.Entity(); ok {
		return e, nil
	}
	return p.Get(ctx, ref.Key(), true)
}

// GetMulti returns the entities for keys in input order. Keys that resolve to
// nothing are dropped. Cache misses are fetched in a single store round trip.
func (p *PointCache[E]) GetMulti(ctx context.Context, keys []persistence.Key) ([]E, error) {
	found := make(map[persistence.Key]E, len(keys))
	var misses []persistence.Key
	for _, k := range keys {
		if _, dup := found[k]; dup || k.Incomplete() {
			continue
		}
		if e, ok := p.fromCache(ctx, k); ok {
			found[k] = e
			continue
		}
		misses = append(misses, k)
	}

	if len(misses) > 0 {
		recs, err := p.deps.Store.GetMulti(ctx, misses)
		if err != nil {
			return nil, fmt.Errorf("get multi %s: %w", p.codec.Kind, err)
		}
		for i, rec := range recs {
			if rec == nil {
				continue
			}
			e, err := p.codec.Decode(*rec)
			if err != nil {
				p.deps.Logger.Warn("dropping undecodable entity",
					zap.String("key", misses[i].Encode()), zap.Error(err))
				continue
			}
			found[misses[i]] = e
			p.Prime(ctx, e)
		}
	}

	out := make([]E, 0, len(keys))
	for _, k := range keys {
		if e, ok := found[k]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Put writes e to the store, completes its key, then refreshes the cache.
func (p *PointCache[E]) Put(ctx context.Context, e E) (persistence.Key, error) {
	key, err := p.deps.Store.Put(ctx, e.ToRecord())
	if err != nil {
		return persistence.Key{}, fmt.Errorf("put %s: %w", p.codec.Kind, err)
	}
	e.SetEntityKey(key)
	p.Prime(ctx, e)
	return key, nil
}

// Delete evicts k and removes it from the store.
func (p *PointCache[E]) Delete(ctx context.Context, k persistence.Key) error {
	p.Evict(ctx, k)
	if err := p.deps.Store.Delete(ctx, k); err != nil {
		return fmt.Errorf("delete %s: %w", k, err)
	}
	return nil
}
