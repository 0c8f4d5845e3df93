package repository

import (
	"context"
	"fmt"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"

	"go.uber.org/zap"
)

// Hook keeps one derived cache in step with writes to a kind. prev is the
// entity as it was before the put; existed is false for a fresh entity.
type Hook[E Entity] interface {
	OnPut(ctx context.Context, e, prev E, existed bool) error
	OnDelete(ctx context.Context, e E) error
}

// HookFuncs adapts plain functions to Hook. Nil fields are skipped.
type HookFuncs[E Entity] struct {
	Put    func(ctx context.Context, e, prev E, existed bool) error
	Delete func(ctx context.Context, e E) error
}

func (h HookFuncs[E]) OnPut(ctx context.Context, e, prev E, existed bool) error {
	if h.Put == nil {
		return nil
	}
	return h.Put(ctx, e, prev, existed)
}

func (h HookFuncs[E]) OnDelete(ctx context.Context, e E) error {
	if h.Delete == nil {
		return nil
	}
	return h.Delete(ctx, e)
}

// Entities is the write path of a kind: the point cache plus the hooks of
// every derived cache the kind participates in.
type Entities[E Entity] struct {
	*PointCache[E]
	hooks []Hook[E]
}

// NewEntities wraps a point cache with the given hooks.
func NewEntities[E Entity](points *PointCache[E], hooks ...Hook[E]) *Entities[E] {
	return &Entities[E]{PointCache: points, hooks: hooks}
}

// Use appends hooks. It is meant for wiring, before the first write.
func (s *Entities[E]) Use(hooks ...Hook[E]) {
	s.hooks = append(s.hooks, hooks...)
}

// Put writes e and then runs every hook. Hook failures only degrade derived
// caches, so they are logged rather than returned.
func (s *Entities[E]) Put(ctx context.Context, e E) (persistence.Key, error) {
	var prev E
	var existed bool
	if k := e.EntityKey(); !k.Incomplete() {
		var err error
		if prev, existed, err = s.lookup(ctx, k, true); err != nil {
			return persistence.Key{}, fmt.Errorf("load previous %s: %w", k, err)
		}
	}

	key, err := s.PointCache.Put(ctx, e)
	if err != nil {
		return persistence.Key{}, err
	}
	for _, h := range s.hooks {
		if err := h.OnPut(ctx, e, prev, existed); err != nil {
			s.deps.Logger.Warn("put hook failed",
				zap.String("key", key.Encode()), zap.Error(err))
		}
	}
	return key, nil
}

// Delete removes the entity at k and runs every hook. Deleting a key that
// resolves to nothing is a no-op.
func (s *Entities[E]) Delete(ctx context.Context, k persistence.Key) error {
	e, existed, err := s.lookup(ctx, k, true)
	if err != nil {
		return fmt.Errorf("load %s: %w", k, err)
	}
	if err := s.PointCache.Delete(ctx, k); err != nil {
		return err
	}
	if !existed {
		return nil
	}
	for _, h := range s.hooks {
		if err := h.OnDelete(ctx, e); err != nil {
			s.deps.Logger.Warn("delete hook failed",
				zap.String("key", k.Encode()), zap.Error(err))
		}
	}
	return nil
}
