// Package repository implements the caching layer that sits between request
// handlers and the entity store: the point cache, bounded query caches and the
// components built on them (last-N lists, autocomplete, count tables, unique
// lookups and new-item sets).
//
// Components share a Deps value and are configured per entity kind. The cache
// is advisory: every failure talking to it is logged and treated as a miss, and
// the store stays the only source of truth.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/cache"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/observability"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"

	"go.uber.org/zap"
)

// ErrNotCached is returned by cache mutations that target an absent entry.
var ErrNotCached = errors.New("repository: key not cached")

// DefaultMaxFetchPages bounds the store pages one call may fetch to fill a
// query cache.
const DefaultMaxFetchPages = 10

// KeyTemplates are the format strings behind every cache key. Keys carry a
// version prefix so a format change never reads entries written by an older
// release.
type KeyTemplates struct {
	Entity       string // encoded key
	Last         string // kind, scope, before unix, after unix
	Autocomplete string // kind, prefix
	NewItems     string // kind
	Unique       string // kind, field, value
	Top          string // name, before unix, after unix
}

// DefaultKeyTemplates returns the templates used in production.
func DefaultKeyTemplates() KeyTemplates {
	return KeyTemplates{
		Entity:       "v1:entity:%s",
		Last:         "v1:last:%s:%s:%d:%d",
		Autocomplete: "v1:ac:%s:%s",
		NewItems:     "v1:new:%s",
		Unique:       "v1:uniq:%s:%s:%s",
		Top:          "v1:top:%s:%d:%d",
	}
}

// Deps are the collaborators shared by every cache component.
type Deps struct {
	Store   persistence.Store
	Cache   cache.Cache
	Logger  *zap.Logger
	Metrics *observability.Collector // optional
	Keys    KeyTemplates
	Now     func() time.Time

	MaxFetchPages int
}

func (d Deps) withDefaults() Deps {
	if d.Cache == nil {
		d.Cache = cache.NewNoopCache()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Keys == (KeyTemplates{}) {
		d.Keys = DefaultKeyTemplates()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MaxFetchPages <= 0 {
		d.MaxFetchPages = DefaultMaxFetchPages
	}
	return d
}

func (d Deps) key(format string, args ...any) string {
	return cache.SafeKey(fmt.Sprintf(format, args...))
}

// load decodes a cached JSON value into v. Misses, backend failures and
// undecodable entries all report false.
func (d Deps) load(ctx context.Context, key string, v any) bool {
	data, ok, err := d.Cache.Get(ctx, key)
	if err != nil {
		d.Logger.Warn("cache get failed", zap.String("cache_key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		d.Logger.Warn("discarding undecodable cache entry", zap.String("cache_key", key), zap.Error(err))
		return false
	}
	return true
}

// save is best-effort.
func (d Deps) save(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		d.Logger.Error("failed to encode cache entry", zap.String("cache_key", key), zap.Error(err))
		return
	}
	if err := d.Cache.Set(ctx, key, data, ttl); err != nil {
		d.Logger.Warn("cache set failed", zap.String("cache_key", key), zap.Error(err))
	}
}

// drop is best-effort.
func (d Deps) drop(ctx context.Context, key string) {
	if err := d.Cache.Delete(ctx, key); err != nil {
		d.Logger.Warn("cache delete failed", zap.String("cache_key", key), zap.Error(err))
	}
}

// Entity is implemented by every stored kind. E is expected to be a pointer
// type so SetEntityKey can complete the key after a put.
type Entity interface {
	EntityKey() persistence.Key
	SetEntityKey(persistence.Key)
	ToRecord() persistence.Record
}

// Codec converts between records and entities of one kind.
type Codec[E Entity] struct {
	Kind   string
	New    func() E
	Decode func(persistence.Record) (E, error)
}

// Ref is either a key or an already loaded entity.
type Ref[E Entity] struct {
	key    persistence.Key
	entity E
	loaded bool
}

// KeyRef refers to an entity by key.
func KeyRef[E Entity](k persistence.Key) Ref[E] {
	return Ref[E]{key: k}
}

// EntityRef wraps a loaded entity.
func EntityRef[E Entity](e E) Ref[E] {
	return Ref[E]{key: e.EntityKey(), entity: e, loaded: true}
}

// Key returns the referenced key.
func (r Ref[E]) Key() persistence.Key {
	return r.key
}

// Entity returns the wrapped entity, if the ref carries one.
func (r Ref[E]) Entity() (E, bool) {
	return r.entity, r.loaded
}
