// Package station holds the station's services: the per-kind read and write
// paths built from the repository components, plus the charting workflow
// that ties plays, programs and artists together.
package station

import (
	"context"
	"fmt"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/domain"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/events"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/internal/repository"

	"go.uber.org/zap"
)

// Settings size the caches behind every service.
type Settings struct {
	EntityTTL time.Duration
	QueryTTL  time.Duration

	LastWindow      time.Duration
	LastGranularity time.Duration
	LastMaxEntries  int
	LastPageSize    int

	AutocompleteThreshold int
	AutocompleteTTL       time.Duration

	ChartWindow           time.Duration
	ChartGranularity      time.Duration
	ChartChunkSize        int
	ChartMaxChunksPerCall int
}

// DefaultSettings returns the settings used when configuration is silent.
func DefaultSettings() Settings {
	return Settings{
		EntityTTL:             time.Hour,
		QueryTTL:              10 * time.Minute,
		LastWindow:            7 * 24 * time.Hour,
		LastGranularity:       time.Hour,
		LastMaxEntries:        200,
		LastPageSize:          20,
		AutocompleteThreshold: 20,
		AutocompleteTTL:       6 * time.Hour,
		ChartWindow:           7 * 24 * time.Hour,
		ChartGranularity:      24 * time.Hour,
		ChartChunkSize:        200,
		ChartMaxChunksPerCall: 5,
	}
}

func (s Settings) lastN(kind, field string, order repository.SortOrder) repository.LastNConfig {
	return repository.LastNConfig{
		Kind:        kind,
		Field:       field,
		Order:       order,
		Width:       s.LastWindow,
		Granularity: s.LastGranularity,
		MaxEntries:  s.LastMaxEntries,
		PageSize:    s.LastPageSize,
		TTL:         s.QueryTTL,
	}
}

// Station is the set of services one process serves.
type Station struct {
	Djs         *Djs
	Programs    *Programs
	Albums      *Albums
	Songs       *Songs
	Artists     *Artists
	Plays       *Plays
	Psas        *Spots
	StationIDs  *Spots
	Posts       *Posts
	Events      *Events
	Permissions *Permissions
}

// New wires every service over deps.
func New(deps repository.Deps, settings Settings, publisher events.Publisher) *Station {
	deps = prepare(deps)
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	djs := NewDjs(deps, settings)
	programs := NewPrograms(deps, settings)
	songs := NewSongs(deps, settings)
	albums := NewAlbums(deps, settings)
	artists := NewArtists(deps, settings)
	return &Station{
		Djs:         djs,
		Programs:    programs,
		Albums:      albums,
		Songs:       songs,
		Artists:     artists,
		Plays:       NewPlays(deps, settings, programs, songs, albums, artists, publisher),
		Psas:        NewSpots(deps, settings, domain.KindPsa, programs),
		StationIDs:  NewSpots(deps, settings, domain.KindStationID, programs),
		Posts:       NewPosts(deps, settings),
		Events:      NewEvents(deps, settings),
		Permissions: NewPermissions(deps, settings, djs),
	}
}

// prepare fills the collaborators the services use directly.
func prepare(deps repository.Deps) repository.Deps {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return deps
}

// Counted is a chart row resolved to its entity.
type Counted[E repository.Entity] struct {
	Item  E     `json:"item"`
	Count int64 `json:"count"`
}

// resolveCounts materializes chart rows, dropping rows whose entity is gone.
func resolveCounts[E repository.Entity](ctx context.Context, points *repository.PointCache[E], counts []repository.Count) ([]Counted[E], error) {
	keys := make([]persistence.Key, len(counts))
	for i, c := range counts {
		keys[i] = c.Key
	}
	items, err := points.GetMulti(ctx, keys)
	if err != nil {
		return nil, err
	}
	byKey := make(map[persistence.Key]E, len(items))
	for _, item := range items {
		byKey[item.EntityKey()] = item
	}
	out := make([]Counted[E], 0, len(counts))
	for _, c := range counts {
		if item, ok := byKey[c.Key]; ok {
			out = append(out, Counted[E]{Item: item, Count: c.Count})
		}
	}
	return out, nil
}

// queryAll pages a query to completion and returns the matching keys.
func queryAll(ctx context.Context, store persistence.Store, q persistence.Query) ([]persistence.Key, error) {
	var keys []persistence.Key
	for {
		page, err := store.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Kind, err)
		}
		keys = append(keys, page.Keys()...)
		if !page.More || page.Cursor == "" || page.Cursor == q.Cursor {
			return keys, nil
		}
		q = q.Start(page.Cursor)
	}
}
