package station

import (
	"context"
	"fmt"

	"github.com/hchapman/WBOR-sub000/internal/domain"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/internal/repository"
	apperrors "github.com/hchapman/WBOR-sub000/pkg/errors"
	"github.com/hchapman/WBOR-sub000/pkg/text"
)

// Albums serves the record library.
type Albums struct {
	entities *repository.Entities[*domain.Album]
	fresh    *repository.NewItems[*domain.Album]
}

// NewAlbums wires the album service.
func NewAlbums(deps repository.Deps, s Settings) *Albums {
	points := repository.NewPointCache(deps, repository.Codec[*domain.Album]{
		Kind:   domain.KindAlbum,
		New:    func() *domain.Album { return &domain.Album{} },
		Decode: domain.DecodeAlbum,
	}, s.EntityTTL)
	fresh := repository.NewNewItems(deps, repository.NewItemsConfig[*domain.Album]{
		Kind: domain.KindAlbum,
		Flag: domain.FieldIsNew,
		TTL:  s.QueryTTL,
		Less: func(a, b *domain.Album) int { return b.AddedAt.Compare(a.AddedAt) },
	}, points)
	return &Albums{entities: repository.NewEntities[*domain.Album](points, fresh), fresh: fresh}
}

// Get returns the album at key, or nil.
func (a *Albums) Get(ctx context.Context, key persistence.Key) (*domain.Album, error) {
	return a.entities.Get(ctx, key, true)
}

// GetNew returns the albums flagged new, most recently added first.
func (a *Albums) GetNew(ctx context.Context) ([]*domain.Album, error) {
	return a.fresh.Get(ctx)
}

// Put validates and stores album.
func (a *Albums) Put(ctx context.Context, album *domain.Album) (persistence.Key, error) {
	if err := domain.Validate(album); err != nil {
		return persistence.Key{}, err
	}
	return a.entities.Put(ctx, album)
}

// SetNew flags or unflags the album at key.
func (a *Albums) SetNew(ctx context.Context, key persistence.Key, isNew bool) (*domain.Album, error) {
	album, err := a.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if album == nil {
		return nil, apperrors.NewNotFound(fmt.Sprintf("album %s not found", key))
	}
	if album.IsNew == isNew {
		return album, nil
	}
	album.IsNew = isNew
	if _, err := a.entities.Put(ctx, album); err != nil {
		return nil, err
	}
	return album, nil
}

// Delete removes the album at key.
func (a *Albums) Delete(ctx context.Context, key persistence.Key) error {
	return a.entities.Delete(ctx, key)
}

// Songs serves tracks.
type Songs struct {
	entities *repository.Entities[*domain.Song]
}

// NewSongs wires the song service.
func NewSongs(deps repository.Deps, s Settings) *Songs {
	points := repository.NewPointCache(deps, repository.Codec[*domain.Song]{
		Kind:   domain.KindSong,
		New:    func() *domain.Song { return &domain.Song{} },
		Decode: domain.DecodeSong,
	}, s.EntityTTL)
	return &Songs{entities: repository.NewEntities[*domain.Song](points)}
}

// Get returns the song at key, or nil.
func (s *Songs) Get(ctx context.Context, key persistence.Key) (*domain.Song, error) {
	return s.entities.Get(ctx, key, true)
}

// Put validates and stores song.
func (s *Songs) Put(ctx context.Context, song *domain.Song) (persistence.Key, error) {
	if err := domain.Validate(song); err != nil {
		return persistence.Key{}, err
	}
	return s.entities.Put(ctx, song)
}

// Delete removes the song at key.
func (s *Songs) Delete(ctx context.Context, key persistence.Key) error {
	return s.entities.Delete(ctx, key)
}

// Artists serves the searchable artist names.
type Artists struct {
	entities *repository.Entities[*domain.ArtistName]
	byName   *repository.UniqueIndex[*domain.ArtistName]
	search   *repository.Autocompleter[*domain.ArtistName]
}

// NewArtists wires the artist service.
func NewArtists(deps repository.Deps, s Settings) *Artists {
	points := repository.NewPointCache(deps, repository.Codec[*domain.ArtistName]{
		Kind:   domain.KindArtistName,
		New:    func() *domain.ArtistName { return &domain.ArtistName{} },
		Decode: domain.DecodeArtistName,
	}, s.EntityTTL)
	a := &Artists{
		byName: repository.NewUniqueIndex(deps, domain.FieldLowerName, s.EntityTTL, points),
		search: repository.NewAutocompleter(deps, repository.AutocompleteConfig[*domain.ArtistName]{
			Kind:      domain.KindArtistName,
			Fields:    []string{domain.FieldLowerName, domain.FieldSearchName},
			Text:      func(a *domain.ArtistName) string { return a.Name },
			Threshold: s.AutocompleteThreshold,
			TTL:       s.AutocompleteTTL,
		}, points),
	}
	a.entities = repository.NewEntities[*domain.ArtistName](points, a.byName, a.search)
	return a
}

// Get returns the artist name at key, or nil.
func (a *Artists) Get(ctx context.Context, key persistence.Key) (*domain.ArtistName, error) {
	return a.entities.Get(ctx, key, true)
}

// EnsureArtist returns the stored name matching name, creating it on first
// use. Names match case-insensitively.
func (a *Artists) EnsureArtist(ctx context.Context, name string) (*domain.ArtistName, error) {
	found, ok, err := a.byName.Find(ctx, text.Normalize(name))
	if err != nil {
		return nil, err
	}
	if ok {
		return found, nil
	}
	artist := domain.NewArtistName(name)
	if err := domain.Validate(artist); err != nil {
		return nil, err
	}
	if _, err := a.entities.Put(ctx, artist); err != nil {
		return nil, err
	}
	return artist, nil
}

// Autocomplete returns artists whose name matches prefix. "be" finds both
// Beck and The Beatles.
func (a *Artists) Autocomplete(ctx context.Context, prefix string) ([]*domain.ArtistName, error) {
	return a.search.Autocomplete(ctx, prefix)
}

// Delete removes the artist name at key.
func (a *Artists) Delete(ctx context.Context, key persistence.Key) error {
	return a.entities.Delete(ctx, key)
}
