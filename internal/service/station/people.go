package station

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/hchapman/WBOR-sub000/internal/domain"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/internal/repository"
	apperrors "github.com/hchapman/WBOR-sub000/pkg/errors"
	"github.com/hchapman/WBOR-sub000/pkg/text"

	"go.uber.org/zap"
)

// Djs serves station DJs.
type Djs struct {
	entities   *repository.Entities[*domain.Dj]
	byUsername *repository.UniqueIndex[*domain.Dj]
	byEmail    *repository.UniqueIndex[*domain.Dj]
	search     *repository.Autocompleter[*domain.Dj]
}

// NewDjs wires the DJ service.
func NewDjs(deps repository.Deps, s Settings) *Djs {
	points := repository.NewPointCache(deps, repository.Codec[*domain.Dj]{
		Kind:   domain.KindDj,
		New:    func() *domain.Dj { return &domain.Dj{} },
		Decode: domain.DecodeDj,
	}, s.EntityTTL)
	d := &Djs{
		byUsername: repository.NewUniqueIndex(deps, domain.FieldUsername, s.EntityTTL, points),
		byEmail:    repository.NewUniqueIndex(deps, domain.FieldEmail, s.EntityTTL, points),
		search: repository.NewAutocompleter(deps, repository.AutocompleteConfig[*domain.Dj]{
			Kind:      domain.KindDj,
			Fields:    []string{domain.FieldLowerName},
			Text:      func(d *domain.Dj) string { return d.Name },
			Threshold: s.AutocompleteThreshold,
			TTL:       s.AutocompleteTTL,
		}, points),
	}
	d.entities = repository.NewEntities[*domain.Dj](points, d.byUsername, d.byEmail, d.search)
	return d
}

// Get returns the DJ at key, or nil.
func (d *Djs) Get(ctx context.Context, key persistence.Key) (*domain.Dj, error) {
	return d.entities.Get(ctx, key, true)
}

// GetMulti returns the DJs at keys, in order, skipping missing ones.
func (d *Djs) GetMulti(ctx context.Context, keys []persistence.Key) ([]*domain.Dj, error) {
	return d.entities.GetMulti(ctx, keys)
}

// ByUsername returns the DJ with username or a not-found error.
func (d *Djs) ByUsername(ctx context.Context, username string) (*domain.Dj, error) {
	return d.byUsername.Lookup(ctx, username)
}

// ByEmail returns the DJ with email or a not-found error. Emails compare
// case-insensitively.
func (d *Djs) ByEmail(ctx context.Context, email string) (*domain.Dj, error) {
	return d.byEmail.Lookup(ctx, text.Normalize(email))
}

// Autocomplete returns DJs whose name matches prefix.
func (d *Djs) Autocomplete(ctx context.Context, prefix string) ([]*domain.Dj, error) {
	return d.search.Autocomplete(ctx, prefix)
}

// Put validates and stores dj. Username and email must not belong to
// another DJ.
func (d *Djs) Put(ctx context.Context, dj *domain.Dj) (persistence.Key, error) {
	if err := domain.Validate(dj); err != nil {
		return persistence.Key{}, err
	}
	if err := ensureUnique(ctx, d.byUsername, dj.Username, dj.Key, "username"); err != nil {
		return persistence.Key{}, err
	}
	if err := ensureUnique(ctx, d.byEmail, text.Normalize(dj.Email), dj.Key, "email"); err != nil {
		return persistence.Key{}, err
	}
	return d.entities.Put(ctx, dj)
}

// Delete removes the DJ at key.
func (d *Djs) Delete(ctx context.Context, key persistence.Key) error {
	return d.entities.Delete(ctx, key)
}

// ensureUnique fails when value already maps to an entity other than self.
func ensureUnique[E repository.Entity](ctx context.Context, index *repository.UniqueIndex[E], value string, self persistence.Key, field string) error {
	k, ok, err := index.LookupKey(ctx, value)
	if err != nil {
		return err
	}
	if ok && k != self {
		return apperrors.NewValidation(fmt.Sprintf("%s %q is already taken", field, value), nil)
	}
	return nil
}

// Programs serves shows.
type Programs struct {
	deps     repository.Deps
	entities *repository.Entities[*domain.Program]
	bySlug   *repository.UniqueIndex[*domain.Program]
	search   *repository.Autocompleter[*domain.Program]
}

// NewPrograms wires the program service.
func NewPrograms(deps repository.Deps, s Settings) *Programs {
	points := repository.NewPointCache(deps, repository.Codec[*domain.Program]{
		Kind:   domain.KindProgram,
		New:    func() *domain.Program { return &domain.Program{} },
		Decode: domain.DecodeProgram,
	}, s.EntityTTL)
	deps = prepare(deps)
	p := &Programs{
		deps:   deps,
		bySlug: repository.NewUniqueIndex(deps, domain.FieldSlug, s.EntityTTL, points),
		search: repository.NewAutocompleter(deps, repository.AutocompleteConfig[*domain.Program]{
			Kind:      domain.KindProgram,
			Fields:    []string{domain.FieldLowerTitle},
			Text:      func(p *domain.Program) string { return p.Title },
			Threshold: s.AutocompleteThreshold,
			TTL:       s.AutocompleteTTL,
		}, points),
	}
	p.entities = repository.NewEntities[*domain.Program](points, p.bySlug, p.search)
	return p
}

// Get returns the program at key, or nil.
func (p *Programs) Get(ctx context.Context, key persistence.Key) (*domain.Program, error) {
	return p.entities.Get(ctx, key, true)
}

// BySlug returns the program with slug or a not-found error.
func (p *Programs) BySlug(ctx context.Context, slug string) (*domain.Program, error) {
	return p.bySlug.Lookup(ctx, slug)
}

// Autocomplete returns programs whose title matches prefix.
func (p *Programs) Autocomplete(ctx context.Context, prefix string) ([]*domain.Program, error) {
	return p.search.Autocomplete(ctx, prefix)
}

// Resolve returns the program ref points at, or nil.
func (p *Programs) Resolve(ctx context.Context, ref repository.Ref[*domain.Program]) (*domain.Program, error) {
	return p.entities.Resolve(ctx, ref)
}

// ForDj returns the programs dj hosts.
func (p *Programs) ForDj(ctx context.Context, dj persistence.Key) ([]*domain.Program, error) {
	keys, err := queryAll(ctx, p.deps.Store,
		persistence.NewQuery(domain.KindProgram).Where(domain.FieldDjs, persistence.OpEqual, dj.Encode()))
	if err != nil {
		return nil, err
	}
	return p.entities.GetMulti(ctx, keys)
}

// Put validates and stores program. Slugs are unique.
func (p *Programs) Put(ctx context.Context, program *domain.Program) (persistence.Key, error) {
	if program.Slug == "" {
		program.Slug = text.Slug(program.Title)
	}
	if err := domain.Validate(program); err != nil {
		return persistence.Key{}, err
	}
	if err := ensureUnique(ctx, p.bySlug, program.Slug, program.Key, "slug"); err != nil {
		return persistence.Key{}, err
	}
	return p.entities.Put(ctx, program)
}

// Delete removes the program at key. Its plays stay in the store.
func (p *Programs) Delete(ctx context.Context, key persistence.Key) error {
	return p.entities.Delete(ctx, key)
}

// RecordArtist counts one play of artist on the program. The update is a
// plain read-modify-write, so concurrent charts may lose a count; failures
// are logged and swallowed.
func (p *Programs) RecordArtist(ctx context.Context, key persistence.Key, artist string) {
	if artist == "" {
		return
	}
	program, err := p.Get(ctx, key)
	if err != nil || program == nil {
		p.deps.Logger.Warn("top artist update skipped",
			zap.String("program", key.Encode()), zap.Error(err))
		return
	}
	if program.TopArtists == nil {
		program.TopArtists = make(map[string]int64)
	}
	program.TopArtists[artist]++
	if _, err := p.entities.Put(ctx, program); err != nil {
		p.deps.Logger.Warn("top artist update failed",
			zap.String("program", key.Encode()), zap.Error(err))
	}
}

// ArtistCount is one row of a program's top artists.
type ArtistCount struct {
	Artist string `json:"artist"`
	Count  int64  `json:"count"`
}

// TopArtists returns the program's n most played artists.
func (p *Programs) TopArtists(ctx context.Context, key persistence.Key, n int) ([]ArtistCount, error) {
	program, err := p.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if program == nil {
		return nil, apperrors.NewNotFound(fmt.Sprintf("program %s not found", key))
	}
	out := make([]ArtistCount, 0, len(program.TopArtists))
	for artist, count := range program.TopArtists {
		out = append(out, ArtistCount{Artist: artist, Count: count})
	}
	slices.SortFunc(out, func(a, b ArtistCount) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Artist, b.Artist))
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Permissions serves named capabilities.
type Permissions struct {
	entities *repository.Entities[*domain.Permission]
	byTitle  *repository.UniqueIndex[*domain.Permission]
	djs      *Djs
}

// NewPermissions wires the permission service.
func NewPermissions(deps repository.Deps, s Settings, djs *Djs) *Permissions {
	points := repository.NewPointCache(deps, repository.Codec[*domain.Permission]{
		Kind:   domain.KindPermission,
		New:    func() *domain.Permission { return &domain.Permission{} },
		Decode: domain.DecodePermission,
	}, s.EntityTTL)
	p := &Permissions{
		byTitle: repository.NewUniqueIndex(deps, domain.FieldTitle, s.EntityTTL, points),
		djs:     djs,
	}
	p.entities = repository.NewEntities[*domain.Permission](points, p.byTitle)
	return p
}

// ByTitle returns the permission titled title or a not-found error.
func (p *Permissions) ByTitle(ctx context.Context, title string) (*domain.Permission, error) {
	return p.byTitle.Lookup(ctx, title)
}

// Put validates and stores perm. Titles are unique.
func (p *Permissions) Put(ctx context.Context, perm *domain.Permission) (persistence.Key, error) {
	if err := domain.Validate(perm); err != nil {
		return persistence.Key{}, err
	}
	if err := ensureUnique(ctx, p.byTitle, perm.Title, perm.Key, "title"); err != nil {
		return persistence.Key{}, err
	}
	return p.entities.Put(ctx, perm)
}

// Grant gives dj the permission titled title.
func (p *Permissions) Grant(ctx context.Context, title string, dj persistence.Key) error {
	return p.update(ctx, title, dj, (*domain.Permission).Grant)
}

// Revoke takes the permission titled title away from dj.
func (p *Permissions) Revoke(ctx context.Context, title string, dj persistence.Key) error {
	return p.update(ctx, title, dj, (*domain.Permission).Revoke)
}

func (p *Permissions) update(ctx context.Context, title string, dj persistence.Key, apply func(*domain.Permission, persistence.Key) bool) error {
	perm, err := p.ByTitle(ctx, title)
	if err != nil {
		return err
	}
	found, err := p.djs.Get(ctx, dj)
	if err != nil {
		return err
	}
	if found == nil {
		return apperrors.NewNotFound(fmt.Sprintf("dj %s not found", dj))
	}
	if !apply(perm, dj) {
		return nil
	}
	_, err = p.entities.Put(ctx, perm)
	return err
}

// Has reports whether dj holds the permission titled title.
func (p *Permissions) Has(ctx context.Context, title string, dj persistence.Key) (bool, error) {
	perm, ok, err := p.byTitle.Find(ctx, title)
	if err != nil || !ok {
		return false, err
	}
	return slices.Contains(perm.Djs, dj), nil
}
