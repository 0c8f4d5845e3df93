package station

import (
	"context"
	"fmt"

	"github.com/hchapman/WBOR-sub000/internal/domain"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/events"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/internal/repository"
	apperrors "github.com/hchapman/WBOR-sub000/pkg/errors"

	"go.uber.org/zap"
)

// Plays serves the playlist: charting songs, the recent plays lists and the
// album and song charts.
type Plays struct {
	deps      repository.Deps
	entities  *repository.Entities[*domain.Play]
	last      *repository.LastN[*domain.Play]
	topAlbums *repository.TopCounter[*domain.Play]
	topSongs  *repository.TopCounter[*domain.Play]

	programs  *Programs
	songs     *Songs
	albums    *Albums
	artists   *Artists
	publisher events.Publisher
}

// NewPlays wires the play service.
func NewPlays(deps repository.Deps, s Settings, programs *Programs, songs *Songs, albums *Albums, artists *Artists, publisher events.Publisher) *Plays {
	deps = prepare(deps)
	points := repository.NewPointCache(deps, repository.Codec[*domain.Play]{
		Kind:   domain.KindPlay,
		New:    func() *domain.Play { return &domain.Play{} },
		Decode: domain.DecodePlay,
	}, s.EntityTTL)
	p := &Plays{
		deps:      deps,
		last:      repository.NewLastN(deps, s.lastN(domain.KindPlay, domain.FieldPlayDate, repository.Descending), points),
		topAlbums: repository.NewTopCounter[*domain.Play](deps, s.chart("albums", domain.FieldAlbum)),
		topSongs:  repository.NewTopCounter[*domain.Play](deps, s.chart("songs", domain.FieldSong)),
		programs:  programs,
		songs:     songs,
		albums:    albums,
		artists:   artists,
		publisher: publisher,
	}
	p.entities = repository.NewEntities[*domain.Play](points, p.last, p.topAlbums, p.topSongs)
	return p
}

// chart configures a play chart counting the key stored in field.
func (s Settings) chart(name, field string) repository.TopCounterConfig {
	return repository.TopCounterConfig{
		Name:             name,
		Kind:             domain.KindPlay,
		Field:            domain.FieldPlayDate,
		Window:           s.ChartWindow,
		Granularity:      s.ChartGranularity,
		ChunkSize:        s.ChartChunkSize,
		MaxChunksPerCall: s.ChartMaxChunksPerCall,
		TTL:              s.QueryTTL,
		Derive: func(rec persistence.Record) (persistence.Key, bool) {
			k := rec.KeyProp(field)
			return k, !k.IsZero()
		},
	}
}

// Chart records that song was played on program now. Both must exist; a
// loaded program is used as is. The program's top artists, the artist name
// and the play.charted event are updated after the play is stored; their
// failures are logged only.
func (p *Plays) Chart(ctx context.Context, program repository.Ref[*domain.Program], song persistence.Key) (*domain.Play, error) {
	prog, err := p.programs.Resolve(ctx, program)
	if err != nil {
		return nil, err
	}
	if prog == nil {
		return nil, apperrors.NewNotFound(fmt.Sprintf("program %s not found", program.Key()))
	}
	s, err := p.songs.Get(ctx, song)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, apperrors.NewNotFound(fmt.Sprintf("song %s not found", song))
	}

	now := p.deps.Now()
	play := domain.NewPlay(prog.Key, s, now)
	if err := domain.Validate(play); err != nil {
		return nil, err
	}
	if _, err := p.entities.Put(ctx, play); err != nil {
		return nil, apperrors.Wrap(err, "chart play")
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.PlaysCharted.Inc()
	}

	p.programs.RecordArtist(ctx, prog.Key, s.Artist)
	if s.Artist != "" {
		if _, err := p.artists.EnsureArtist(ctx, s.Artist); err != nil {
			p.deps.Logger.Warn("artist name not recorded",
				zap.String("artist", s.Artist), zap.Error(err))
		}
	}
	event := events.Event{
		Type:    domain.EventTypePlayCharted,
		Subject: play.Key.Encode(),
		Time:    now,
		Detail:  domain.NewPlayCharted(play, s, now),
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.deps.Logger.Warn("play event not published",
			zap.String("play", play.Key.Encode()), zap.Error(err))
	}
	return play, nil
}

// Get returns the play at key, or nil.
func (p *Plays) Get(ctx context.Context, key persistence.Key) (*domain.Play, error) {
	return p.entities.Get(ctx, key, true)
}

// Delete removes the play at key from the store and every list and chart.
func (p *Plays) Delete(ctx context.Context, key persistence.Key) error {
	return p.entities.Delete(ctx, key)
}

// GetLast returns up to num recent plays, newest first. A nil program means
// every program.
func (p *Plays) GetLast(ctx context.Context, num int, program *persistence.Key) ([]*domain.Play, error) {
	return p.last.GetLast(ctx, num, repository.LastQuery{Scope: program})
}

// GetLatest returns the most recent play, or nil.
func (p *Plays) GetLatest(ctx context.Context, program *persistence.Key) (*domain.Play, error) {
	return p.last.GetLatest(ctx, repository.LastQuery{Scope: program})
}

// TopAlbums returns the n most played albums of the chart window.
func (p *Plays) TopAlbums(ctx context.Context, n int) ([]Counted[*domain.Album], error) {
	counts, err := p.topAlbums.Top(ctx, n)
	if err != nil {
		return nil, err
	}
	return resolveCounts(ctx, p.albums.entities.PointCache, counts)
}

// TopSongs returns the n most played songs of the chart window.
func (p *Plays) TopSongs(ctx context.Context, n int) ([]Counted[*domain.Song], error) {
	counts, err := p.topSongs.Top(ctx, n)
	if err != nil {
		return nil, err
	}
	return resolveCounts(ctx, p.songs.entities.PointCache, counts)
}

// NowPlaying is the latest play with its song resolved.
type NowPlaying struct {
	Play *domain.Play `json:"play"`
	Song *domain.Song `json:"song,omitempty"`
}

// NowPlaying returns the latest play, or nil when nothing aired in the
// window.
func (p *Plays) NowPlaying(ctx context.Context) (*NowPlaying, error) {
	play, err := p.GetLatest(ctx, nil)
	if err != nil || play == nil {
		return nil, err
	}
	song, err := p.songs.Get(ctx, play.Song)
	if err != nil {
		return nil, err
	}
	return &NowPlaying{Play: play, Song: song}, nil
}

// Spots serves one kind of aired announcement (PSAs or station IDs).
type Spots struct {
	deps     repository.Deps
	kind     string
	entities *repository.Entities[*domain.Spot]
	last     *repository.LastN[*domain.Spot]
	programs *Programs
}

// NewSpots wires the service for kind.
func NewSpots(deps repository.Deps, s Settings, kind string, programs *Programs) *Spots {
	deps = prepare(deps)
	points := repository.NewPointCache(deps, repository.Codec[*domain.Spot]{
		Kind:   kind,
		New:    func() *domain.Spot { return &domain.Spot{} },
		Decode: domain.SpotDecoder(kind),
	}, s.EntityTTL)
	last := repository.NewLastN(deps, s.lastN(kind, domain.FieldPlayDate, repository.Descending), points)
	return &Spots{
		deps:     deps,
		kind:     kind,
		entities: repository.NewEntities[*domain.Spot](points, last),
		last:     last,
		programs: programs,
	}
}

// Record stores a spot aired on program now.
func (s *Spots) Record(ctx context.Context, program persistence.Key, desc string) (*domain.Spot, error) {
	prog, err := s.programs.Get(ctx, program)
	if err != nil {
		return nil, err
	}
	if prog == nil {
		return nil, apperrors.NewNotFound(fmt.Sprintf("program %s not found", program))
	}
	spot := domain.NewSpot(s.kind, prog.Key, desc, s.deps.Now())
	if err := domain.Validate(spot); err != nil {
		return nil, err
	}
	if _, err := s.entities.Put(ctx, spot); err != nil {
		return nil, err
	}
	return spot, nil
}

// GetLast returns up to num recent spots aired on program, newest first.
func (s *Spots) GetLast(ctx context.Context, num int, program persistence.Key) ([]*domain.Spot, error) {
	return s.last.GetLast(ctx, num, repository.LastQuery{Scope: &program})
}

// Delete removes the spot at key.
func (s *Spots) Delete(ctx context.Context, key persistence.Key) error {
	return s.entities.Delete(ctx, key)
}
