package domain

import (
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
)

// Play is one charted song in a program's playlist. Plays are append-only:
// song, program and date never change after creation.
type Play struct {
	Key      persistence.Key `json:"key"`
	Song     persistence.Key `json:"song" validate:"required"`
	Album    persistence.Key `json:"album"`
	Artist   string          `json:"artist"`
	PlayDate time.Time       `json:"play_date" validate:"required"`
}

// NewPlay creates an unsaved Play under program.
func NewPlay(program persistence.Key, song *Song, at time.Time) *Play {
	return &Play{
		Key:      persistence.NewKey(KindPlay, "", &program),
		Song:     song.Key,
		Album:    song.Album,
		Artist:   song.Artist,
		PlayDate: at.UTC(),
	}
}

// Program returns the owning program's key.
func (p *Play) Program() persistence.Key {
	k, _ := p.Key.ParentKey()
	return k
}

func (p *Play) EntityKey() persistence.Key      { return p.Key }
func (p *Play) SetEntityKey(k persistence.Key) { p.Key = k }

func (p *Play) ToRecord() persistence.Record {
	props := persistence.Properties{
		FieldSong:     p.Song,
		FieldArtist:   p.Artist,
		FieldPlayDate: p.PlayDate,
	}
	if !p.Album.IsZero() {
		props[FieldAlbum] = p.Album
	}
	return persistence.Record{Key: p.Key, Props: props}
}

// DecodePlay converts a stored record.
func DecodePlay(rec persistence.Record) (*Play, error) {
	if err := checkKind(rec, KindPlay); err != nil {
		return nil, err
	}
	return &Play{
		Key:      rec.Key,
		Song:     rec.KeyProp(FieldSong),
		Album:    rec.KeyProp(FieldAlbum),
		Artist:   rec.String(FieldArtist),
		PlayDate: rec.Time(FieldPlayDate),
	}, nil
}

// Spot is an aired announcement: a PSA or a station ID. Like plays, spots
// are append-only children of their program.
type Spot struct {
	Key      persistence.Key `json:"key"`
	Desc     string          `json:"desc,omitempty"`
	PlayDate time.Time       `json:"play_date" validate:"required"`
}

// NewSpot creates an unsaved spot of kind (KindPsa or KindStationID).
func NewSpot(kind string, program persistence.Key, desc string, at time.Time) *Spot {
	return &Spot{Key: persistence.NewKey(kind, "", &program), Desc: desc, PlayDate: at.UTC()}
}

func (s *Spot) EntityKey() persistence.Key      { return s.Key }
func (s *Spot) SetEntityKey(k persistence.Key) { s.Key = k }

func (s *Spot) ToRecord() persistence.Record {
	return persistence.Record{Key: s.Key, Props: persistence.Properties{
		"desc":        s.Desc,
		FieldPlayDate: s.PlayDate,
	}}
}

// SpotDecoder returns the record decoder for one spot kind.
func SpotDecoder(kind string) func(persistence.Record) (*Spot, error) {
	return func(rec persistence.Record) (*Spot, error) {
		if err := checkKind(rec, kind); err != nil {
			return nil, err
		}
		return &Spot{Key: rec.Key, Desc: rec.String("desc"), PlayDate: rec.Time(FieldPlayDate)}, nil
	}
}
