package domain

import (
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/pkg/text"
)

// Album is a release in the station library. Only IsNew changes after the
// album is created.
type Album struct {
	Key     persistence.Key `json:"key"`
	Title   string          `json:"title" validate:"notblank,max=300"`
	Artist  string          `json:"artist"`
	AddedAt time.Time       `json:"added_at"`
	IsNew   bool            `json:"is_new"`
}

// NewAlbum creates an unsaved Album flagged new.
func NewAlbum(title, artist string, addedAt time.Time) *Album {
	return &Album{
		Key:     persistence.NewKey(KindAlbum, "", nil),
		Title:   title,
		Artist:  artist,
		AddedAt: addedAt.UTC(),
		IsNew:   true,
	}
}

func (a *Album) EntityKey() persistence.Key      { return a.Key }
func (a *Album) SetEntityKey(k persistence.Key) { a.Key = k }

func (a *Album) ToRecord() persistence.Record {
	return persistence.Record{Key: a.Key, Props: persistence.Properties{
		FieldTitle:      a.Title,
		FieldLowerTitle: text.Normalize(a.Title),
		FieldArtist:     a.Artist,
		FieldAddedAt:    a.AddedAt,
		FieldIsNew:      a.IsNew,
	}}
}

// DecodeAlbum converts a stored record.
func DecodeAlbum(rec persistence.Record) (*Album, error) {
	if err := checkKind(rec, KindAlbum); err != nil {
		return nil, err
	}
	return &Album{
		Key:     rec.Key,
		Title:   rec.String(FieldTitle),
		Artist:  rec.String(FieldArtist),
		AddedAt: rec.Time(FieldAddedAt),
		IsNew:   rec.Bool(FieldIsNew),
	}, nil
}

// Song is a track, optionally on an album.
type Song struct {
	Key    persistence.Key `json:"key"`
	Title  string          `json:"title" validate:"notblank,max=300"`
	Artist string          `json:"artist" validate:"notblank,max=300"`
	Album  persistence.Key `json:"album"`
}

// NewSong creates an unsaved Song.
func NewSong(title, artist string, album *persistence.Key) *Song {
	s := &Song{Key: persistence.NewKey(KindSong, "", nil), Title: title, Artist: artist}
	if album != nil {
		s.Album = *album
	}
	return s
}

func (s *Song) EntityKey() persistence.Key      { return s.Key }
func (s *Song) SetEntityKey(k persistence.Key) { s.Key = k }

func (s *Song) ToRecord() persistence.Record {
	props := persistence.Properties{
		FieldTitle:  s.Title,
		FieldArtist: s.Artist,
	}
	if !s.Album.IsZero() {
		props[FieldAlbum] = s.Album
	}
	return persistence.Record{Key: s.Key, Props: props}
}

// DecodeSong converts a stored record.
func DecodeSong(rec persistence.Record) (*Song, error) {
	if err := checkKind(rec, KindSong); err != nil {
		return nil, err
	}
	return &Song{
		Key:    rec.Key,
		Title:  rec.String(FieldTitle),
		Artist: rec.String(FieldArtist),
		Album:  rec.KeyProp(FieldAlbum),
	}, nil
}

// ArtistName is the searchable name of an artist that has been charted.
type ArtistName struct {
	Key  persistence.Key `json:"key"`
	Name string          `json:"name" validate:"notblank,max=300"`
}

// NewArtistName creates an unsaved ArtistName.
func NewArtistName(name string) *ArtistName {
	return &ArtistName{Key: persistence.NewKey(KindArtistName, "", nil), Name: name}
}

func (a *ArtistName) EntityKey() persistence.Key      { return a.Key }
func (a *ArtistName) SetEntityKey(k persistence.Key) { a.Key = k }

func (a *ArtistName) ToRecord() persistence.Record {
	return persistence.Record{Key: a.Key, Props: persistence.Properties{
		FieldName:       a.Name,
		FieldLowerName:  text.Normalize(a.Name),
		FieldSearchName: text.SearchName(a.Name),
	}}
}

// DecodeArtistName converts a stored record.
func DecodeArtistName(rec persistence.Record) (*ArtistName, error) {
	if err := checkKind(rec, KindArtistName); err != nil {
		return nil, err
	}
	return &ArtistName{Key: rec.Key, Name: rec.String(FieldName)}, nil
}
