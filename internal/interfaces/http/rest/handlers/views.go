package handlers

import (
	"time"

	"github.com/hchapman/WBOR-sub000/internal/domain"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/internal/repository"
	"github.com/hchapman/WBOR-sub000/internal/service/station"
)

// Responses carry keys in their encoded form so clients can pass them back
// in URLs unchanged.

func encodeKey(k persistence.Key) string {
	if k.IsZero() {
		return ""
	}
	return k.Encode()
}

func encodeKeys(keys []persistence.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Encode()
	}
	return out
}

func mapAll[E, V any](items []E, view func(E) V) []V {
	out := make([]V, 0, len(items))
	for _, item := range items {
		out = append(out, view(item))
	}
	return out
}

// PlayView is a play as served.
type PlayView struct {
	Key      string    `json:"key"`
	Program  string    `json:"program"`
	Song     string    `json:"song"`
	Album    string    `json:"album,omitempty"`
	Artist   string    `json:"artist"`
	PlayDate time.Time `json:"playDate"`
}

func playView(p *domain.Play) PlayView {
	return PlayView{
		Key:      p.Key.Encode(),
		Program:  encodeKey(p.Program()),
		Song:     p.Song.Encode(),
		Album:    encodeKey(p.Album),
		Artist:   p.Artist,
		PlayDate: p.PlayDate,
	}
}

// SongView is a song as served.
type SongView struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album,omitempty"`
}

func songView(s *domain.Song) SongView {
	return SongView{Key: s.Key.Encode(), Title: s.Title, Artist: s.Artist, Album: encodeKey(s.Album)}
}

// AlbumView is an album as served.
type AlbumView struct {
	Key     string    `json:"key"`
	Title   string    `json:"title"`
	Artist  string    `json:"artist"`
	AddedAt time.Time `json:"addedAt"`
	IsNew   bool      `json:"isNew"`
}

func albumView(a *domain.Album) AlbumView {
	return AlbumView{Key: a.Key.Encode(), Title: a.Title, Artist: a.Artist, AddedAt: a.AddedAt, IsNew: a.IsNew}
}

// NowPlayingView pairs the latest play with its song.
type NowPlayingView struct {
	Play PlayView  `json:"play"`
	Song *SongView `json:"song,omitempty"`
}

func nowPlayingView(np *station.NowPlaying) NowPlayingView {
	v := NowPlayingView{Play: playView(np.Play)}
	if np.Song != nil {
		s := songView(np.Song)
		v.Song = &s
	}
	return v
}

// ChartRow is one ranked chart entry.
type ChartRow[V any] struct {
	Item  V     `json:"item"`
	Count int64 `json:"count"`
}

func chartRows[E repository.Entity, V any](rows []station.Counted[E], view func(E) V) []ChartRow[V] {
	return mapAll(rows, func(c station.Counted[E]) ChartRow[V] {
		return ChartRow[V]{Item: view(c.Item), Count: c.Count}
	})
}

// PostView is a blog post as served.
type PostView struct {
	Key      string    `json:"key"`
	Title    string    `json:"title"`
	Slug     string    `json:"slug"`
	Body     string    `json:"body"`
	PostDate time.Time `json:"postDate"`
}

func postView(p *domain.BlogPost) PostView {
	return PostView{Key: p.Key.Encode(), Title: p.Title, Slug: p.Slug, Body: p.Body, PostDate: p.PostDate}
}

// EventView is a calendar event as served.
type EventView struct {
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	Desc      string    `json:"desc"`
	EventDate time.Time `json:"eventDate"`
}

func eventView(e *domain.Event) EventView {
	return EventView{Key: e.Key.Encode(), Title: e.Title, Desc: e.Desc, EventDate: e.EventDate}
}

// DjView is a DJ as served. Emails are not exposed.
type DjView struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

func djView(d *domain.Dj) DjView {
	return DjView{Key: d.Key.Encode(), Name: d.Name, Username: d.Username}
}

// ProgramView is a program as served.
type ProgramView struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Description string   `json:"description,omitempty"`
	Djs         []string `json:"djs"`
}

func programView(p *domain.Program) ProgramView {
	return ProgramView{
		Key:         p.Key.Encode(),
		Title:       p.Title,
		Slug:        p.Slug,
		Description: p.Description,
		Djs:         encodeKeys(p.Djs),
	}
}

// ArtistView is an artist name as served.
type ArtistView struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func artistView(a *domain.ArtistName) ArtistView {
	return ArtistView{Key: a.Key.Encode(), Name: a.Name}
}
