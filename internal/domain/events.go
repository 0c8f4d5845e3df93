package domain

import "time"

// EventTypePlayCharted is published after a play is stored.
const EventTypePlayCharted = "play.charted"

// PlayCharted announces a new play to downstream consumers such as the
// scrobbler.
type PlayCharted struct {
	Play      string    `json:"play"`
	Program   string    `json:"program"`
	Song      string    `json:"song"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	PlayedAt  time.Time `json:"played_at"`
	ChartedAt time.Time `json:"charted_at"`
}

// NewPlayCharted builds the event for p of song.
func NewPlayCharted(p *Play, song *Song, now time.Time) PlayCharted {
	return PlayCharted{
		Play:      p.Key.Encode(),
		Program:   p.Program().Encode(),
		Song:      song.Key.Encode(),
		Title:     song.Title,
		Artist:    song.Artist,
		PlayedAt:  p.PlayDate,
		ChartedAt: now.UTC(),
	}
}
