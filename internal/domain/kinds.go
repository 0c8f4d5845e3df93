// Package domain defines the station's stored kinds. Each kind is a plain
// struct that converts to and from a persistence.Record; the fields named
// here are the ones the caching layer indexes.
package domain

import (
	"encoding/json"
	"fmt"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
)

// Kind names.
const (
	KindDj         = "Dj"
	KindProgram    = "Program"
	KindAlbum      = "Album"
	KindSong       = "Song"
	KindPlay       = "Play"
	KindPsa        = "Psa"
	KindStationID  = "StationID"
	KindBlogPost   = "BlogPost"
	KindEvent      = "Event"
	KindArtistName = "ArtistName"
	KindPermission = "Permission"
)

// Indexed field names.
const (
	FieldName       = "name"
	FieldLowerName  = "lower_name"
	FieldSearchName = "search_name"
	FieldTitle      = "title"
	FieldLowerTitle = "lower_title"
	FieldSlug       = "slug"
	FieldEmail      = "email"
	FieldUsername   = "username"
	FieldDjs        = "djs"
	FieldIsNew      = "is_new"
	FieldAddedAt    = "added_at"
	FieldPlayDate   = "play_date"
	FieldPostDate   = "post_date"
	FieldEventDate  = "event_date"
	FieldProgram    = "program"
	FieldSong       = "song"
	FieldAlbum      = "album"
	FieldArtist     = "artist"
)

func checkKind(rec persistence.Record, kind string) error {
	if rec.Key.Kind != kind {
		return fmt.Errorf("decode %s: record is a %s", kind, rec.Key.Kind)
	}
	return nil
}

func keyList(keys []persistence.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Encode()
	}
	return out
}

func parseKeyList(encoded []string) ([]persistence.Key, error) {
	out := make([]persistence.Key, 0, len(encoded))
	for _, s := range encoded {
		k, err := persistence.ParseKey(s)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func encodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
