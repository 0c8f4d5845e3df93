package domain

import (
	"testing"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	apperrors "github.com/hchapman/WBOR-sub000/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Run("Should reject an album without a title", func(t *testing.T) {
		err := Validate(NewAlbum("  ", "Radiohead", time.Now()))
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Contains(t, err.Error(), "title is required")
	})

	t.Run("Should name every bad field", func(t *testing.T) {
		err := Validate(NewDj("", "not-an-email", "dj"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name is required")
		assert.Contains(t, err.Error(), "email must be a valid email address")
	})

	t.Run("Should check slugs", func(t *testing.T) {
		p := NewProgram("Morning Show")
		assert.NoError(t, Validate(p))
		p.Slug = "Not A Slug"
		assert.True(t, apperrors.IsValidation(Validate(p)))
	})
}

func TestValidate_Keys(t *testing.T) {
	program := persistence.NewKey(KindProgram, "jazz", nil)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("Should require the song of a play", func(t *testing.T) {
		err := Validate(&Play{Key: persistence.NewKey(KindPlay, "", &program), PlayDate: now})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Contains(t, err.Error(), "song is required")
	})

	t.Run("Should treat an incomplete song key as missing", func(t *testing.T) {
		err := Validate(&Play{Song: persistence.NewKey(KindSong, "", nil), PlayDate: now})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("Should accept a complete play", func(t *testing.T) {
		song := &Song{Key: persistence.NewKey(KindSong, "loser", nil), Title: "Loser", Artist: "Beck"}
		assert.NoError(t, Validate(NewPlay(program, song, now)))
	})
}

func TestProgramRecord(t *testing.T) {
	dj := persistence.NewKey(KindDj, "alice", nil)
	p := NewProgram("Late Night Jazz", dj)
	p.Key = persistence.NewKey(KindProgram, "jazz", nil)
	p.TopArtists = map[string]int64{"Coltrane": 3}

	rec := p.ToRecord()
	assert.Equal(t, "late night jazz", rec.Props[FieldLowerTitle])
	assert.Equal(t, []string{"Dj:alice"}, rec.Props[FieldDjs])

	got, err := DecodeProgram(rec)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.True(t, got.HasDj(dj))

	_, err = DecodeDj(rec)
	assert.Error(t, err, "kind mismatch")
}

func TestPlayRecord(t *testing.T) {
	program := persistence.NewKey(KindProgram, "jazz", nil)
	album := persistence.NewKey(KindAlbum, "love-supreme", nil)
	song := NewSong("Acknowledgement", "John Coltrane", &album)
	song.Key = persistence.NewKey(KindSong, "ack", nil)
	at := time.Date(2024, 3, 1, 21, 0, 0, 0, time.FixedZone("EST", -5*3600))

	p := NewPlay(program, song, at)
	assert.Equal(t, program, p.Program())
	assert.Equal(t, time.UTC, p.PlayDate.Location())

	rec := p.ToRecord()
	got, err := DecodePlay(rec)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	ev := NewPlayCharted(p, song, at)
	assert.Equal(t, "Program:jazz", ev.Program)
	assert.Equal(t, "John Coltrane", ev.Artist)
}

func TestArtistNameRecord(t *testing.T) {
	rec := NewArtistName("The  Beatles").ToRecord()
	assert.Equal(t, "the beatles", rec.Props[FieldLowerName])
	assert.Equal(t, "beatles", rec.Props[FieldSearchName])
}

func TestPermissionGrantRevoke(t *testing.T) {
	p := NewPermission("Manage Albums")
	dj := persistence.NewKey(KindDj, "bob", nil)
	assert.True(t, p.Grant(dj))
	assert.False(t, p.Grant(dj))
	assert.True(t, p.Revoke(dj))
	assert.False(t, p.Revoke(dj))
}
