package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hchapman/WBOR-sub000/pkg/api"
	apperrors "github.com/hchapman/WBOR-sub000/pkg/errors"
)

// NowPlaying handles GET /api/now-playing. Nothing aired in the window is
// 204.
func (h *Handler) NowPlaying(w http.ResponseWriter, r *http.Request) {
	np, err := h.station.Plays.NowPlaying(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if np == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	api.Success(w, http.StatusOK, nowPlayingView(np))
}

// RecentPlays handles GET /api/plays.
func (h *Handler) RecentPlays(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	plays, err := h.station.Plays.GetLast(r.Context(), limit, nil)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, api.List(mapAll(plays, playView)))
}

// ProgramPlays handles GET /api/programs/{slug}/plays.
func (h *Handler) ProgramPlays(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	program, err := h.station.Programs.BySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	plays, err := h.station.Plays.GetLast(r.Context(), limit, &program.Key)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, api.List(mapAll(plays, playView)))
}

// ProgramTopArtists handles GET /api/programs/{slug}/top-artists.
func (h *Handler) ProgramTopArtists(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	program, err := h.station.Programs.BySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	top, err := h.station.Programs.TopArtists(r.Context(), program.Key, limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, api.List(top))
}

// TopAlbums handles GET /api/charts/albums.
func (h *Handler) TopAlbums(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	rows, err := h.station.Plays.TopAlbums(r.Context(), limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, api.List(chartRows(rows, albumView)))
}

// TopSongs handles GET /api/charts/songs.
func (h *Handler) TopSongs(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	rows, err := h.station.Plays.TopSongs(r.Context(), limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, api.List(chartRows(rows, songView)))
}

// NewAlbums handles GET /api/albums/new.
func (h *Handler) NewAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := h.station.Albums.GetNew(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, api.List(mapAll(albums, albumView)))
}

// RecentPosts handles GET /api/posts.
func (h *Handler) RecentPosts(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	posts, err := h.station.Posts.GetLast(r.Context(), limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, api.List(mapAll(posts, postView)))
}

// GetPost handles GET /api/posts/{slug}.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.station.Posts.BySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, postView(post))
}

// UpcomingEvents handles GET /api/events/upcoming.
func (h *Handler) UpcomingEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	events, err := h.station.Events.Upcoming(r.Context(), limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, api.List(mapAll(events, eventView)))
}

// Autocomplete handles GET /api/autocomplete/{target}?q=.
func (h *Handler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("q"))
	if prefix == "" {
		h.handleServiceError(w, r, apperrors.NewValidation("query parameter q is required", nil))
		return
	}

	ctx := r.Context()
	switch target := chi.URLParam(r, "target"); target {
	case "artists":
		found, err := h.station.Artists.Autocomplete(ctx, prefix)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		api.Success(w, http.StatusOK, api.List(mapAll(found, artistView)))
	case "djs":
		found, err := h.station.Djs.Autocomplete(ctx, prefix)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		api.Success(w, http.StatusOK, api.List(mapAll(found, djView)))
	case "programs":
		found, err := h.station.Programs.Autocomplete(ctx, prefix)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		api.Success(w, http.StatusOK, api.List(mapAll(found, programView)))
	default:
		h.handleServiceError(w, r, apperrors.NewNotFound("no autocomplete for "+target))
	}
}
