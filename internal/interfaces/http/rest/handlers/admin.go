package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hchapman/WBOR-sub000/internal/domain"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/internal/repository"
	"github.com/hchapman/WBOR-sub000/pkg/api"
)

// ChartPlayRequest names the song to chart.
type ChartPlayRequest struct {
	Song string `json:"song" validate:"required"`
}

// ChartPlay handles POST /api/admin/programs/{slug}/plays.
func (h *Handler) ChartPlay(w http.ResponseWriter, r *http.Request) {
	var req ChartPlayRequest
	if err := decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	songs, err := parseKeys([]string{req.Song}, domain.KindSong)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	program, err := h.station.Programs.BySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	play, err := h.station.Plays.Chart(r.Context(), repository.EntityRef(program), songs[0])
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, playView(play))
}

// DeletePlay handles DELETE /api/admin/plays/*. Play keys contain their
// program's key, so the whole remaining path is the key.
func (h *Handler) DeletePlay(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r, "*", domain.KindPlay)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if err := h.station.Plays.Delete(r.Context(), key); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateAlbumRequest describes a new album.
type CreateAlbumRequest struct {
	Title  string `json:"title" validate:"required,max=300"`
	Artist string `json:"artist" validate:"max=300"`
	IsNew  *bool  `json:"isNew,omitempty"`
}

// CreateAlbum handles POST /api/admin/albums. Albums are new unless the
// request says otherwise.
func (h *Handler) CreateAlbum(w http.ResponseWriter, r *http.Request) {
	var req CreateAlbumRequest
	if err := decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	album := domain.NewAlbum(req.Title, req.Artist, h.now())
	if req.IsNew != nil {
		album.IsNew = *req.IsNew
	}
	if _, err := h.station.Albums.Put(r.Context(), album); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, albumView(album))
}

// SetAlbumNewRequest flags or unflags an album as new.
type SetAlbumNewRequest struct {
	IsNew bool `json:"isNew"`
}

// SetAlbumNew handles PUT /api/admin/albums/{key}/new.
func (h *Handler) SetAlbumNew(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r, "key", domain.KindAlbum)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	var req SetAlbumNewRequest
	if err := decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	album, err := h.station.Albums.SetNew(r.Context(), key, req.IsNew)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, albumView(album))
}

// CreateSongRequest describes a new song, optionally on an album.
type CreateSongRequest struct {
	Title  string `json:"title" validate:"required,max=300"`
	Artist string `json:"artist" validate:"required,max=300"`
	Album  string `json:"album,omitempty"`
}

// CreateSong handles POST /api/admin/songs.
func (h *Handler) CreateSong(w http.ResponseWriter, r *http.Request) {
	var req CreateSongRequest
	if err := decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	var album *persistence.Key
	if req.Album != "" {
		keys, err := parseKeys([]string{req.Album}, domain.KindAlbum)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		album = &keys[0]
	}
	song := domain.NewSong(req.Title, req.Artist, album)
	if _, err := h.station.Songs.Put(r.Context(), song); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, songView(song))
}

// CreatePostRequest describes a new blog post.
type CreatePostRequest struct {
	Title string `json:"title" validate:"required,max=300"`
	Slug  string `json:"slug,omitempty"`
	Body  string `json:"body"`
}

// CreatePost handles POST /api/admin/posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if err := decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	post := domain.NewBlogPost(req.Title, req.Body, h.now())
	post.Slug = req.Slug
	if _, err := h.station.Posts.Put(r.Context(), post); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, postView(post))
}

// CreateEventRequest describes a calendar event.
type CreateEventRequest struct {
	Title     string    `json:"title" validate:"required,max=300"`
	Desc      string    `json:"desc"`
	EventDate time.Time `json:"eventDate" validate:"required"`
}

// CreateEvent handles POST /api/admin/events.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	event := domain.NewEvent(req.Title, req.Desc, req.EventDate)
	if _, err := h.station.Events.Put(r.Context(), event); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, eventView(event))
}

// CreateDjRequest describes a new DJ.
type CreateDjRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,max=64"`
}

// CreateDj handles POST /api/admin/djs.
func (h *Handler) CreateDj(w http.ResponseWriter, r *http.Request) {
	var req CreateDjRequest
	if err := decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	dj := domain.NewDj(req.Name, req.Email, req.Username)
	if _, err := h.station.Djs.Put(r.Context(), dj); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, djView(dj))
}

// CreateProgramRequest describes a new program and its hosts.
type CreateProgramRequest struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Slug        string   `json:"slug,omitempty"`
	Description string   `json:"description,omitempty"`
	Djs         []string `json:"djs" validate:"max=20"`
}

// CreateProgram handles POST /api/admin/programs. Every host must exist.
func (h *Handler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	var req CreateProgramRequest
	if err := decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	djKeys, err := parseKeys(req.Djs, domain.KindDj)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	for _, k := range djKeys {
		dj, err := h.station.Djs.Get(r.Context(), k)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		if dj == nil {
			api.Error(w, http.StatusNotFound, "dj "+k.Encode()+" not found")
			return
		}
	}
	program := domain.NewProgram(req.Title, djKeys...)
	program.Slug = req.Slug
	program.Description = req.Description
	if _, err := h.station.Programs.Put(r.Context(), program); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, programView(program))
}
