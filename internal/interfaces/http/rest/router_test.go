package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/cache"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/events"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/observability"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence/memory"
	"github.com/hchapman/WBOR-sub000/internal/interfaces/http/rest/handlers"
	"github.com/hchapman/WBOR-sub000/internal/repository"
	"github.com/hchapman/WBOR-sub000/internal/service/station"
	"github.com/hchapman/WBOR-sub000/pkg/api"
)

type testServer struct {
	handler http.Handler
	metrics *observability.Collector
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	now := func() time.Time { return time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC) }
	metrics := observability.NewCollector("test")
	deps := repository.Deps{
		Store:   memory.NewStore(),
		Cache:   cache.NewMemoryCache(10000, 1<<26, nil),
		Logger:  zap.NewNop(),
		Metrics: metrics,
		Now:     now,
	}
	st := station.New(deps, station.DefaultSettings(), events.NoopPublisher{})
	router := NewRouter(st, metrics, zap.NewNop(), Options{MetricsPath: "/metrics", Now: now})
	return &testServer{handler: router.Setup(), metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestChartingFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "POST", "/api/admin/djs", handlers.CreateDjRequest{Name: "Harriet", Email: "harriet@example.com", Username: "harriet"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	dj := decodeBody[handlers.DjView](t, w)

	w = s.do(t, "POST", "/api/admin/programs", handlers.CreateProgramRequest{Title: "Morning Jams", Djs: []string{dj.Key}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	program := decodeBody[handlers.ProgramView](t, w)
	assert.Equal(t, "morning-jams", program.Slug)

	w = s.do(t, "POST", "/api/admin/albums", handlers.CreateAlbumRequest{Title: "Odelay", Artist: "Beck"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	album := decodeBody[handlers.AlbumView](t, w)
	assert.True(t, album.IsNew)

	w = s.do(t, "POST", "/api/admin/songs", handlers.CreateSongRequest{Title: "Devils Haircut", Artist: "Beck", Album: album.Key})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	song := decodeBody[handlers.SongView](t, w)

	w = s.do(t, "POST", "/api/admin/programs/morning-jams/plays", handlers.ChartPlayRequest{Song: song.Key})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	play := decodeBody[handlers.PlayView](t, w)
	assert.Equal(t, program.Key, play.Program)
	assert.Equal(t, album.Key, play.Album)

	t.Run("Now playing", func(t *testing.T) {
		w := s.do(t, "GET", "/api/now-playing", nil)
		require.Equal(t, http.StatusOK, w.Code)
		np := decodeBody[handlers.NowPlayingView](t, w)
		assert.Equal(t, play.Key, np.Play.Key)
		require.NotNil(t, np.Song)
		assert.Equal(t, "Devils Haircut", np.Song.Title)
	})

	t.Run("Recent plays", func(t *testing.T) {
		for _, path := range []string{"/api/plays?limit=5", "/api/programs/morning-jams/plays"} {
			w := s.do(t, "GET", path, nil)
			require.Equal(t, http.StatusOK, w.Code, path)
			list := decodeBody[api.ListResponse[handlers.PlayView]](t, w)
			require.Equal(t, 1, list.Count, path)
			assert.Equal(t, play.Key, list.Items[0].Key)
		}
	})

	t.Run("Charts", func(t *testing.T) {
		w := s.do(t, "GET", "/api/charts/albums", nil)
		require.Equal(t, http.StatusOK, w.Code)
		albums := decodeBody[api.ListResponse[handlers.ChartRow[handlers.AlbumView]]](t, w)
		require.Len(t, albums.Items, 1)
		assert.Equal(t, "Odelay", albums.Items[0].Item.Title)
		assert.EqualValues(t, 1, albums.Items[0].Count)

		w = s.do(t, "GET", "/api/programs/morning-jams/top-artists", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"Beck"`)
	})

	t.Run("Autocomplete", func(t *testing.T) {
		w := s.do(t, "GET", "/api/autocomplete/artists?q=be", nil)
		require.Equal(t, http.StatusOK, w.Code)
		artists := decodeBody[api.ListResponse[handlers.ArtistView]](t, w)
		require.Len(t, artists.Items, 1)
		assert.Equal(t, "Beck", artists.Items[0].Name)

		w = s.do(t, "GET", "/api/autocomplete/djs?q=har", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "harriet")

		assert.Equal(t, http.StatusBadRequest, s.do(t, "GET", "/api/autocomplete/djs", nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, "GET", "/api/autocomplete/venues?q=x", nil).Code)
	})

	t.Run("Delete play", func(t *testing.T) {
		w := s.do(t, "DELETE", "/api/admin/plays/"+play.Key, nil)
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

		w = s.do(t, "GET", "/api/now-playing", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = s.do(t, "GET", "/api/charts/songs", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, decodeBody[api.ListResponse[handlers.ChartRow[handlers.SongView]]](t, w).Count)
	})

	t.Run("New albums", func(t *testing.T) {
		w := s.do(t, "PUT", "/api/admin/albums/"+album.Key+"/new", handlers.SetAlbumNewRequest{IsNew: false})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(t, "GET", "/api/albums/new", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, decodeBody[api.ListResponse[handlers.AlbumView]](t, w).Count)
	})
}

func TestPostsAndEventsRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "POST", "/api/admin/posts", handlers.CreatePostRequest{Title: "Fall Schedule", Body: "New shows."})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, "GET", "/api/posts/fall-schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Fall Schedule", decodeBody[handlers.PostView](t, w).Title)

	w = s.do(t, "GET", "/api/posts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeBody[api.ListResponse[handlers.PostView]](t, w).Count)

	eventDate := time.Date(2024, 3, 20, 20, 0, 0, 0, time.UTC)
	w = s.do(t, "POST", "/api/admin/events", handlers.CreateEventRequest{Title: "Battle of the Bands", EventDate: eventDate})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, "GET", "/api/events/upcoming", nil)
	require.Equal(t, http.StatusOK, w.Code)
	upcoming := decodeBody[api.ListResponse[handlers.EventView]](t, w)
	require.Len(t, upcoming.Items, 1)
	assert.True(t, eventDate.Equal(upcoming.Items[0].EventDate))
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown post", "GET", "/api/posts/missing", nil, http.StatusNotFound},
		{"unknown program", "GET", "/api/programs/missing/plays", nil, http.StatusNotFound},
		{"bad limit", "GET", "/api/plays?limit=zero", nil, http.StatusBadRequest},
		{"invalid dj", "POST", "/api/admin/djs", handlers.CreateDjRequest{Name: "X", Email: "not-an-email", Username: "x"}, http.StatusBadRequest},
		{"malformed body", "POST", "/api/admin/posts", "{", http.StatusBadRequest},
		{"wrong key kind", "PUT", "/api/admin/albums/Song:abc/new", handlers.SetAlbumNewRequest{}, http.StatusBadRequest},
		{"unknown album", "PUT", "/api/admin/albums/Album:abc/new", handlers.SetAlbumNewRequest{}, http.StatusNotFound},
		{"unknown dj host", "POST", "/api/admin/programs", handlers.CreateProgramRequest{Title: "Late Show", Djs: []string{"Dj:nobody"}}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, "GET", "/health", nil)

	w := s.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="GET",route="/health",status="2xx"} 1`)
}
