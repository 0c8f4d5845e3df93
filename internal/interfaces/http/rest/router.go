// Package rest assembles the station's HTTP surface.
package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/observability"
	"github.com/hchapman/WBOR-sub000/internal/interfaces/http/rest/handlers"
	"github.com/hchapman/WBOR-sub000/internal/interfaces/http/rest/middleware"
	"github.com/hchapman/WBOR-sub000/internal/service/station"
)

// Options tunes the router. Zero values disable the optional pieces.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// MetricsPath serves the collector's registry when Metrics is set.
	MetricsPath string
	// TracingService names the tracer; empty disables request spans.
	TracingService string
	Now            func() time.Time
}

// Router creates and configures the HTTP router.
type Router struct {
	station *station.Station
	metrics *observability.Collector
	logger  *zap.Logger
	opts    Options
}

// NewRouter creates a new router instance.
func NewRouter(st *station.Station, metrics *observability.Collector, logger *zap.Logger, opts Options) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{station: st, metrics: metrics, logger: logger, opts: opts}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Recovery(rt.logger))
	if rt.opts.TracingService != "" {
		router.Use(middleware.Tracing(rt.opts.TracingService))
	}
	if rt.metrics != nil {
		router.Use(middleware.Metrics(rt.metrics))
	}
	router.Use(middleware.Logger(rt.logger))
	if rt.opts.RequestTimeout > 0 {
		router.Use(chimiddleware.Timeout(rt.opts.RequestTimeout))
	}

	origins := rt.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	h := handlers.NewHandler(rt.station, rt.logger, rt.opts.Now)

	router.Get("/health", h.Health)
	if rt.metrics != nil && rt.opts.MetricsPath != "" {
		router.Method(http.MethodGet, rt.opts.MetricsPath,
			promhttp.HandlerFor(rt.metrics.GetRegistry(), promhttp.HandlerOpts{}))
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/now-playing", h.NowPlaying)
		r.Get("/plays", h.RecentPlays)
		r.Route("/programs/{slug}", func(r chi.Router) {
			r.Get("/plays", h.ProgramPlays)
			r.Get("/top-artists", h.ProgramTopArtists)
		})
		r.Route("/charts", func(r chi.Router) {
			r.Get("/albums", h.TopAlbums)
			r.Get("/songs", h.TopSongs)
		})
		r.Get("/albums/new", h.NewAlbums)
		r.Get("/posts", h.RecentPosts)
		r.Get("/posts/{slug}", h.GetPost)
		r.Get("/events/upcoming", h.UpcomingEvents)
		r.Get("/autocomplete/{target}", h.Autocomplete)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/programs", h.CreateProgram)
			r.Post("/programs/{slug}/plays", h.ChartPlay)
			r.Delete("/plays/*", h.DeletePlay)
			r.Post("/albums", h.CreateAlbum)
			r.Put("/albums/{key}/new", h.SetAlbumNew)
			r.Post("/songs", h.CreateSong)
			r.Post("/posts", h.CreatePost)
			r.Post("/events", h.CreateEvent)
			r.Post("/djs", h.CreateDj)
		})
	})

	return router
}
