// Package api wires the HTTP surface: library/catalog browsing,
// media querying, watch-progress tracking, HLS streaming, device
// pairing and authentication, and the job event stream. Grounded on
// CineVault's internal/api package - a Handler-per-concern struct
// mounted as its own chi sub-router, assembled by one top-level
// Router().
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/streamvault/streamvault/internal/auth"
	"github.com/streamvault/streamvault/internal/bundlecache"
	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/query"
	"github.com/streamvault/streamvault/internal/thumbnail"
	"github.com/streamvault/streamvault/internal/transcode"
)

// Server holds every dependency the HTTP handlers need. Constructed
// once at startup by cmd/cinevault and handed its Router() to
// net/http.
type Server struct {
	cfg  *config.Config
	db   *sql.DB
	repo *Repository

	authHandler *auth.Handler
	authMW      *auth.Middleware

	queryEngine *query.Engine
	bundles     *bundlecache.Cache
	transcoder  *transcode.Pool
	planner     *transcode.Planner
	cache       *transcode.CacheManager
	thumbnails  *thumbnail.Service

	events  *EventHub
	limiter *ipRateLimiter
	streams *streamJobs
}

// Deps bundles the already-constructed subsystems cmd/cinevault
// assembles before handing them to NewServer, so this constructor's
// signature doesn't grow a parameter every time a new subsystem is
// wired in.
type Deps struct {
	Config     *config.Config
	DB         *sql.DB
	Bundles    *bundlecache.Cache
	Transcoder *transcode.Pool
	Planner    *transcode.Planner
	Cache      *transcode.CacheManager
	Thumbnails *thumbnail.Service
}

func NewServer(d Deps) *Server {
	s := &Server{
		cfg:         d.Config,
		db:          d.DB,
		repo:        NewRepository(d.DB),
		authHandler: auth.NewHandler(d.DB, d.Config.JWTSecret),
		authMW:      auth.NewMiddleware(d.Config.JWTSecret),
		queryEngine: query.NewEngine(d.DB),
		bundles:     d.Bundles,
		transcoder:  d.Transcoder,
		planner:     d.Planner,
		cache:       d.Cache,
		thumbnails:  d.Thumbnails,
		events:      NewEventHub(),
		limiter:     newIPRateLimiter(d.Config.RateLimits),
		streams:     newStreamJobs(),
	}
	if d.Transcoder != nil {
		d.Transcoder.SetProgressFunc(s.publishProgress)
	}
	return s
}

// publishProgress adapts transcode.ProgressFunc into a JobEvent,
// fanned out to every SSE/WS subscriber of that job.
func (s *Server) publishProgress(jobID string, progress float64) {
	s.events.Publish(JobEvent{
		JobID:    jobID,
		Meta:     EventMeta{Timestamp: time.Now()},
		Progress: &ProgressPayload{Fraction: progress},
	})
}

// Router assembles the full API surface under /api/v1.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.limiter.middleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/setup", s.authHandler.SetupRouter())
		r.With(s.authMW.RequireAuth).Post("/setup/claim/confirm", s.authHandler.ClaimConfirmHandler())
		r.Mount("/auth", s.authHandler.Router())

		r.Get("/events/jobs", s.handleJobEvents)
		r.Get("/ws/jobs", s.handleJobEventsWS)

		r.Group(func(r chi.Router) {
			r.Use(s.authMW.RequireAuth)

			r.Get("/libraries", s.handleListLibraries)
			r.Get("/libraries/{libraryID}/media", s.handleLibraryMedia)
			r.Get("/libraries/{libraryID}/series-bundles", s.handleLibrarySeriesBundles)
			r.Post("/libraries/{libraryID}/series-bundles/subset", s.handleLibrarySeriesBundleSubset)

			r.Post("/media/query", s.handleMediaQuery)
			r.Get("/media/{mediaID}/thumbnail", s.handleMediaThumbnail)

			r.Post("/watch/update-progress", s.handleUpdateWatchProgress)
			r.Get("/watch/state", s.handleWatchState)

			r.Get("/stream/{mediaID}/master.m3u8", s.handleMasterPlaylist)
			r.Get("/stream/{mediaID}/variant/{profile}/playlist.m3u8", s.handleVariantPlaylist)
			r.Get("/stream/{mediaID}/variant/{profile}/segment_{seq}.ts", s.handleSegment)
		})
	})

	return r
}

// ListenAndServe starts the HTTP server, honoring the TLS config when
// enabled, matching the banner-and-phased-startup style cmd/cinevault
// logs the rest of its boot sequence in.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Address(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.cfg.TLS.Enabled {
		return srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}
	return srv.ListenAndServe()
}
