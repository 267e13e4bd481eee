package server

import (
	"context"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/streamie/streamie/internal/auth"
	"github.com/streamie/streamie/internal/catalog"
	"github.com/streamie/streamie/internal/database"
	"github.com/streamie/streamie/internal/geoip"
	"github.com/streamie/streamie/internal/httputil"
	"github.com/streamie/streamie/internal/library"
	"github.com/streamie/streamie/internal/playback"
	"github.com/streamie/streamie/internal/ratelimit"
	"github.com/streamie/streamie/internal/recent"
	"github.com/streamie/streamie/internal/validate"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	DB              database.DBTX
	Pinger          Pinger
	SessionSecret   string
	SessionCacheTTL time.Duration
	BaseURL         string
	SecureCookies   bool
	OAuth           *oauth2.Config
	UserInfoURL     string

	Catalog           *catalog.Client
	Recent            *recent.Cache
	Geo               *geoip.Resolver
	PlayerURLTemplate string

	WebFS   fs.FS
	Metrics bool
}

type Server struct {
	router          chi.Router
	pinger          Pinger
	gate            *auth.Gate
	authHandler     *auth.Handler
	catalogHandler  *catalog.Handler
	recentHandler   *recent.Handler
	libraryHandler  *library.Handler
	playbackHandler *playback.Handler
	limiters        []*ratelimit.Limiter
	webFS           fs.FS
	metrics         bool
}

func New(cfg Config) *Server {
	secureCookies := cfg.SecureCookies

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:           cfg.BaseURL,
		PlayerURLTemplate: cfg.PlayerURLTemplate,
	}))
	r.Use(auth.VisitorMiddleware(secureCookies))

	s := &Server{router: r, pinger: cfg.Pinger, webFS: cfg.WebFS, metrics: cfg.Metrics}

	recents := cfg.Recent
	if recents == nil {
		recents = recent.NewCache(recent.NewMemoryStore())
	}
	s.recentHandler = recent.NewHandler(recents)
	s.playbackHandler = playback.NewHandler(cfg.PlayerURLTemplate)
	s.playbackHandler.SetRecentCache(recents)

	if cfg.Catalog != nil {
		s.catalogHandler = catalog.NewHandler(cfg.Catalog)
	}

	if cfg.DB != nil {
		ttl := cfg.SessionCacheTTL
		if ttl <= 0 {
			ttl = auth.DefaultCacheTTL
		}
		s.gate = auth.NewGate(cfg.DB, cfg.SessionSecret, ttl)
		s.authHandler = auth.NewHandler(cfg.DB, s.gate, cfg.OAuth, cfg.SessionSecret, secureCookies)
		if cfg.UserInfoURL != "" {
			s.authHandler.SetUserInfoURL(cfg.UserInfoURL)
		}

		recorder := library.NewRecorder(cfg.DB, cfg.Geo)
		s.libraryHandler = library.NewHandler(cfg.DB, recorder)
		s.recentHandler.SetActivityRecorder(recorder)
		s.playbackHandler.SetActivityRecorder(recorder)
		if s.catalogHandler != nil {
			s.catalogHandler.SetActivityRecorder(recorder)
		}
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RunJanitors sweeps rate limiter visitors and cached sessions until ctx is done.
func (s *Server) RunJanitors(ctx context.Context) {
	var wg sync.WaitGroup
	for _, l := range s.limiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Run(ctx)
		}()
	}
	if s.gate != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.gate.Run(ctx)
		}()
	}
	wg.Wait()
}

func (s *Server) newLimiter(rps float64, burst int) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(rps, burst)
	s.limiters = append(s.limiters, l)
	return l
}

// optional attaches the session when one is present.
func (s *Server) optional(next http.Handler) http.Handler {
	if s.gate == nil {
		return next
	}
	return s.gate.Optional(next)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/limits", s.handleLimits)
	if s.metrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	if s.authHandler != nil {
		authLimiter := s.newLimiter(0.5, 10)
		s.router.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Get("/auth/google", s.authHandler.GoogleLogin)
			r.Get("/auth/google/callback", s.authHandler.GoogleCallback)
			r.Post("/refresh-session", s.authHandler.RefreshSession)
		})
		s.router.Group(func(r chi.Router) {
			r.Use(s.gate.Optional)
			r.Get("/check-auth", s.authHandler.CheckAuth)
			r.Get("/logout", s.authHandler.Logout)
		})
		s.router.With(s.gate.Require).Get("/ping-session", s.authHandler.PingSession)
	} else {
		s.router.Get("/check-auth", handleAnonymousCheck)
	}

	s.router.Route("/api/recent", func(r chi.Router) {
		r.Use(s.optional)
		r.Get("/", s.recentHandler.List)
		r.Post("/", s.recentHandler.Touch)
		r.Delete("/", s.recentHandler.Clear)
	})

	s.router.With(s.optional).Get("/api/play/{kind}/{id}", s.playbackHandler.Play)

	if s.catalogHandler != nil {
		catalogLimiter := s.newLimiter(5, 20)
		s.router.Route("/api/catalog", func(r chi.Router) {
			r.Use(catalogLimiter.Middleware)
			r.Use(s.optional)
			r.Get("/discover/{kind}", s.catalogHandler.Discover)
			r.Get("/search", s.catalogHandler.Search)
			r.Get("/genres/{kind}", s.catalogHandler.Genres)
			r.Get("/languages", s.catalogHandler.Languages)
			if s.gate != nil {
				r.With(s.gate.Require).Get("/recommendations/{kind}/{id}", s.catalogHandler.Recommendations)
			}
		})
	}

	if s.libraryHandler != nil {
		s.router.Group(func(r chi.Router) {
			r.Use(s.gate.Require)
			r.Get("/api/movies", s.libraryHandler.ListMovies)
			r.Post("/api/movies", s.libraryHandler.SaveMovie)
			r.Delete("/api/movies/{id}", s.libraryHandler.DeleteMovie)
			r.Post("/track-activity", s.libraryHandler.TrackActivity)
			r.Get("/api/activity", s.libraryHandler.ListActivity)
		})
	}

	if s.webFS != nil {
		spa := newSPAFileServer(s.webFS)
		s.router.NotFound(spa.ServeHTTP)
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Error: "database unreachable"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, validate.FieldLimits())
}

func handleAnonymousCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"isAuthenticated": false})
}
