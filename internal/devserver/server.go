// Package devserver implements a mock LumiScan backend over in-memory
// repositories so the client core can be exercised end-to-end without the
// production service. Not hardened; local development and integration tests
// only.
package devserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
)

// Config holds configuration for the dev server.
type Config struct {
	// Logger for request logging.
	Logger zerolog.Logger

	// SigningKey signs dev access tokens.
	SigningKey string

	// ScanLimit is the per-day scan cap. Default: 10.
	ScanLimit int

	// Repo is the backing store. A fresh one is created when nil.
	Repo *Repository
}

// Server is the dev backend.
type Server struct {
	logger     zerolog.Logger
	signingKey []byte
	scanLimit  int
	repo       *Repository
}

// New creates a dev server.
func New(cfg Config) *Server {
	if cfg.ScanLimit == 0 {
		cfg.ScanLimit = defaultScanLimit
	}
	if cfg.Repo == nil {
		cfg.Repo = NewRepository()
	}
	return &Server{
		logger:     cfg.Logger,
		signingKey: []byte(cfg.SigningKey),
		scanLimit:  cfg.ScanLimit,
		repo:       cfg.Repo,
	}
}

// Router builds the chi router exposing the backend REST surface.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestLogger(s.logger))
	r.Use(recovery(s.logger))
	r.Use(chimiddleware.RealIP)

	auth := requireAuth(s.signingKey)

	r.Route("/auth", func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Post("/signup", s.handleSignup)
		r.Post("/token", s.handleToken)
		r.With(auth).Post("/sync-profile", s.handleSyncProfile)
	})

	r.Route("/scans", func(r chi.Router) {
		r.Use(auth)
		r.Use(httprate.LimitByIP(60, time.Minute))
		r.Get("/status", s.handleScanStatus)
		r.Post("/image", s.handleScanImage)
		r.Get("/history", s.handleScanHistory)
		r.Delete("/reset", s.handleScanReset)
	})

	r.Route("/analysis", func(r chi.Router) {
		r.Use(auth)
		r.Get("/daily", s.handleDailyAnalysis)
		r.Get("/weekly", s.handleWeeklyAnalysis)
	})

	r.Route("/plans", func(r chi.Router) {
		r.Use(auth)
		r.Get("/today", s.handleTodayPlan)
		r.Get("/weekly/current", s.handleWeeklyPlanCurrent)
		r.Post("/weekly/generate", s.handleWeeklyPlanGenerate)
	})

	r.Route("/profile", func(r chi.Router) {
		r.Use(auth)
		r.Get("/", s.handleGetProfile)
		r.Post("/", s.handleUpsertProfile)
		r.Delete("/reset", s.handleProfileReset)
	})

	return r
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// requestLogger logs each request after it completes.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.status).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}

// recovery converts panics into 500 responses instead of dropped
// connections.
func recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
					writeDetail(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
