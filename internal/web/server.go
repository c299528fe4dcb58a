// Package web exposes the inventory ETL over a JSON HTTP API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/parque/internal/config"
	"github.com/JonMunkholm/parque/internal/core"
	"github.com/JonMunkholm/parque/internal/logging"
	"github.com/JonMunkholm/parque/internal/metrics"
	"github.com/JonMunkholm/parque/internal/web/middleware"
)

// Options configures a Server. Zero fields take defaults; a nil Metrics
// disables /metrics and request instrumentation.
type Options struct {
	MaxUploadSize  int64
	RequestTimeout time.Duration
	TrustedProxies []string
	RateLimit      config.RateLimitConfig
	Metrics        *metrics.Registry
	Logger         *slog.Logger

	// Ready reports whether backing services are reachable; /healthz
	// answers 503 while it fails.
	Ready func(ctx context.Context) error
}

// multipartOverhead is allowed on top of MaxUploadSize for form fields and
// boundaries.
const multipartOverhead = 1 << 20

// Server is the HTTP front of a core.Service.
type Server struct {
	service *core.Service
	opts    Options
	log     *slog.Logger
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server with routes and middleware in place.
func NewServer(service *core.Service, opts Options) *Server {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = service.Config().MaxFileSize
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		service: service,
		opts:    opts,
		log:     opts.Logger,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.opts.TrustedProxies))
	if s.opts.Metrics != nil {
		s.router.Use(middleware.Logger(s.opts.Metrics))
	} else {
		s.router.Use(middleware.Logger(nil))
	}
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		if s.opts.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiter(s.opts.RateLimit.RequestsPerMinute, s.opts.RateLimit.Burst).Middleware)
		}

		// Progress streams outlive the request timeout.
		r.Get("/jobs/{jobID}/events", s.handleJobEvents)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.opts.RequestTimeout))

			r.Group(func(r chi.Router) {
				if s.opts.RateLimit.Enabled {
					r.Use(middleware.NewRateLimiter(s.opts.RateLimit.UploadLimit, s.opts.RateLimit.UploadLimit).Middleware)
				}
				r.Post("/jobs", s.handleCreateJob)
			})

			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/{jobID}", s.handleJobStatus)
			r.Post("/jobs/{jobID}/cancel", s.handleCancelJob)
			r.Get("/jobs/{jobID}/records", s.handleJobRecords)
			r.Get("/jobs/{jobID}/mapping", s.handleJobMapping)
			r.Get("/jobs/{jobID}/stats", s.handleJobStats)
			r.Get("/jobs/{jobID}/report", s.handleJobReport)
			r.Get("/jobs/{jobID}/validation", s.handleJobValidation)

			r.Get("/errors", s.handleListErrors)
			r.Get("/errors/summary", s.handleErrorSummary)
			r.Post("/errors/{errorID}/resolve", s.handleResolveError)

			r.Get("/rules", s.handleListRules)
		})
	})
}

// Start listens on cfg.Addr until Shutdown.
func (s *Server) Start(cfg config.ServerConfig) error {
	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	s.log.Info("http server listening", "addr", cfg.Addr())
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v with the given status. Encoding errors are only
// logged since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode failed", "error", err)
	}
}
