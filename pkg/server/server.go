// Package server exposes the decision engine over a JSON REST API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VerdantProject/verdant/pkg/engine"
)

// Server is the Verdant REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	engine    *engine.Engine
	gatherer  prometheus.Gatherer
	startTime time.Time
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithMetricsGatherer sets the registry served at /metrics.
func WithMetricsGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a Server with all routes registered.
func New(eng *engine.Engine, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		engine:    eng,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/rank", s.handleRank)
		r.Post("/schedule", s.handleSchedule)
		r.Post("/measurements", s.handleMeasurement)

		r.Route("/regions", func(r chi.Router) {
			r.Get("/", s.handleListRegions)
			r.Get("/{code}/intensity", s.handleRegionIntensity)
		})

		r.Route("/workloads/{branch}/{workload}", func(r chi.Router) {
			r.Get("/baseline", s.handleBaseline)
			r.Get("/measurements", s.handleListMeasurements)
		})
	})
}
