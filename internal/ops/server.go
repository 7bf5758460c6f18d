package ops

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CheckFunc reports whether one dependency is usable.
type CheckFunc func(ctx context.Context) error

// Server exposes health, readiness, status, and metrics HTTP endpoints.
type Server struct {
	httpServer *http.Server
	checks     map[string]CheckFunc
	tracker    *Tracker
	logger     *slog.Logger
}

// Options configure a Server.
type Options struct {
	Addr string
	// Checks are run by /readyz; every one must pass.
	Checks  map[string]CheckFunc
	Tracker *Tracker
	// Gatherer defaults to the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

// NewServer creates the ops server with /healthz, /readyz, /status and
// /metrics routes.
func NewServer(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Tracker == nil {
		opts.Tracker = NewTracker()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		checks:  opts.Checks,
		tracker: opts.Tracker,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept"},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("ops server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"}) //nolint:errcheck // best-effort health response
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := readiness{Status: "ready", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	WriteJSON(w, status, resp) //nolint:errcheck // best-effort health response
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, s.tracker.Snapshot()) //nolint:errcheck // logged by WriteJSON
}
