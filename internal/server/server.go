// Package server provides the admin HTTP listener: health, Prometheus metrics,
// the worker pool state and a read-only view of the request ledger.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
	"git.home.luguber.info/inful/texbot/internal/eventstore"
	"git.home.luguber.info/inful/texbot/internal/logfields"
	"git.home.luguber.info/inful/texbot/internal/metrics"
	"git.home.luguber.info/inful/texbot/internal/queue"
)

// QueueStatus is the part of the worker pool the admin endpoints report.
type QueueStatus interface {
	Length() int
	ActiveCount() int
	GetActiveJobs() []queue.Job
	History() []queue.Job
	JobSnapshot(id string) (queue.Job, bool)
}

// Deps are the components the admin endpoints read from. Ledger and Queue may be nil.
type Deps struct {
	Queue    QueueStatus
	Ledger   eventstore.Store
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Server represents the admin HTTP server.
type Server struct {
	Addr    string
	router  *chi.Mux
	server  *http.Server
	deps    Deps
	errs    *tberrors.HTTPErrorAdapter
	started time.Time
}

// New creates a Server listening on addr.
func New(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		Addr:    addr,
		router:  chi.NewRouter(),
		deps:    deps,
		errs:    tberrors.NewHTTPErrorAdapter(deps.Logger),
		started: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(10 * time.Second))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.HTTPHandler(s.deps.Registry))

	s.router.Route("/api/queue", func(r chi.Router) {
		r.Get("/", s.handleQueue)
		r.Get("/{id}", s.handleQueueJob)
	})
	s.router.Route("/api/requests", func(r chi.Router) {
		r.Get("/", s.handleListRequests)
		r.Get("/{id}", s.handleGetRequest)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.deps.Logger.Info("Admin server listening", slog.String("addr", s.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// logRequests logs method, path, status and duration of every admin request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.deps.Logger.Debug("HTTP request",
			slog.String("method", r.Method),
			logfields.Path(r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", r.RemoteAddr))
	})
}
