package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nordmail/formsync/internal/config"
	"github.com/nordmail/formsync/internal/form"
	"github.com/nordmail/formsync/internal/mailer"
)

// Reconciler runs one subscription reconciliation per submission.
// *reconcile.Reconciler satisfies it.
type Reconciler interface {
	Run(ctx context.Context, f *form.Form, entry form.Entry, sourceURL string) error
}

// Connection is the mailer status surface. *mailer.Connection satisfies it.
type Connection interface {
	Status(ctx context.Context) bool
}

// Snapshots resolves site snapshots for the settings-data endpoint.
// *sitecache.Cache satisfies it.
type Snapshots interface {
	Snapshot(ctx context.Context, domain string) *mailer.Site
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *config.Config
	reconciler Reconciler
	conn       Connection
	snapshots  Snapshots
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, rec Reconciler, conn Connection, snapshots Snapshots, logger *slog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		config:     cfg,
		reconciler: rec,
		conn:       conn,
		snapshots:  snapshots,
		logger:     logger,
		startTime:  time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/forms/{formID}/submissions", s.handleSubmission)
		r.Get("/sites/{domain}", s.handleSiteData)
		r.Get("/status", s.handleStatus)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
