// Package app wires the formsync components together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nordmail/formsync/internal/api"
	"github.com/nordmail/formsync/internal/config"
	"github.com/nordmail/formsync/internal/mailer"
	"github.com/nordmail/formsync/internal/metrics"
	"github.com/nordmail/formsync/internal/reconcile"
	"github.com/nordmail/formsync/internal/sitecache"
)

// App is the main application
type App struct {
	config        *config.Config
	conn          *mailer.Connection
	cache         *sitecache.Cache
	reconciler    *reconcile.Reconciler
	apiServer     *api.Server
	metricsServer *metrics.Server
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	if cfg.Metrics.Enabled {
		metrics.SetGlobal(metrics.New())
	}

	rest := mailer.NewRest(mailer.Credentials{
		UserID:     cfg.Mailer.UserID,
		SecretKey:  cfg.Mailer.SecretKey,
		Realm:      cfg.Mailer.Realm,
		BaseURL:    cfg.Mailer.BaseURL,
		APIVersion: cfg.Mailer.APIVersion,
	})
	rest.SetTimeout(cfg.Mailer.Timeout)

	conn := mailer.NewConnection(rest, logger.With("component", "mailer"))

	cache, err := sitecache.New(conn, cfg.Cache.TTL, cfg.Cache.Path, logger.With("component", "sitecache"))
	if err != nil {
		return nil, fmt.Errorf("failed to create site cache: %w", err)
	}

	reconciler := reconcile.New(reconcile.Options{
		Customer:  conn,
		Snapshots: cache,
		Sessions: func(sourceURL string) reconcile.Session {
			return conn.NewSession(sourceURL)
		},
		Logger: logger.With("component", "reconciler"),
	})

	apiServer := api.NewServer(cfg, reconciler, conn, cache, logger.With("component", "api"))

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			metrics.Global(),
			cfg.Metrics.ListenAddr,
			cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs,
			logger.With("component", "metrics"),
		)
	}

	return &App{
		config:        cfg,
		conn:          conn,
		cache:         cache,
		reconciler:    reconciler,
		apiServer:     apiServer,
		metricsServer: metricsServer,
		logger:        logger,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting formsync",
		"api_addr", a.config.Server.ListenAddr,
		"forms", len(a.config.Forms),
		"mailer_url", a.config.Mailer.BaseURL,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := a.cache.Close(); err != nil {
		a.logger.Error("cache close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
