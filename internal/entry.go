// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/pagegraph/internal/api"
	"github.com/starford/pagegraph/internal/graphservice"
	"github.com/starford/pagegraph/internal/index"
	"github.com/starford/pagegraph/internal/mcpserver"
	"github.com/starford/pagegraph/internal/sse"
	"github.com/starford/pagegraph/internal/storage"
	"github.com/starford/pagegraph/internal/watcher"
)

var errConfigRequired = errors.New("config is required")

// Run starts the HTTP server with the given options. It loads the graph,
// mirrors it into SQLite, watches the root for changes and serves the query
// API until a shutdown signal arrives or ctx is cancelled.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.logger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("graph_root", cfg.Graph.Root),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("publish_only_public", cfg.Graph.PublishOnlyPublic),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc, store, err := app.loadGraph(ctx, logger,
		graphservice.WithPersister(db),
		graphservice.WithPublisher(broker))
	if err != nil {
		return err
	}

	apiRouter := api.NewRouter(svc, db, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := db.Counts(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher; the service turns events into graph deltas.
	g.Go(func() error {
		if err := watcher.Watch(gCtx, store.Root(), svc, logger); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the graph tools over stdio until stdin closes. Logs go to
// the configured output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger()

	db, err := index.Open(app.config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	svc, store, err := app.loadGraph(ctx, logger, graphservice.WithPersister(db))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := watcher.Watch(gCtx, store.Root(), svc, logger); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return mcpserver.New(svc, db, app.version).ServeStdio()
	})
	return g.Wait()
}

// LoadGraph parses the configured root once and returns the service, for
// one-shot commands that do not serve anything.
func LoadGraph(ctx context.Context, opts ...Option) (*graphservice.Service, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	svc, _, err := app.loadGraph(ctx, app.logger())
	return svc, err
}

func (a *application) loadGraph(ctx context.Context, logger *slog.Logger, options ...graphservice.Option) (*graphservice.Service, *storage.FS, error) {
	store, err := storage.NewFS(a.config.Graph.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	svc := graphservice.NewService(store, a.config.ServiceOptions(), logger, options...)
	if err := svc.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("load graph: %w", err)
	}
	return svc, store, nil
}
