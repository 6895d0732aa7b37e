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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/graphnotes/internal/api"
	"github.com/starford/graphnotes/internal/index"
	"github.com/starford/graphnotes/internal/mcpserver"
	"github.com/starford/graphnotes/internal/models"
	"github.com/starford/graphnotes/internal/noteservice"
	"github.com/starford/graphnotes/internal/sse"
	"github.com/starford/graphnotes/internal/storage"
	"github.com/starford/graphnotes/internal/watch"
)

// core holds the components shared by the HTTP and MCP entry points.
type core struct {
	logger   *slog.Logger
	store    *storage.FS
	db       *index.DB
	svc      *noteservice.Service
	registry *prometheus.Registry
}

func (c *core) Close() {
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close index", slog.String("error", err.Error()))
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// open sets up logging, the vault, the index and the note service, then
// builds the graph from the vault.
func (app *application) open(ctx context.Context, onChange func(models.Change)) (*core, error) {
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	if cfg.Vault.InitOnStart && !storage.IsVault(cfg.Vault.Path) {
		if err := storage.InitVault(cfg.Vault.Path); err != nil {
			return nil, fmt.Errorf("init vault: %w", err)
		}
		logger.Info("vault initialised", slog.String("path", cfg.Vault.Path))
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svcOpts := []noteservice.Option{
		noteservice.WithLogger(logger),
		noteservice.WithMetrics(noteservice.NewMetrics(reg)),
		noteservice.WithMaxDepth(cfg.Graph.MaxDepth),
	}
	if onChange != nil {
		svcOpts = append(svcOpts, noteservice.WithChangeHook(onChange))
	}
	svc := noteservice.NewService(store, db, svcOpts...)

	c := &core{logger: logger, store: store, db: db, svc: svc, registry: reg}
	if _, err := svc.Rebuild(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("initial rebuild: %w", err)
	}
	return c, nil
}

// Run starts the HTTP server and the vault watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	broker := sse.NewBroker(cfg.Graph.SSEThrottle)
	defer broker.Close()

	c, err := app.open(ctx, broker.PublishChange)
	if err != nil {
		return err
	}
	defer c.Close()
	logger := c.logger

	apiRouter := api.NewRouter(c.svc, api.Options{
		AuthEnabled:  cfg.Auth.AuthEnabled(),
		Token:        cfg.Auth.Token,
		Events:       broker,
		Logger:       logger,
		DefaultDepth: cfg.Graph.DefaultDepth,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	}

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Vault changes flow into the graph and, through the change hook, to SSE.
	g.Go(func() error {
		return watch.New(cfg.Vault.Path, c.store, c.svc, logger).Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdio while the watcher keeps the graph
// current.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	c, err := app.open(ctx, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watch.New(app.config.Vault.Path, c.store, c.svc, c.logger).Run(gCtx)
	})
	g.Go(func() error {
		defer cancel()
		return mcpserver.New(c.svc, app.version).ServeStdio()
	})
	return g.Wait()
}

// InitVault creates the vault metadata under dir.
func InitVault(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}
	return storage.InitVault(dir)
}
