// Talent manual assessment server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/talent-manual/internal/api"
	"github.com/ashureev/talent-manual/internal/backend"
	"github.com/ashureev/talent-manual/internal/config"
	"github.com/ashureev/talent-manual/internal/conversation"
	"github.com/ashureev/talent-manual/internal/debugprobe"
	"github.com/ashureev/talent-manual/internal/identity"
	"github.com/ashureev/talent-manual/internal/middleware"
	"github.com/ashureev/talent-manual/internal/store"
	"github.com/ashureev/talent-manual/internal/stream"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout       = 10 * time.Second
	reportCleanupInterval = time.Hour
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.Backend.URL)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return err
	}
	slog.Info("Database connected")

	client, err := backend.NewClient(backend.Config{BaseURL: cfg.Backend.URL, Timeout: cfg.Backend.Timeout}, logger)
	if err != nil {
		return err
	}

	hub := stream.NewHub(logger)
	registry := conversation.NewRegistry(func(key conversation.Key) *conversation.Entry {
		keyLogger := logger.With("client_key", key.String())
		return &conversation.Entry{
			Controller: conversation.New(client,
				conversation.WithObserver(conversation.ObserverFunc(func(s conversation.Snapshot) {
					hub.Publish(key.ClientID, key.SessionID, s)
				})),
				conversation.WithArchive(repo),
				conversation.WithOwner(key.ClientID, key.SessionID),
				conversation.WithPacing(cfg.Session.PaceSuccess, cfg.Session.PaceFailure),
				conversation.WithTimeout(cfg.Backend.Timeout),
				conversation.WithLogger(keyLogger),
			),
			Probe: debugprobe.New(client, cfg.Backend.Timeout, keyLogger),
		}
	}, logger)

	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	assessmentHandler := api.NewAssessmentHandler(registry, limiter, logger)
	debugHandler := api.NewDebugHandler(registry)
	reportHandler := api.NewReportHandler(repo)
	healthHandler := api.NewHealthHandler(repo, registry)
	wsHandler := stream.NewHandler(hub, func(clientID, sessionID string) any {
		return registry.Get(conversation.Key{ClientID: clientID, SessionID: sessionID}).Controller.Snapshot()
	}, cfg.CORSOrigins, cfg.IsDevelopment(), logger)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.CORSOrigins, identity.SessionHeaderName))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	assessmentHandler.RegisterRoutes(r)
	reportHandler.RegisterRoutes(r)
	debugHandler.RegisterRoutes(r)
	r.Get("/ws/progress", wsHandler.ServeHTTP)

	// Report generation can take most of BACKEND_TIMEOUT, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry.StartSweeper(ctx, cfg.Session.SweepInterval, cfg.Session.TTL, func(key conversation.Key) {
		hub.CloseClient(key.ClientID, key.SessionID)
	})
	limiter.StartEviction(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		cleanupReports(gctx, repo, cfg.Session.ReportRetention)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped")
	return nil
}

// cleanupReports prunes archived reports past retention until ctx is done.
func cleanupReports(ctx context.Context, repo store.Repository, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(reportCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := repo.CleanupReports(ctx, retention)
			if err != nil {
				slog.Error("Failed to clean up archived reports", "error", err)
				continue
			}
			if deleted > 0 {
				slog.Info("Cleaned up archived reports", "count", deleted)
			}
		case <-ctx.Done():
			return
		}
	}
}
