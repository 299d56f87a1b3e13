// Package main is the entrypoint for the livewatch server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/livewatch/internal/api"
	"github.com/kiranshivaraju/livewatch/internal/api/handler"
	mw "github.com/kiranshivaraju/livewatch/internal/api/middleware"
	"github.com/kiranshivaraju/livewatch/internal/cache"
	"github.com/kiranshivaraju/livewatch/internal/config"
	"github.com/kiranshivaraju/livewatch/internal/journal"
	"github.com/kiranshivaraju/livewatch/internal/session"
	"github.com/kiranshivaraju/livewatch/internal/snapshot"
	"github.com/kiranshivaraju/livewatch/internal/store"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	if err := loadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "contaminer", cfg.ContaMiner.APIURL,
		"admin_enabled", cfg.Admin.TokenHash != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Upstream client, journal and sessions
	pgStore := store.NewPostgresStore(pool)
	upstream := snapshot.NewCachedClient(
		snapshot.NewHTTPClient(cfg.ContaMiner.APIURL, cfg.ContaMiner.JobStatusURL, cfg.ContaMiner.Timeout),
		redisCache, cfg.Poll.SnapshotCacheTTL,
	)
	registry := session.NewRegistry(sessionConfig(cfg), upstream, journal.New(pgStore), redisCache)

	// 6. Build router with dependencies
	router := api.NewRouter(dependencies(cfg, registry, pgStore, redisCache))

	// 7. Serve until a signal or a fatal error
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return registry.RunSweeper(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		registry.Shutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

// loadDotEnv reads .env files when present. Variables already set in the
// environment win.
func loadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env file: %w", err)
	}
	return nil
}

func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		APIURL:           cfg.ContaMiner.APIURL,
		UglymolURL:       cfg.Page.UglymolURL,
		PercentThreshold: cfg.Page.PercentThreshold,
		ResultsInterval:  cfg.Poll.ResultsInterval,
		StatusInterval:   cfg.Poll.StatusInterval,
		IdleTTL:          cfg.Poll.SessionIdleTTL,
	}
}

// journalStore is what the admin and health handlers need from the database.
type journalStore interface {
	handler.JournalReader
	handler.Pinger
}

func dependencies(cfg *config.Config, registry *session.Registry, db journalStore, c cache.Cache) api.Dependencies {
	pages := handler.NewPageHandler(registry)
	journals := handler.NewJournalHandler(db)

	return api.Dependencies{
		Auth:      mw.NewAuth(cfg.Admin.TokenHash),
		RateLimit: mw.NewRateLimit(c, cfg.RateLimit.PerMinute),

		HealthHandler: handler.NewHealthHandler(db, c, registry),

		PageHTMLHandler:  pages.HTML,
		PageJSONHandler:  pages.JSON,
		ClosePageHandler: pages.Delete,
		DiagnosticsList:  journals.Diagnostics,
		SettlementsList:  journals.Settlements,
		SettlementGet:    journals.Settlement,
	}
}
