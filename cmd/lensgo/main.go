// Command lensgo serves microlensing lightcurves over HTTP, SSE and
// WebSocket.
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

	"github.com/star/lensgo/internal/api"
	"github.com/star/lensgo/internal/cache"
	"github.com/star/lensgo/internal/config"
	"github.com/star/lensgo/internal/metrics"
	"github.com/star/lensgo/internal/scenario"
	"github.com/star/lensgo/internal/simulation"
	"github.com/star/lensgo/internal/stream"
)

var version = "dev"

func main() {
	// Bootstrap logger until the configured one exists.
	boot := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(os.Getenv("LENSGO_CONFIG"), boot)
	if err != nil {
		boot.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.Log.File, config.ParseLogLevel(cfg.Log.Level))
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := scenario.NewStore()
	if cfg.Presets.Source != "" {
		fetcher := scenario.NewFetcher(cfg.Presets.Source, logger)
		if _, err := scenario.LoadPresets(ctx, fetcher, store, logger); err != nil {
			logger.Warn("failed to load presets, continuing without", "source", cfg.Presets.Source, "error", err)
		}
	}

	initial, source := initialConfig(cfg, store, logger)
	store.Set(initial, source)
	logger.Info("initial configuration", "config", initial.String(), "source", source)

	var archive *scenario.Archive
	if cfg.Archive.Enabled {
		archive = scenario.NewArchive(cfg.Archive.Dir, cfg.Archive.MaxFiles)
		if rec, err := archive.LoadLatest(); err == nil {
			logger.Info("previous archived run found",
				"run_id", rec.RunID,
				"config", rec.Config.String(),
				"computed_at", rec.ComputedAt.Format(time.RFC3339),
				"archived_at", rec.ArchivedAt.Format(time.RFC3339),
			)
		}
	}

	runner := simulation.NewRunner(cfg.Run.SweepWorkers, logger)
	runCache := cache.NewRunCache(cfg.RunCacheConfig(), runner, store, archive, logger)
	streamHandler := stream.NewHandler(runCache, cfg.StreamHandlerConfig(), logger)

	srv := api.NewServer(cfg.HTTPAddr, logger, cfg.AuthMiddlewareConfig(), api.Deps{
		Runner:  runner,
		Cache:   runCache,
		Store:   store,
		Archive: archive,
		Stream:  streamHandler,
		Version: version,
	})

	go runCache.Start(ctx)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetActiveConfigAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTPAddr,
			"version", version,
			"auth_enabled", cfg.Auth.Enabled,
			"archive_enabled", cfg.Archive.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// initialConfig picks the startup configuration: the configured preset if it
// exists, else the explicit values.
func initialConfig(cfg config.Config, store *scenario.Store, logger *slog.Logger) (simulation.Config, string) {
	if cfg.Run.Preset != "" {
		if p, ok := store.Preset(cfg.Run.Preset); ok {
			return p.Config, "preset:" + p.Name
		}
		logger.Warn("configured preset not found, using explicit values", "preset", cfg.Run.Preset)
		if err := cfg.Run.Initial.ValidateDomain(); err != nil {
			logger.Warn("explicit values invalid, using defaults", "error", err)
			return simulation.DefaultConfig(), "default"
		}
	}
	return cfg.Run.Initial, "config"
}
