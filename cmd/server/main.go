// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/courtqueue/internal/board"
	"github.com/codr1/courtqueue/internal/config"
	"github.com/codr1/courtqueue/internal/db"
	"github.com/codr1/courtqueue/internal/localcache"
	"github.com/codr1/courtqueue/internal/ratelimit"
	"github.com/codr1/courtqueue/internal/scheduler"
	"github.com/codr1/courtqueue/internal/store"
)

const defaultConfigPath = "config/app.yaml"

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return defaultConfigPath
}

// registerJobs schedules the safety-net fill tick, the sync retry and the
// snapshot save.
func registerJobs(jobs *scheduler.Service, cfg *config.Config, ctrl *board.Controller) error {
	if _, err := jobs.AddIntervalJob("fill_safety_tick", cfg.Scheduler.SafetyInterval, ctrl.Tick); err != nil {
		return err
	}
	if _, err := jobs.AddIntervalJob("sync_retry", cfg.Scheduler.SyncInterval, ctrl.Syncer().Kick); err != nil {
		return err
	}
	_, err := jobs.AddJob("board_snapshot", cfg.Scheduler.SnapshotCron, func() {
		if err := ctrl.SaveSnapshot(); err != nil {
			log.Error().Err(err).Msg("Scheduled board snapshot failed")
		}
	})
	return err
}

func run(cfg *config.Config) error {
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	clock := clockwork.NewRealClock()
	ctrl, err := board.New(board.Options{
		Clock:        clock,
		Gateway:      store.NewSQLite(database, clock),
		Cache:        localcache.NewFile(cfg.Cache.Path),
		FillDelay:    cfg.Scheduler.FillDelay,
		FillCooldown: cfg.Scheduler.FillCooldown,
		EchoGrace:    cfg.Sync.EchoGrace,
		Workers:      cfg.Sync.Workers,
	})
	if err != nil {
		return fmt.Errorf("create board: %w", err)
	}
	defer ctrl.Close()

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start board: %w", err)
	}

	jobs, err := scheduler.New(clock)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if err := registerJobs(jobs, cfg, ctrl); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	jobs.Start()
	defer func() {
		if err := jobs.Stop(); err != nil {
			log.Error().Err(err).Msg("Scheduler shutdown failed")
		}
	}()

	limiter := ratelimit.New(&ratelimit.Config{
		WritesPerWindow: cfg.RateLimit.WritesPerMinute,
		Window:          time.Minute,
		TrustProxy:      cfg.RateLimit.TrustProxy,
		Clock:           clock,
	})
	defer limiter.Close()

	server := newServer(cfg, ctrl, limiter)
	// Board streams never end on their own; Shutdown would wait them out.
	server.RegisterOnShutdown(ctrl.CloseViews)
	g, ctx := errgroup.WithContext(ctx)

	// Run server
	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Msg("Starting server")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return ctrl.Syncer().Run(ctx)
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		shutdownErr := server.Shutdown(shutdownCtx)

		// Push whatever is still pending before the store closes. Shutdown
		// may have used up shutdownCtx.
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancelFlush()
		result := ctrl.Syncer().Flush(flushCtx)
		log.Info().
			Int("attempted", result.Attempted).
			Int("succeeded", result.Succeeded).
			Int("failed", result.Failed).
			Msg("Final sync flush")

		if shutdownErr != nil {
			return fmt.Errorf("shutdown error: %w", shutdownErr)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}
