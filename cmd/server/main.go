package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorhq/sessiond/internal/api"
	"github.com/proctorhq/sessiond/internal/audit"
	"github.com/proctorhq/sessiond/internal/config"
	"github.com/proctorhq/sessiond/internal/engine"
	"github.com/proctorhq/sessiond/internal/realtime"
	"github.com/proctorhq/sessiond/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize store: Postgres in production, SQLite fallback for dev
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pg
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = lite
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer db.Close()

	// Initialize real-time publisher
	var pub realtime.Publisher = realtime.Noop{}
	var redisPub *realtime.RedisPublisher
	if cfg.RedisURL != "" {
		var err error
		redisPub, err = realtime.NewRedisPublisher(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisPub.Close()
		pub = redisPub
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Warn().Msg("no REDIS_URL set, real-time publishing disabled")
	}

	// Wire the core
	recorder := audit.NewRecorder(db, pub, logger)
	eng := engine.New(db, recorder, logger)

	// Republish sweeper reconciles events whose publish attempt failed
	sweeper := audit.NewSweeper(db, recorder, cfg.SweepInterval, logger)
	sweeper.Start()
	defer sweeper.Stop()

	// Create router
	router := api.NewRouter(logger, db, eng, recorder, redisPub)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting sessiond server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
