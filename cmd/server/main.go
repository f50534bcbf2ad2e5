package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/advisorly/advisorly/internal/access"
	"github.com/advisorly/advisorly/internal/api"
	"github.com/advisorly/advisorly/internal/chat"
	"github.com/advisorly/advisorly/internal/config"
	"github.com/advisorly/advisorly/internal/consult"
	"github.com/advisorly/advisorly/internal/handlers"
	"github.com/advisorly/advisorly/internal/media"
	"github.com/advisorly/advisorly/internal/minutes"
	"github.com/advisorly/advisorly/internal/realtime"
	"github.com/advisorly/advisorly/internal/store"
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

	// Run migrations
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")
	}

	// Initialize the datastore: PostgreSQL when configured, SQLite
	// otherwise (local development)
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pgStore.Close()
		logger.Info().Msg("connected to PostgreSQL")
		db = pgStore
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		defer sqliteStore.Close()
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
		db = sqliteStore
	}

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Blob store for recordings and chat file uploads
	blobs, err := media.NewDiskStore(cfg.UploadDir, cfg.UploadBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("upload directory setup failed")
	}

	// Domain services
	resolver := access.NewResolver(db, logger)
	messages := chat.NewService(db, resolver)
	consultSvc := consult.NewService(db, logger)

	var statusCache minutes.StatusCache
	if redisStore != nil {
		statusCache = redisStore
	}
	pipeline := minutes.NewPipeline(
		db,
		statusCache,
		blobs,
		media.NewHTTPConverter(cfg.ConverterURL),
		media.NewHTTPTranscriber(cfg.TranscriberURL),
		logger,
		minutes.Config{
			Workers:           cfg.PipelineWorkers,
			ProcessingTimeout: cfg.ProcessingTimeout,
			MaxUploadBytes:    cfg.MaxUploadBytes,
		},
	)

	hub := realtime.NewHub(resolver, messages, db, logger)
	pipeline.SetNotifier(hub)
	pipeline.Start()

	h := handlers.NewHandler(consultSvc, messages, pipeline, blobs, hub, db, redisStore)

	// Create router
	router := api.NewRouter(cfg, logger, h, hub, redisStore, blobs.Dir())

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
			Msg("starting advisorly server")

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

	// Drain in-flight minutes processing before exit
	pipeline.Stop()

	logger.Info().Msg("server stopped")
}
