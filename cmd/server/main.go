package main

import (
	"alcyxob/session-tracker/internal/api"
	"alcyxob/session-tracker/internal/config"
	"alcyxob/session-tracker/internal/recorder"
	"alcyxob/session-tracker/internal/repository/mongo"
	"alcyxob/session-tracker/internal/service"
	"alcyxob/session-tracker/internal/storage"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Info().Msg("starting session tracker")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("could not load config")
	}
	if cfg.JWT.Secret == "" {
		logger.Fatal().Msg("jwt.secret is required")
	}
	if cfg.Recorder.BaseURL == "" {
		logger.Fatal().Msg("recorder.base_url is required")
	}

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not connect to MongoDB")
	}
	defer func() {
		if err := mongo.DisconnectDB(dbClient); err != nil {
			logger.Error().Err(err).Msg("failed to disconnect MongoDB")
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	logger.Info().Str("database", cfg.Database.Name).Msg("database connection established")

	// --- Ensure Indexes ---
	// The partial unique index enforces the one-active-session-per-user
	// invariant, so index creation is not allowed to fail silently.
	indexCtx, indexCancel := context.WithTimeout(context.Background(), time.Minute)
	defer indexCancel()
	if err := mongo.EnsureSessionIndexes(indexCtx, appDB.Collection("workout_sessions")); err != nil {
		logger.Fatal().Err(err).Msg("failed to create session indexes")
	}

	// --- External Collaborators ---
	workoutRecorder := recorder.NewHTTPRecorder(cfg.Recorder.BaseURL, cfg.Recorder.ServiceToken, cfg.Recorder.Timeout)

	var fileStorage storage.FileStorage
	if cfg.S3.BucketName != "" {
		fileStorage, err = storage.NewS3Storage(cfg.S3)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize S3 storage")
		}
		logger.Info().Str("bucket", cfg.S3.BucketName).Msg("checkpoint archiving enabled")
	} else {
		logger.Warn().Msg("no S3 bucket configured, checkpoint archiving disabled")
	}

	// --- Repositories and Services ---
	sessionRepo := mongo.NewMongoSessionRepository(appDB)
	finalizer := service.NewFinalizer(workoutRecorder, fileStorage, logger)
	sessionService := service.NewSessionService(sessionRepo, finalizer, fileStorage, logger)

	// --- HTTP Server ---
	router := gin.Default()
	api.SetupRoutes(router, cfg.JWT.Secret, sessionService)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen and serve failed")
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exiting")
}
