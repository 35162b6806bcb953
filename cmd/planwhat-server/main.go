package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/planwhat/planwhat/internal/api"
	"github.com/planwhat/planwhat/internal/config"
	"github.com/planwhat/planwhat/internal/db"
	"github.com/planwhat/planwhat/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Str("http_addr", cfg.HTTPAddr).
		Int("databases", len(cfg.Databases)).
		Msg("starting planwhat-server")

	// Initialize the database adapter; the pool is opened lazily when a
	// client selects a database
	database := db.NewAdapter(cfg.Databases, logger)
	defer func() {
		logger.Info().Msg("closing database")
		database.Close()
	}()

	// Create handlers
	handlers := api.NewHandlers(database, database.Databases(), logger, cfg.StmtTimeout)

	// Setup HTTP router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware())
	r.Use(chimiddleware.Compress(5))

	// Routes
	r.Get("/api/database/available", handlers.AvailableDatabasesHandler())
	r.Post("/api/database/select", handlers.SelectDatabaseHandler())
	r.Post("/api/query/plan", handlers.QueryPlanHandler())
	r.Post("/api/query/modify", handlers.ModifyQueryHandler())
	r.Post("/api/preview_join_swaps", handlers.PreviewJoinSwapsHandler())

	// Health check
	r.Get("/health", handlers.HealthHandler())

	// h2c so local front ends get HTTP/2 without TLS
	handler := h2c.NewHandler(r, &http2.Server{})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	srv.SetKeepAlivesEnabled(true)

	logger.Info().
		Str("addr", cfg.HTTPAddr).
		Msg("server listening")

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		// Give outstanding requests time to complete
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
			srv.Close()
			return fmt.Errorf("failed to stop server gracefully: %w", err)
		}

		logger.Info().Msg("server stopped gracefully")
	}

	return nil
}

func setupLogger(level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).
		Level(logLevel).
		With().
		Timestamp().
		Caller().
		Logger()
}
