/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the overtime engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment), then command-line flags
  2. Initialize logger
  3. Initialize SQLite store and seed the submission policy
  4. Create lifecycle service, API handler and router
  5. Start the notification dispatcher
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (PORT, default: 8080)
  -db      SQLite database path (DB_PATH, default: ./data/overtime.db)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the dispatcher
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/overtime.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  PORT=3000 ./server

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - api/dispatcher.go: Notification outbox
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/warp/overtime-engine/api"
	"github.com/warp/overtime-engine/config"
	"github.com/warp/overtime-engine/logger"
	"github.com/warp/overtime-engine/ot"
	"github.com/warp/overtime-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	log := logger.Init(cfg.LogLevel, cfg.LogFile)

	if *dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
			log.Fatal().Err(err).Str("db", *dbPath).Msg("failed to create database directory")
		}
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	seeded, err := store.SeedPolicy(context.Background(), cfg.Policy())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed submission policy")
	}
	if seeded {
		log.Info().
			Int("cutoff_window_days", cfg.CutoffWindowDays).
			Bool("grace_period_enabled", cfg.GracePeriodEnabled).
			Msg("submission policy seeded from environment")
	}

	// Initialize service and handler
	svc := ot.NewService(store,
		ot.WithAuditLog(store),
		ot.WithNotifier(store),
		ot.WithLogger(log.With().Str("component", "lifecycle").Logger()),
	)
	handler := api.NewHandler(svc, store)
	router := api.NewRouter(handler, log, cfg.CORSOrigins)

	// Notification outbox
	dispatcher := api.NewDispatcher(store, api.LogSender{Log: log.With().Str("component", "notify").Logger()})
	dispatcher.Interval = cfg.DispatchInterval
	dispatcher.BatchSize = cfg.DispatchBatchSize
	dispatcher.MaxAttempts = cfg.DispatchMaxAttempts
	dispatcher.Log = log.With().Str("component", "dispatcher").Logger()
	dispatcher.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", *port).Str("db", *dbPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	dispatcher.Stop()

	log.Info().Msg("server stopped")
}
