/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the driver settlement service. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Configure structured logging
  3. Initialize SQLite store
  4. Create the settlement engine and API handler
  5. Start server (and scheduler, if enabled) with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: settlements.db)
              Use ":memory:" for an in-memory database
  -scheduler  Enable the in-process settlement scheduler
  -interval   Scheduler check interval (default: 1h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections, drain active requests (30s timeout)
  3. Close the database connection

ENVIRONMENT:
  LOG_LEVEL: debug, info, warn, error (default: info)
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetpay/settlement-engine/api"
	"github.com/fleetpay/settlement-engine/pkg/logging"
	"github.com/fleetpay/settlement-engine/settlement"
	"github.com/fleetpay/settlement-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "settlements.db", "SQLite database path")
	schedulerOn := flag.Bool("scheduler", false, "enable the in-process settlement scheduler")
	interval := flag.Duration("interval", time.Hour, "scheduler check interval")
	flag.Parse()

	logging.Setup()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Engine and HTTP layer
	engine := settlement.NewEngine(store, slog.Default())
	handler := api.NewHandler(store, engine)
	router := api.NewRouter(handler)

	var scheduler *api.SettlementScheduler
	if *schedulerOn {
		scheduler = api.NewSettlementScheduler(engine)
		scheduler.CheckInterval = *interval
		scheduler.Start()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
