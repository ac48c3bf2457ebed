/*
main.go - Sandbox server entry point

PURPOSE:
  Runs a local, in-memory implementation of the remote record API so
  ledgerctl can be exercised without the real service.

STARTUP SEQUENCE:
  1. Parse command-line flags and load config
  2. Build the zerolog logger
  3. Seed the in-memory store (optional)
  4. Configure the chi router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  --config  YAML config file
  --port    HTTP port (default 5000, LEDGER_SANDBOX_PORT)
  --seed    Number of demo records to create at startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Exit

EXAMPLES:
  ./sandbox --seed=25
  LEDGER_BASE_URL=http://localhost:5000 ledgerctl list

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - ledger/store/memory.go: In-memory backend
*/
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

	"github.com/spf13/pflag"

	"github.com/warp/patient-ledger/api"
	"github.com/warp/patient-ledger/config"
	"github.com/warp/patient-ledger/ledger"
	"github.com/warp/patient-ledger/ledger/store"
	"github.com/warp/patient-ledger/logging"
)

func main() {
	// Flags
	cfgPath := pflag.String("config", "", "config file (yaml)")
	pflag.Int("port", 0, "HTTP server port")
	seed := pflag.Int("seed", 0, "demo records to create at startup")
	pflag.Parse()

	cfg, err := config.LoadWithFlags(*cfgPath, pflag.CommandLine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	// Initialize store
	mem := store.NewMemory()
	for i := 1; i <= *seed; i++ {
		if _, err := mem.Create(context.Background(), ledger.RecordDraft{Name: fmt.Sprintf("Patient %d", i)}); err != nil {
			log.Fatal().Err(err).Msg("seed records")
		}
	}

	// Create router
	handler := api.NewHandler(mem, log)
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.CORSOrigins, Logger: log})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.SandboxPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.SandboxPort).Int("seeded", *seed).Msg("sandbox listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("sandbox stopped")
}
