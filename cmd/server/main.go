/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the staff attendance and payroll server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Open the SQLite or PostgreSQL store
  3. Apply the seed document, if any
  4. Create API handler and payroll scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env HTTP_PORT)
  -db      SQLite database path (default: staff.db, env DB_PATH)
           Use ":memory:" for in-memory database
  -driver  sqlite | postgres (env DB_DRIVER; postgres reads DATABASE_URL)
  -seed    Tenant seed document (env SEED_FILE)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the payroll scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (HTTP_SHUTDOWN_TIMEOUT)
  4. Close database connection

EXAMPLES:
  # Run with file database and demo tenants
  ./server -db="./data/staff.db" -seed=./seed.yaml

  # Run against PostgreSQL
  DB_DRIVER=postgres DATABASE_URL=postgres://... ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - api/scheduler.go: Payroll scheduler
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/warp/staff-engine/api"
	"github.com/warp/staff-engine/config"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/factory"
	"github.com/warp/staff-engine/store/postgres"
	"github.com/warp/staff-engine/store/sqlite"
)

type closingStore interface {
	core.TxStore
	Close() error
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("store ready", "driver", cfg.DBDriver)

	if cfg.SeedFile != "" {
		tenants, err := factory.LoadFile(cfg.SeedFile)
		if err != nil {
			return err
		}
		if err := factory.Apply(ctx, store, tenants); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
		logger.Info("seed applied", "file", cfg.SeedFile, "tenants", len(tenants))
	}

	handler := api.NewHandler(store, logger)

	scheduler := api.NewPayrollScheduler(store, handler.Payroll, logger)
	scheduler.CheckInterval = cfg.SchedulerInterval
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.FinalizeAfter = cfg.FinalizeAfter
	scheduler.Metrics = handler.Metrics
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		ScanRateLimit:  cfg.ScanRateLimit,
		RequestTimeout: api.DefaultRouterOptions().RequestTimeout,
	})

	return api.Start(ctx, cfg, router, logger)
}

func openStore(ctx context.Context, cfg config.Config) (closingStore, error) {
	if cfg.DBDriver == config.DriverPostgres {
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}
