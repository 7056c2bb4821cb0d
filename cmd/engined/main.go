// Package main implements the entry point for the shelfscribe engine daemon,
// which executes background content-generation jobs against the product
// catalog: bounded queueing, cached and retried LLM invocations, and durable
// job tracking.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/shelfscribe/engine/internal/config"
	"github.com/shelfscribe/engine/internal/platform/logger"
	"github.com/shelfscribe/engine/internal/platform/postgres"
)

func main() {
	migrate := flag.Bool("migrate", false, "apply pending schema migrations and exit")
	flag.Parse()

	if *migrate {
		if err := runMigrations(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		return
	}

	if err := run(); err != nil {
		log.Fatalf("Failed to run engine: %v", err)
	}
}

// run wires the application, starts it, and blocks until a termination
// signal arrives.
func run() error {
	ctx := context.Background()

	app, err := newApplication(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.start(ctx); err != nil {
		app.shutdown()
		return err
	}

	app.logger.Info("engine started",
		"workers", app.cfg.Queue.WorkerCount,
		"queue_size", app.cfg.Queue.Size,
		"max_concurrent", app.cfg.Executor.MaxConcurrent)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	app.logger.Info("received signal", "signal", sig.String())

	app.shutdown()
	return nil
}

// runMigrations applies the embedded schema migrations and exits.
func runMigrations() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logr, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := postgres.MigrateUp(db, logr); err != nil {
		return err
	}

	logr.Info("migrations applied")
	return nil
}
