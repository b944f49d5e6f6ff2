// Command worker drains the audit queue into PostgreSQL when the API runs
// with AUDIT_WORKER_EMBEDDED=false.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tamaco/internal/app/service"
	"tamaco/internal/app/worker"
	"tamaco/internal/domain/repository"
	"tamaco/internal/platform/config"
	"tamaco/internal/platform/database"
	"tamaco/internal/platform/logger"
	"tamaco/internal/platform/metrics"
	"tamaco/internal/platform/queue"
)

func main() {
	if err := run(); err != nil {
		slog.Error("audit worker exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.AppEnv).With(slog.String("component", "audit-worker"))
	slog.SetDefault(log)

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	rdb, err := queue.ConnectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer queue.CloseRedis(rdb)

	auditService := service.NewAuditService(repository.NewPgAuditRepository(db))
	worker.NewAuditWorker(rdb, cfg.AuditQueueName, auditService, log, metrics.New()).Start(ctx)
	log.Info("audit worker exited cleanly")
	return nil
}
