package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tamaco/internal/api"
	"tamaco/internal/app/service"
	"tamaco/internal/app/worker"
	"tamaco/internal/common/security"
	"tamaco/internal/domain/repository"
	"tamaco/internal/platform/config"
	"tamaco/internal/platform/database"
	"tamaco/internal/platform/logger"
	"tamaco/internal/platform/metrics"
	"tamaco/internal/platform/queue"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Logger
	log := logger.New(cfg.LogLevel, cfg.AppEnv)
	slog.SetDefault(log)
	log.Info("configuration loaded", slog.String("env", cfg.AppEnv))

	// 3. Database: connect, migrate, seed
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	if err := database.Seed(ctx, db, cfg.SeedAdminLogin, cfg.SeedAdminPassword); err != nil {
		return err
	}
	log.Info("database ready")

	// 4. Redis is optional: without it audit entries are dropped and stats are not cached.
	rdb, err := queue.ConnectRedis(ctx, cfg)
	if err != nil {
		log.Warn("redis unavailable, audit trail and stats cache disabled", slog.String("error", err.Error()))
		rdb = nil
	}
	defer queue.CloseRedis(rdb)

	m := metrics.New()

	// 5. Repositories
	taskRepo := repository.NewPgTaskRepository(db)
	tagRepo := repository.NewPgTagRepository(db)
	contestRepo := repository.NewPgContestRepository(db)
	userRepo := repository.NewPgUserRepository(db)
	auditRepo := repository.NewPgAuditRepository(db)

	// 6. Services
	var (
		audit service.AuditRecorder
		stats service.StatsStore
	)
	if rdb != nil {
		audit = service.NewAuditPublisher(rdb, cfg.AuditQueueName, log, m)
		stats = service.NewRedisStatsCache(rdb, cfg.StatsCacheKey, cfg.StatsCacheTTL, log)
	}
	tokens := security.NewTokenManager(cfg.JWTKey, cfg.JWTExp)
	auditService := service.NewAuditService(auditRepo)
	userService := service.NewUserService(db, userRepo, audit)
	authService := service.NewAuthService(userService, tokens, audit)
	taskService := service.NewTaskService(db, taskRepo, tagRepo, contestRepo, audit, stats, m)
	tagService := service.NewTagService(db, tagRepo, audit, stats)
	contestService := service.NewContestService(db, contestRepo, audit)

	// 7. Audit worker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	if rdb != nil && cfg.EmbeddedAuditWorker {
		go func(rdb *redis.Client) {
			defer close(workerDone)
			worker.NewAuditWorker(rdb, cfg.AuditQueueName, auditService, log, m).Start(workerCtx)
		}(rdb)
	} else {
		close(workerDone)
	}

	// 8. Router & HTTP server
	router := api.NewRouter(api.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  m,
		Tokens:   tokens,
		DB:       db,
		Users:    userService,
		Tasks:    taskService,
		Tags:     tagService,
		Contests: contestService,
		Auth:     authService,
		Audit:    auditService,
	})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 9. Graceful Shutdown
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		workerCancel()
		<-workerDone
		return err
	}

	log.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	workerCancel()
	<-workerDone
	log.Info("server and worker stopped gracefully")
	return nil
}
