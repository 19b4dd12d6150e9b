package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/veridian-data/veridian/internal/app"
	"github.com/veridian-data/veridian/internal/audit"
	"github.com/veridian-data/veridian/internal/engine"
	"github.com/veridian-data/veridian/internal/platform/cache"
	"github.com/veridian-data/veridian/internal/platform/db"
	"github.com/veridian-data/veridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditService := audit.NewService(audit.NewRepository(pool), logger)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		_ = redisClient.Close()
	}()

	// Warmup fans out over pub/sub; the serving instances hold the
	// caches, this process only publishes requests.
	warmRequester := engine.NewInvalidator(redisClient, nil, nil, logger)

	retentionTask, err := jobs.NewAuditRetentionTask(jobs.AuditRetentionPayload{Retention: cfg.AuditRetention})
	if err != nil {
		logger.Error("build retention task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditRetention, Handler: jobs.NewAuditRetentionHandler(auditService, logger)},
			{Type: jobs.TaskCacheWarmup, Handler: jobs.NewCacheWarmupHandler(warmRequester, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 2 * * *", Task: retentionTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
