package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/wareline/wareline/internal/app"
	jobmetrics "github.com/wareline/wareline/internal/jobs"
	"github.com/wareline/wareline/internal/platform/db"
	"github.com/wareline/wareline/internal/shared"
	"github.com/wareline/wareline/jobs"
)

func main() {
	_ = godotenv.Load()

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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)

	reconcileJob := jobs.NewInventoryReconcileJob(pool, logger, metrics)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger, metrics)

	reconcileTask, err := jobs.NewInventoryReconcileTask(0)
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(72)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInventoryReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 1 * * *", Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down")
}
