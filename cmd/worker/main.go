package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/resilient-tech/payments-processor/internal/app"
	"github.com/resilient-tech/payments-processor/jobs"
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

	services, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}
	defer services.Close()

	runTask, err := jobs.NewPaymentsRunTask("")
	if err != nil {
		logger.Error("build payments run task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.RunConcurrency + 1,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPaymentsRun, Handler: services.PaymentsRunJob().Handle},
			{Type: jobs.TaskTypeSendEmail, Handler: services.MailJob().Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RunCron, Task: runTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	// The worker exposes job metrics on its own listener.
	metricsSrv := &http.Server{Addr: cfg.AppAddr, Handler: services.Metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics listener", slog.Any("error", err))
		}
	}()
	defer func() {
		_ = metricsSrv.Close()
	}()

	logger.Info("worker started", slog.String("cron", cfg.RunCron), slog.Int("concurrency", cfg.RunConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
