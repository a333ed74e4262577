package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/academyhub/academyhub/internal/app"
	jobmetrics "github.com/academyhub/academyhub/internal/jobs"
	"github.com/academyhub/academyhub/internal/membership"
	"github.com/academyhub/academyhub/internal/notifications"
	"github.com/academyhub/academyhub/internal/platform/kv"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/users"
	"github.com/academyhub/academyhub/jobs"
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

	redisClient, err := kv.Dial(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	store := kv.New(redisClient, cfg.RedisPrefix)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := jobs.NewClient(redisOpts)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	members := membership.NewService(membership.NewRepository(store), logger)
	userService := users.NewService(users.NewRepository(store), members, shared.NewAuditLogger(store), logger)
	notificationService := notifications.NewService(notifications.NewRepository(store), members, client, logger)
	metrics := jobmetrics.NewMetrics(nil)

	mailJob := jobs.NewMailJob(store, cfg.MailFrom, logger, metrics)
	fanoutJob := jobs.NewFanoutJob(notificationService, logger, metrics)
	digestJob := jobs.NewDigestJob(userService, notificationService, client, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
			{Type: jobs.TaskNotificationsFanout, Handler: fanoutJob.Handle},
			{Type: jobs.TaskNotificationsDigest, Handler: digestJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 7 * * *", Task: jobs.NewDigestTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
