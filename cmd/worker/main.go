package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/studyhub/notification-queue/internal/config"
	"github.com/studyhub/notification-queue/internal/crm"
	"github.com/studyhub/notification-queue/internal/directory"
	"github.com/studyhub/notification-queue/internal/dispatch"
	"github.com/studyhub/notification-queue/internal/email"
	"github.com/studyhub/notification-queue/internal/infra/postgresql"
	"github.com/studyhub/notification-queue/internal/infra/postgresql/migrations"
	infraredis "github.com/studyhub/notification-queue/internal/infra/redis"
	"github.com/studyhub/notification-queue/internal/observability"
	"github.com/studyhub/notification-queue/internal/queue"
	"github.com/studyhub/notification-queue/internal/repository"
	"github.com/studyhub/notification-queue/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const consumerPrefetch = 1

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	consumer := queue.NewRabbitMQConsumer(broker, consumerPrefetch, logger)
	defer consumer.Close()

	limiter, err := infraredis.NewRateLimiter(rdb, cfg.CRMRateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	crmClient, err := crm.NewRestClient(cfg.CRMBaseURL, cfg.CRMAPIKey)
	if err != nil {
		logger.Fatal("crm client initialization failed", zap.Error(err))
	}
	directoryClient, err := directory.NewRestClient(cfg.DirectoryURL, cfg.DirectoryAPIKey)
	if err != nil {
		logger.Fatal("directory client initialization failed", zap.Error(err))
	}
	sendClient, err := email.NewRestSendClient(cfg.EmailBaseURL, cfg.EmailAPIKey)
	if err != nil {
		logger.Fatal("email client initialization failed", zap.Error(err))
	}

	notificationRepo := repository.NewGormNotificationRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)
	runRepo := repository.NewGormRunRepo(db)
	templateRepo := repository.NewGormTemplateRepo(db)

	emailService, err := email.NewService(templateRepo, directoryClient, sendClient, limiter, logger)
	if err != nil {
		logger.Fatal("email service initialization failed", zap.Error(err))
	}
	dispatcher, err := dispatch.NewDispatcher(crmClient, directoryClient, emailService, limiter, rdb, logger)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	processor, err := service.NewProcessor(
		notificationRepo, attemptRepo, runRepo,
		dispatcher, cfg.MaxRetries, cfg.ProcessInterval(), metrics, logger,
	)
	if err != nil {
		logger.Fatal("processor initialization failed", zap.Error(err))
	}
	retention, err := service.NewRetentionService(
		notificationRepo, cfg.RetentionWindow(), cfg.RetentionInterval(), metrics, logger,
	)
	if err != nil {
		logger.Fatal("retention service initialization failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("notification-queue worker started")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return consumer.Consume(groupCtx, queue.ProcessQueueName, processor.HandleTrigger)
	})
	group.Go(func() error {
		return processor.Start(groupCtx)
	})
	group.Go(func() error {
		return retention.Start(groupCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}

	logger.Info("notification-queue worker stopped")
}
