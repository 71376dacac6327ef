package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/notify/internal/config"
	"github.com/kursadbilgin/notify/internal/handler"
	"github.com/kursadbilgin/notify/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/notify/internal/infra/redis"
	"github.com/kursadbilgin/notify/internal/observability"
	"github.com/kursadbilgin/notify/internal/provider"
	"github.com/kursadbilgin/notify/internal/queue"
	"github.com/kursadbilgin/notify/internal/repository"
	"github.com/kursadbilgin/notify/internal/service"
	"github.com/kursadbilgin/notify/internal/ses"
	"github.com/kursadbilgin/notify/internal/signing"
	"github.com/kursadbilgin/notify/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("notify worker stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	overrides, err := cfg.RateLimits()
	if err != nil {
		return err
	}
	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec, overrides)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL, cfg.TaskRetryDelay)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	defer publisher.Close()

	consumer := queue.NewRabbitMQConsumer(rabbit, publisher, cfg.WorkerPrefetch, cfg.TaskMaxAttempts, metrics, logger)
	defer consumer.Close()

	clients, err := providerClients(ctx, cfg)
	if err != nil {
		return err
	}
	registry := provider.NewRegistry(repository.NewGormProviderDetailRepo(db), clients, logger)

	signer, err := signing.NewSigner(cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("callback signer initialization failed: %w", err)
	}
	retryableCodes, err := cfg.RetryableStatusCodes()
	if err != nil {
		return err
	}

	notifications := repository.NewGormNotificationRepo(db)

	callbacks, err := service.NewCallbackService(
		repository.NewGormCallbackAPIRepo(db),
		repository.NewGormCallbackFailureRepo(db),
		publisher,
		signer,
		resty.New(),
		service.CallbackConfig{
			Timeout:              cfg.CallbackTimeout,
			RetryableStatusCodes: retryableCodes,
			BreakerFailures:      cfg.CallbackBreakerTrips,
			BreakerOpenTimeout:   cfg.CallbackBreakerOpenFor,
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("callback service initialization failed: %w", err)
	}
	callbacks.SetMetrics(metrics)

	status, err := service.NewStatusService(notifications, callbacks, logger)
	if err != nil {
		return fmt.Errorf("status service initialization failed: %w", err)
	}

	snsClient := resty.New().SetTimeout(10 * time.Second)
	sesCallbacks, err := service.NewSESCallbackService(
		ses.NewVerifier(ses.NewHTTPCertificateFetcher(snsClient), cfg.SNSCertCacheSize, cfg.SNSCertCacheTTL),
		ses.NewSubscriptionConfirmer(snsClient),
		notifications,
		repository.NewGormComplaintRepo(db),
		status,
		callbacks,
		cfg.SESGraceWindow,
		logger,
	)
	if err != nil {
		return fmt.Errorf("ses callback service initialization failed: %w", err)
	}
	sesCallbacks.SetMetrics(metrics)

	simulator, err := service.NewResearchSimulator(status, publisher, logger)
	if err != nil {
		return fmt.Errorf("research simulator initialization failed: %w", err)
	}

	delivery, err := service.NewDeliveryService(
		notifications,
		repository.NewGormServiceRepo(db),
		repository.NewGormTemplateRepo(db),
		registry,
		simulator,
		rateLimiter,
		cfg.EmailDomain,
		logger,
	)
	if err != nil {
		return fmt.Errorf("delivery service initialization failed: %w", err)
	}
	delivery.SetMetrics(metrics)

	worker, err := service.NewWorkerService(consumer, delivery, callbacks, sesCallbacks, cfg.WorkerConcurrency, logger)
	if err != nil {
		return fmt.Errorf("worker service initialization failed: %w", err)
	}
	worker.SetMetrics(metrics)

	replay, err := service.NewReplayScanner(notifications, publisher, cfg.ReplayInterval, cfg.ReplayOlderThan, cfg.ReplayBatchSize, logger)
	if err != nil {
		return fmt.Errorf("replay scanner initialization failed: %w", err)
	}
	replay.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	handler.RegisterHealthRoutes(app,
		handler.PostgresCheck(sqlDB),
		handler.RedisCheck(rdb),
		handler.ReadinessCheck{Name: "rabbitmq", Check: rabbit.Ping},
	)
	handler.RegisterMetricsRoute(app, metrics)

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Start(groupCtx)
	})
	g.Go(func() error {
		return replay.Start(groupCtx)
	})
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", cfg.WorkerPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	logger.Info("notify worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("port", cfg.WorkerPort),
	)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("notify worker stopped")
	return nil
}

func providerClients(ctx context.Context, cfg *config.Config) (*provider.Clients, error) {
	clients := provider.NewClients()

	primary, err := provider.NewHTTPSMSClient(cfg.SMSProviderName, cfg.SMSProviderURL)
	if err != nil {
		return nil, err
	}
	clients.RegisterSMS(primary)

	if cfg.SMSSecondaryProviderURL != "" {
		secondary, err := provider.NewHTTPSMSClient(cfg.SMSSecondaryProviderName, cfg.SMSSecondaryProviderURL)
		if err != nil {
			return nil, err
		}
		clients.RegisterSMS(secondary)
	}

	email, err := provider.NewSESClient(ctx, provider.SESConfig{
		Name:            cfg.SESProviderName,
		Region:          cfg.SESRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		EndpointURL:     cfg.SESEndpointURL,
	})
	if err != nil {
		return nil, err
	}
	clients.RegisterEmail(email)

	return clients, nil
}
