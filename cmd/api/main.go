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
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/notify/internal/config"
	"github.com/kursadbilgin/notify/internal/handler"
	"github.com/kursadbilgin/notify/internal/infra/postgresql"
	"github.com/kursadbilgin/notify/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notify/internal/infra/redis"
	"github.com/kursadbilgin/notify/internal/observability"
	"github.com/kursadbilgin/notify/internal/queue"
	"github.com/kursadbilgin/notify/internal/repository"
	"github.com/kursadbilgin/notify/internal/service"
	"github.com/kursadbilgin/notify/internal/ses"
	"github.com/kursadbilgin/notify/internal/signing"
	"github.com/kursadbilgin/notify/internal/transport"
	"go.uber.org/zap"
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

	metrics := observability.NewMetrics()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
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

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL, cfg.TaskRetryDelay)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	defer publisher.Close()

	signer, err := signing.NewSigner(cfg.SigningKey)
	if err != nil {
		logger.Fatal("callback signer initialization failed", zap.Error(err))
	}

	retryableCodes, err := cfg.RetryableStatusCodes()
	if err != nil {
		logger.Fatal("invalid callback configuration", zap.Error(err))
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
		logger.Fatal("callback service initialization failed", zap.Error(err))
	}
	callbacks.SetMetrics(metrics)

	status, err := service.NewStatusService(notifications, callbacks, logger)
	if err != nil {
		logger.Fatal("status service initialization failed", zap.Error(err))
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
		logger.Fatal("ses callback service initialization failed", zap.Error(err))
	}
	sesCallbacks.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app,
		handler.PostgresCheck(sqlDB),
		handler.RedisCheck(rdb),
		handler.ReadinessCheck{Name: "rabbitmq", Check: rabbit.Ping},
	)
	handler.RegisterMetricsRoute(app, metrics)

	if err := handler.RegisterSESCallbackRoutes(app, sesCallbacks); err != nil {
		logger.Fatal("ses callback routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterCallbackFailureRoutes(app, callbacks); err != nil {
		logger.Fatal("callback failure routes registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("notify api shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("notify api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("api server stopped", zap.Error(err))
	}
}
