/**
 * @description
 * This is the main entry point for the KeepSafe API. It initializes and
 * wires together configuration, the database pool, the Stripe billing
 * adapter, the SMTP mailer, the optional RabbitMQ producer and Redis rate
 * limiter, and the HTTP router, then runs the server until shutdown.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/keepsafe/keepsafe-api/internal/api"
	"github.com/keepsafe/keepsafe-api/internal/app"
	"github.com/keepsafe/keepsafe-api/internal/config"
	"github.com/keepsafe/keepsafe-api/internal/store"
	"github.com/keepsafe/keepsafe-api/pkg/mailer"
	"github.com/keepsafe/keepsafe-api/pkg/rabbitmq"
	"github.com/keepsafe/keepsafe-api/pkg/stripeclient"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.SessionJWTSecret == "" {
		logger.Error("session JWT secret must be configured", "env", "SESSION_JWT_SECRET")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Simple protocol keeps the pool compatible with PgBouncer transaction
	// pooling (no server-side prepared statements).
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Events are best-effort; a missing broker must not block startup.
	var publisher rabbitmq.Publisher = &rabbitmq.LogPublisher{}
	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("rabbitmq producer unavailable; events will be logged only", "error", err)
		} else {
			publisher = producer
			logger.Info("rabbitmq producer connected")
		}
	}
	defer publisher.Close()

	var limiter app.RateLimiter
	if cfg.RedisURL != "" {
		redisOptions, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis url parse failed; rate limiting disabled", "error", err)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			if err := redisClient.Ping(pingCtx).Err(); err != nil {
				logger.Warn("redis ping failed; rate limiting disabled", "error", err)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
				logger.Info("redis connected")
			}
			cancelPing()
		}
	}

	billingClient := stripeclient.NewClient(cfg.StripeSecretKey, cfg.AppBaseURL)
	smtpMailer := mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.EmailFrom)

	repository := store.NewPostgresRepository(dbpool)
	service := app.NewService(repository, billingClient, smtpMailer, publisher, limiter, app.Options{
		DefaultPlanName:              cfg.DefaultPlanName,
		EmailDomain:                  cfg.EmailDomain,
		EmailFrom:                    cfg.EmailFrom,
		EventExchange:                cfg.EventExchange,
		CheckoutRateLimitPerMinute:   cfg.CheckoutRateLimitPerMinute,
		ForwardingRateLimitPerMinute: cfg.ForwardingRateLimitPerMinute,
	})
	handler := api.NewHandler(service, cfg.WebhookSigningSecret)
	router := api.NewRouter(handler, repository, cfg.SessionJWTSecret)

	retention := app.NewRetention(repository, logger, cfg.EmailRetentionDays, cfg.EmailRetentionSchedule)
	retention.Start()
	defer retention.Stop()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
