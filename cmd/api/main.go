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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/storehub-api/internal/config"
	"github.com/flicky/storehub-api/internal/handler"
	"github.com/flicky/storehub-api/internal/migrations"
	"github.com/flicky/storehub-api/internal/repository"
	"github.com/flicky/storehub-api/internal/service"
	"github.com/flicky/storehub-api/internal/telemetry"
	"github.com/flicky/storehub-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	policy, err := service.NewStatusPolicy(cfg.Order.StatusPolicy)
	if err != nil {
		log.Error("order status policy", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	shutdownTracer, err := telemetry.InitTracerProvider(ctx,
		cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Error("init tracer provider", "error", err)
		os.Exit(1)
	}
	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion)
	if err != nil {
		log.Error("init meter provider", "error", err)
		os.Exit(1)
	}

	// PostgreSQL
	if cfg.DB.MigrateOnStart {
		if err := migrations.Up(cfg.DB.DSN()); err != nil {
			log.Error("run migrations", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// Repositories
	transactor := repository.NewTransactor(dbPool)
	userRepo := repository.NewUserRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	cartRepo := repository.NewCartRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)
	reviewRepo := repository.NewReviewRepository(dbPool)

	productSvc := service.NewProductService(productRepo, redisClient)

	// RabbitMQ is optional; without it events are dropped.
	publisher := service.NoopPublisher
	var broker handler.BrokerConn
	var eventWorker *worker.EventWorker
	if cfg.RabbitMQ.Enabled() {
		amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			log.Error("connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer amqpConn.Close()

		consumeCh, err := amqpConn.Channel()
		if err != nil {
			log.Error("open RabbitMQ channel", "error", err)
			os.Exit(1)
		}
		defer consumeCh.Close()

		if err := worker.SetupRabbitMQ(consumeCh); err != nil {
			log.Error("setup RabbitMQ", "error", err)
			os.Exit(1)
		}

		publishCh, err := amqpConn.Channel()
		if err != nil {
			log.Error("open RabbitMQ channel", "error", err)
			os.Exit(1)
		}
		defer publishCh.Close()

		publisher = worker.NewPublisher(publishCh)
		broker = amqpConn
		eventWorker = worker.NewEventWorker(consumeCh, productSvc, redisClient, log)
		log.Info("connected to RabbitMQ")
	} else {
		log.Info("RabbitMQ not configured, domain events disabled")
	}

	// Services
	authSvc := service.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	cartSvc := service.NewCartService(cartRepo, productRepo)
	orderSvc := service.NewOrderService(transactor, orderRepo, cartRepo, productRepo, policy, productSvc, publisher, log)
	reviewSvc := service.NewReviewService(transactor, reviewRepo, orderRepo, productRepo, productSvc, publisher, log)

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.RouterDeps{
		ServiceName:     cfg.Telemetry.ServiceName,
		Logger:          log,
		Redis:           redisClient,
		Metrics:         metricsHandler,
		Auth:            authSvc,
		Products:        productSvc,
		Carts:           cartSvc,
		Orders:          orderSvc,
		Reviews:         reviewSvc,
		Health:          handler.NewHealthHandler(dbPool, redisClient, broker),
		CookieSecure:    cfg.Auth.CookieSecure,
		RateLimitCount:  cfg.Auth.RateLimitCount,
		RateLimitPeriod: cfg.Auth.RateLimitPeriod,
	})

	if eventWorker != nil {
		if err := eventWorker.Start(ctx); err != nil {
			log.Error("start event worker", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port, "status_policy", policy.Name())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	if eventWorker != nil {
		eventWorker.Stop()
		time.Sleep(500 * time.Millisecond)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown", "error", err)
	}
	if err := shutdownMeter(shutdownCtx); err != nil {
		log.Error("meter shutdown", "error", err)
	}
	cancel()
	log.Info("server stopped")
}
