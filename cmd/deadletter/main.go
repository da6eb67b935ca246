package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"notification-pipeline/internal/config"
	"notification-pipeline/internal/domain/entity"
	hhttp "notification-pipeline/internal/handler/http"
	pgRepo "notification-pipeline/internal/infra/adapter/persistence/postgres"
	"notification-pipeline/internal/infra/broker"
	"notification-pipeline/internal/infra/db"
	"notification-pipeline/internal/infra/events"
	workerPkg "notification-pipeline/internal/infra/worker"
	"notification-pipeline/internal/observability/logging"
	"notification-pipeline/internal/usecase/deadletter"
	"notification-pipeline/internal/usecase/status"
)

const serviceName = "dlq_consumer"

func main() {
	_ = godotenv.Load()

	logger := logging.NewLogger().With(slog.String("service", serviceName))
	slog.SetDefault(logger)

	cfg, err := config.LoadDeadLetterConfig()
	if err != nil {
		logger.Error("failed to load dead-letter configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("dead-letter consumer stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("dead-letter consumer stopped")
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.DeadLetterConfig) error {
	database, err := db.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	if err := db.MigrateUp(database); err != nil {
		return err
	}

	conn, err := broker.Dial(ctx, cfg.Broker.URL, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close broker connection", slog.Any("error", err))
		}
	}()

	// 失敗の確定はゲートウェイと同じ DB に直接書き込む
	handler := &deadletter.Handler{
		Notifications: pgRepo.NewChannelNotificationRepo(database),
		Status: &status.Reconciler{
			Requests: pgRepo.NewNotificationRequestRepo(database),
			Errors:   pgRepo.NewErrorLogRepo(database),
			Events:   events.Noop{},
		},
	}

	hs := workerPkg.NewHealthServer(fmt.Sprintf(":%d", cfg.HealthPort), logger)
	hs.Handle("GET /health", &hhttp.HealthHandler{
		Service:      serviceName,
		Version:      cfg.Version,
		DB:           database,
		Dependencies: []hhttp.Dependency{{Name: "rabbitmq", Ping: conn.Check}},
	})
	hs.Handle("GET /health/ready", &hhttp.ReadyHandler{DB: database, Ready: hs.ReadyFlag()})
	hs.Wrap(hhttp.Recover(logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := hs.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		consumer := broker.NewConsumer(conn, serviceName, cfg.Broker.Prefetch)
		return consumer.Run(gctx, broker.FailedQueue, func(ctx context.Context, d broker.Delivery) entity.Outcome {
			return handler.Handle(ctx, d.Body, d.Headers)
		})
	})

	hs.SetReady(true)
	logger.Info("dead-letter consumer ready", slog.String("queue", broker.FailedQueue))

	err = g.Wait()
	hs.SetReady(false)
	return err
}
