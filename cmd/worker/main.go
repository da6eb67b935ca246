package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"notification-pipeline/internal/config"
	"notification-pipeline/internal/domain/entity"
	hhttp "notification-pipeline/internal/handler/http"
	hauth "notification-pipeline/internal/handler/http/auth"
	hdelivery "notification-pipeline/internal/handler/http/delivery"
	pgRepo "notification-pipeline/internal/infra/adapter/persistence/postgres"
	"notification-pipeline/internal/infra/broker"
	"notification-pipeline/internal/infra/cache"
	"notification-pipeline/internal/infra/db"
	"notification-pipeline/internal/infra/httpclient"
	"notification-pipeline/internal/infra/provider"
	"notification-pipeline/internal/infra/reporter"
	"notification-pipeline/internal/infra/templatesvc"
	workerPkg "notification-pipeline/internal/infra/worker"
	"notification-pipeline/internal/observability/correlation"
	"notification-pipeline/internal/observability/logging"
	"notification-pipeline/internal/observability/metrics"
	"notification-pipeline/internal/resilience/circuitbreaker"
	"notification-pipeline/internal/usecase/delivery"
	"notification-pipeline/internal/usecase/template"
)

func main() {
	_ = godotenv.Load()

	channel, err := workerPkg.ChannelFromEnv()
	if err != nil {
		slog.Error("failed to resolve worker channel", slog.Any("error", err))
		os.Exit(1)
	}
	logger := initLogger(channel)

	cfg, err := config.LoadChannelWorkerConfig(channel)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	keys, err := config.LoadServiceKeys()
	if err != nil {
		logger.Error("failed to load service keys", slog.Any("error", err))
		os.Exit(1)
	}

	// Load worker tunables (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker tunables", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("sweep_schedule", workerConfig.SweepSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Int("prefetch", workerConfig.Prefetch),
		slog.Duration("backoff_base", workerConfig.BackoffBase),
		slog.Duration("backoff_cap", workerConfig.BackoffCap),
		slog.String("template_source", cfg.TemplateSource),
		slog.Int("health_port", workerConfig.HealthPort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, workerConfig, workerMetrics, keys); err != nil {
		logger.Error("worker stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

// initLogger initializes the structured logger and installs it as the default.
func initLogger(ch entity.Channel) *slog.Logger {
	logger := logging.NewLogger().With(
		slog.String("service", ch.ServiceName()),
		slog.String("channel", ch.String()))
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the database connection and runs migrations.
func initDatabase(ctx context.Context, logger *slog.Logger) (*sql.DB, error) {
	database, err := db.Open(ctx)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(database); err != nil {
		_ = database.Close()
		return nil, err
	}
	logger.Info("database ready")
	return database, nil
}

// breakerReporter is implemented by collaborators guarded by a circuit breaker.
type breakerReporter interface {
	BreakerState() string
}

// createProvider returns the sender for the worker's channel.
func createProvider(cfg *config.ChannelWorkerConfig) (delivery.Provider, breakerReporter, error) {
	switch cfg.Channel {
	case entity.ChannelEmail:
		return provider.NewSMTPSender(cfg.SMTP), nil, nil
	case entity.ChannelPush:
		p := provider.NewPushSender(cfg.Push)
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("no provider for channel %s", cfg.Channel)
	}
}

// createResolver returns the template resolver selected by TEMPLATE_SOURCE.
func createResolver(logger *slog.Logger, cfg *config.ChannelWorkerConfig, database *sql.DB, store *cache.Store) (template.Resolver, breakerReporter) {
	if cfg.TemplateSource == config.TemplateSourceDatabase {
		logger.Info("templates resolved from database",
			slog.Bool("cache", store.Configured()),
			slog.Duration("cache_ttl", cfg.TemplateCacheTTL))
		r := &template.StoreResolver{
			Repo:     pgRepo.NewTemplateRepo(database),
			CacheTTL: cfg.TemplateCacheTTL,
			KeyFunc:  cache.TemplateKey,
			Breaker:  circuitbreaker.New(circuitbreaker.TemplateStoreConfig()),
		}
		if store.Configured() {
			r.Cache = store
		}
		return r, r
	}

	logger.Info("templates resolved by template service", slog.String("url", cfg.TemplateService.URL))
	c := templatesvc.New(httpclient.New(httpclient.Config{
		BaseURL:     cfg.TemplateService.URL,
		ServiceName: cfg.Identity.Name,
		ServiceKey:  cfg.Identity.Key,
		Timeout:     cfg.TemplateService.Timeout,
	}))
	return c, c
}

func breakerPing(name string, b breakerReporter) hhttp.Dependency {
	return hhttp.Dependency{
		Name:     name,
		Optional: true,
		Ping: func(context.Context) error {
			if state := b.BreakerState(); state == circuitbreaker.StateOpen {
				return fmt.Errorf("circuit breaker %s", state)
			}
			return nil
		},
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.ChannelWorkerConfig, wc *workerPkg.WorkerConfig, wm *workerPkg.WorkerMetrics, keys config.ServiceKeys) error {
	database, err := initDatabase(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	conn, err := broker.Dial(ctx, cfg.Broker.URL, cfg.Channel.ServiceName())
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close broker connection", slog.Any("error", err))
		}
	}()

	client, err := cache.Open(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if client != nil {
		defer func() { _ = client.Close() }()
	}
	store := cache.NewStore(client, "notif:")

	sender, senderBreaker, err := createProvider(cfg)
	if err != nil {
		return err
	}
	resolver, templateBreaker := createResolver(logger, cfg, database, store)

	repo := pgRepo.NewChannelNotificationRepo(database)
	logs := pgRepo.NewDeliveryLogRepo(database)
	publisher := broker.NewPublisher(conn)
	statusReporter := reporter.New(httpclient.New(httpclient.Config{
		BaseURL:     cfg.StatusService.URL,
		ServiceName: cfg.Identity.Name,
		ServiceKey:  cfg.Identity.Key,
		Timeout:     cfg.StatusService.Timeout,
	}))

	scheduler := delivery.NewScheduler(cfg.Channel, repo, publisher)
	defer scheduler.Stop()

	worker := &delivery.Worker{
		Channel:     cfg.Channel,
		Repo:        repo,
		Logs:        logs,
		Templates:   resolver,
		Provider:    sender,
		Reporter:    statusReporter,
		Publisher:   publisher,
		Scheduler:   scheduler,
		BackoffBase: wc.BackoffBase,
		BackoffCap:  wc.BackoffCap,
	}
	sweeper := &delivery.Sweeper{
		Channel:     cfg.Channel,
		Repo:        repo,
		Reporter:    statusReporter,
		Redeliverer: scheduler,
		Grace:       wc.SweepGrace,
		BatchSize:   wc.SweepBatchSize,
	}

	healthServer := setupHealthServer(logger, cfg, wc, keys, database, conn, store, repo, logs, senderBreaker, templateBreaker)

	c, err := startSweepCron(ctx, logger, cfg.Channel, sweeper, wc, wm)
	if err != nil {
		return err
	}
	defer func() {
		<-c.Stop().Done()
		logger.Info("sweep scheduler stopped")
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := healthServer.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		consumer := broker.NewConsumer(conn, cfg.Channel.ServiceName(), wc.Prefetch)
		logger.Info("consumer starting", slog.String("queue", cfg.Channel.QueueName()))
		return consumer.Run(gctx, cfg.Channel.QueueName(), func(ctx context.Context, d broker.Delivery) entity.Outcome {
			return worker.Handle(ctx, d.Body, d.Headers)
		})
	})
	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				metrics.ReportDBStats(database)
			}
		}
	})

	healthServer.SetReady(true)
	logger.Info("worker ready", slog.String("queue", cfg.Channel.QueueName()))

	err = g.Wait()
	healthServer.SetReady(false)
	logger.Info("pending retries at shutdown", slog.Int("count", scheduler.Pending()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// setupHealthServer exposes health, readiness, metrics and the delivery query API.
func setupHealthServer(
	logger *slog.Logger,
	cfg *config.ChannelWorkerConfig,
	wc *workerPkg.WorkerConfig,
	keys config.ServiceKeys,
	database *sql.DB,
	conn *broker.Connection,
	store *cache.Store,
	repo hdelivery.Notifications,
	logs hdelivery.Logs,
	senderBreaker, templateBreaker breakerReporter,
) *workerPkg.HealthServer {
	hs := workerPkg.NewHealthServer(fmt.Sprintf(":%d", wc.HealthPort), logger)

	deps := []hhttp.Dependency{{Name: "rabbitmq", Ping: conn.Check}}
	redis := hhttp.Dependency{Name: "redis", Optional: true}
	if store.Configured() {
		redis.Ping = store.Ping
	}
	deps = append(deps, redis)
	if senderBreaker != nil {
		deps = append(deps, breakerPing("provider", senderBreaker))
	}
	if templateBreaker != nil {
		name := "template_service"
		if cfg.TemplateSource == config.TemplateSourceDatabase {
			name = "template_store"
		}
		deps = append(deps, breakerPing(name, templateBreaker))
	}

	hs.Handle("GET /health", &hhttp.HealthHandler{
		Service:      cfg.Channel.ServiceName(),
		Version:      cfg.Version,
		DB:           database,
		Dependencies: deps,
	})
	hs.Handle("GET /health/ready", &hhttp.ReadyHandler{DB: database, Ready: hs.ReadyFlag()})
	hs.Handle("GET "+hdelivery.PathPrefix, hdelivery.GetHandler{Notifications: repo, Logs: logs})

	hs.Wrap(func(next http.Handler) http.Handler {
		chain := hauth.Middleware(keys)(next)
		chain = hhttp.Logging(logger)(chain)
		chain = hhttp.Recover(logger)(chain)
		return correlation.Middleware(chain)
	})
	return hs
}

// startSweepCron schedules the recovery sweep. Runs never overlap.
func startSweepCron(ctx context.Context, logger *slog.Logger, ch entity.Channel, sweeper *delivery.Sweeper, wc *workerPkg.WorkerConfig, wm *workerPkg.WorkerMetrics) (*cron.Cron, error) {
	loc, err := time.LoadLocation(wc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", wc.Timezone, err)
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err = c.AddFunc(wc.SweepSchedule, func() {
		runSweep(ctx, logger, ch, sweeper, wc.SweepTimeout, wm)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	logger.Info("sweep scheduler started", slog.String("schedule", wc.SweepSchedule))
	return c, nil
}

func runSweep(ctx context.Context, logger *slog.Logger, ch entity.Channel, sweeper *delivery.Sweeper, timeout time.Duration, wm *workerPkg.WorkerMetrics) {
	if ctx.Err() != nil {
		return
	}
	sweepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := sweeper.Run(sweepCtx)
	duration := time.Since(start)
	wm.RecordSweep(ch.String(), result.Republished, result.Reported, duration.Seconds(), err)

	if err != nil {
		logger.Error("sweep finished with errors",
			slog.Int("republished", result.Republished),
			slog.Int("reported", result.Reported),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return
	}
	if result.Republished > 0 || result.Reported > 0 {
		logger.Info("sweep completed",
			slog.Int("republished", result.Republished),
			slog.Int("reported", result.Reported),
			slog.Duration("duration", duration))
	}
}
