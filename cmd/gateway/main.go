package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"notification-pipeline/internal/config"
	hhttp "notification-pipeline/internal/handler/http"
	hauth "notification-pipeline/internal/handler/http/auth"
	hnotification "notification-pipeline/internal/handler/http/notification"
	hstatus "notification-pipeline/internal/handler/http/status"
	pgRepo "notification-pipeline/internal/infra/adapter/persistence/postgres"
	"notification-pipeline/internal/infra/broker"
	"notification-pipeline/internal/infra/cache"
	"notification-pipeline/internal/infra/db"
	"notification-pipeline/internal/infra/events"
	"notification-pipeline/internal/infra/httpclient"
	"notification-pipeline/internal/infra/userdir"
	"notification-pipeline/internal/observability/correlation"
	"notification-pipeline/internal/observability/logging"
	"notification-pipeline/internal/observability/metrics"
	"notification-pipeline/internal/observability/tracing"
	"notification-pipeline/internal/usecase/ingest"
	"notification-pipeline/internal/usecase/status"
)

func main() {
	// .env は任意（本番では環境変数を直接渡す）
	_ = godotenv.Load()

	logger := initLogger()

	cfg, err := config.LoadGatewayConfig()
	if err != nil {
		logger.Error("failed to load gateway configuration", slog.Any("error", err))
		os.Exit(1)
	}
	keys, err := config.LoadServiceKeys()
	if err != nil {
		logger.Error("failed to load service keys", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("service keys loaded", slog.Any("services", keys.Names()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, keys); err != nil {
		logger.Error("gateway stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

// initLogger initializes the structured logger and installs it as the default.
func initLogger() *slog.Logger {
	logger := logging.NewLogger().With(slog.String("service", "gateway"))
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

// components are the collaborators owned by the gateway process.
type components struct {
	database  *sql.DB
	conn      *broker.Connection
	store     *cache.Store
	events    status.EventPublisher
	closeFunc []func() error
}

func (c *components) close(logger *slog.Logger) {
	for i := len(c.closeFunc) - 1; i >= 0; i-- {
		if err := c.closeFunc[i](); err != nil {
			logger.Error("failed to close component", slog.Any("error", err))
		}
	}
}

func setupComponents(ctx context.Context, logger *slog.Logger, cfg *config.GatewayConfig) (*components, error) {
	c := &components{}

	database, err := initDatabase(ctx, logger)
	if err != nil {
		return nil, err
	}
	c.database = database
	c.closeFunc = append(c.closeFunc, database.Close)

	conn, err := broker.Dial(ctx, cfg.Broker.URL, "gateway")
	if err != nil {
		c.close(logger)
		return nil, err
	}
	c.conn = conn
	c.closeFunc = append(c.closeFunc, conn.Close)
	logger.Info("broker topology declared")

	client, err := cache.Open(ctx, cfg.RedisURL)
	if err != nil {
		c.close(logger)
		return nil, err
	}
	c.store = cache.NewStore(client, "notif:")
	if client != nil {
		c.closeFunc = append(c.closeFunc, client.Close)
		logger.Info("redis connected")
	} else {
		logger.Warn("REDIS_URL not set, idempotency lock and contact cache disabled")
	}

	if len(cfg.StatusEventsBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.StatusEventsBrokers, cfg.StatusEventsTopic)
		c.events = publisher
		c.closeFunc = append(c.closeFunc, publisher.Close)
		logger.Info("status event stream enabled", slog.String("topic", cfg.StatusEventsTopic))
	} else {
		c.events = events.Noop{}
	}

	return c, nil
}

// setupRoutes registers the API, health and metrics endpoints.
func setupRoutes(cfg *config.GatewayConfig, c *components, ready *atomic.Bool) *http.ServeMux {
	requests := pgRepo.NewNotificationRequestRepo(c.database)

	directory := userdir.New(httpclient.New(httpclient.Config{
		BaseURL:     cfg.UserService.URL,
		ServiceName: cfg.Identity.Name,
		ServiceKey:  cfg.Identity.Key,
		Timeout:     cfg.UserService.Timeout,
	}), c.store)

	ingestSvc := &ingest.Service{
		Requests:  requests,
		Directory: directory,
		Publisher: broker.NewPublisher(c.conn),
		LockTTL:   cfg.LockTTL,
	}
	if c.store.Configured() {
		ingestSvc.Locks = cache.RequestLocks{Store: c.store}
	}

	reconciler := &status.Reconciler{
		Requests: requests,
		Errors:   pgRepo.NewErrorLogRepo(c.database),
		Events:   c.events,
	}

	mux := http.NewServeMux()
	hnotification.Register(mux, ingestSvc, reconciler)
	hstatus.Register(mux, reconciler)

	redis := hhttp.Dependency{Name: "redis", Optional: true}
	if c.store.Configured() {
		redis.Ping = c.store.Ping
	}
	mux.Handle("GET /health", &hhttp.HealthHandler{
		Service: "gateway",
		Version: cfg.Version,
		DB:      c.database,
		Dependencies: []hhttp.Dependency{
			{Name: "rabbitmq", Ping: c.conn.Check},
			redis,
		},
	})
	mux.Handle("GET /health/ready", &hhttp.ReadyHandler{DB: c.database, Ready: ready})
	mux.Handle("GET /health/live", &hhttp.LiveHandler{})
	mux.Handle("GET /metrics", hhttp.MetricsHandler())

	return mux
}

// applyMiddleware wraps the handler with the middleware chain.
// Order (outermost first): Correlation ID → Tracing → Recovery → Logging → Metrics →
// Input validation → Authentication → Rate limit → Timeout.
func applyMiddleware(logger *slog.Logger, cfg *config.GatewayConfig, keys config.ServiceKeys, handler http.Handler) http.Handler {
	chain := hhttp.Timeout(cfg.RequestTimeout)(handler)
	if cfg.RateLimit > 0 {
		chain = hhttp.NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Limit(chain)
	}
	chain = hauth.Middleware(keys)(chain)
	chain = hhttp.InputValidation()(chain)
	chain = hhttp.MetricsMiddleware(chain)
	chain = hhttp.Logging(logger)(chain)
	chain = hhttp.Recover(logger)(chain)
	chain = tracing.Middleware(chain)
	chain = correlation.Middleware(chain)
	return chain
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.GatewayConfig, keys config.ServiceKeys) error {
	c, err := setupComponents(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer c.close(logger)

	ready := &atomic.Bool{}
	handler := applyMiddleware(logger, cfg, keys, setupRoutes(cfg, c, ready))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second, // Slowloris 対策
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting",
			slog.String("addr", cfg.Addr),
			slog.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				metrics.ReportDBStats(c.database)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		ready.Store(false)
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", slog.Any("error", err))
			return err
		}
		return nil
	})

	ready.Store(true)
	logger.Info("gateway ready")

	return g.Wait()
}
