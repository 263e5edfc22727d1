// Package app wires the storefront's dependencies and runs its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/marketplace/internal/checkout"
	"github.com/utafrali/marketplace/internal/config"
	"github.com/utafrali/marketplace/internal/engine"
	"github.com/utafrali/marketplace/internal/event"
	handler "github.com/utafrali/marketplace/internal/handler/http"
	"github.com/utafrali/marketplace/internal/notifier"
	kafkanotifier "github.com/utafrali/marketplace/internal/notifier/kafka"
	redisnotifier "github.com/utafrali/marketplace/internal/notifier/redis"
	"github.com/utafrali/marketplace/internal/repository"
	"github.com/utafrali/marketplace/internal/repository/memory"
	redisrepo "github.com/utafrali/marketplace/internal/repository/redis"
	"github.com/utafrali/marketplace/pkg/database"
	"github.com/utafrali/marketplace/pkg/health"
	"github.com/utafrali/marketplace/pkg/httpclient"
	pkgkafka "github.com/utafrali/marketplace/pkg/kafka"
	"github.com/utafrali/marketplace/pkg/middleware"
	"github.com/utafrali/marketplace/pkg/tracing"
)

// ServiceName labels logs, metrics and traces.
const ServiceName = "storefront"

// runner is a background loop that lives as long as the app, such as a
// notifier subscription.
type runner struct {
	name string
	run  func(ctx context.Context) error
}

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	rdb      *redis.Client
	producer *pkgkafka.Producer
	pool     *pgxpool.Pool

	registry       *engine.Registry
	health         *health.Handler
	httpServer     *http.Server
	stopStreams    context.CancelFunc
	tracerShutdown func(context.Context) error
	rateLimiter    *middleware.RateLimiter

	runners    []runner
	stopRunner context.CancelFunc
	runnersWG  sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
// Resources opened before a failure are released.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger, health: health.NewHandler()}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, cfg.TracingConfig(ServiceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	store, err := a.initStorage(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.NotifierBackend == config.NotifierKafka || cfg.DomainEventsEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.health.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	n, err := a.initNotifier(ctx)
	if err != nil {
		return nil, err
	}

	opts := engine.Options{
		Store:    store,
		Notifier: n,
		Policy:   cfg.Policy(),
		Logger:   logger,
	}
	if cfg.DomainEventsEnabled {
		opts.Events = event.NewProducer(a.producer, logger)
	}
	a.registry = engine.NewRegistry(opts)

	placer, err := a.initOrderPlacer(ctx)
	if err != nil {
		return nil, err
	}
	checkoutService := checkout.NewService(placer, logger)

	// HTTP router.
	streamsCtx, stopStreams := context.WithCancel(context.Background())
	a.stopStreams = stopStreams

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	a.rateLimiter = middleware.NewRateLimiter(cfg.RateLimitConfig(), logger)

	router := handler.NewRouter(a.registry, checkoutService, a.health, logger, handler.RouterConfig{
		ServiceName:    ServiceName,
		CORS:           cors,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSecs) * time.Second,
		RateLimiter:    a.rateLimiter,
		Heartbeat:      time.Duration(cfg.SSEHeartbeatSecs) * time.Second,
		StreamsDone:    streamsCtx.Done(),
	})

	// WriteTimeout stays unset: the event stream is long-lived and API
	// routes are bounded by the router's request timeout instead.
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.httpServer.RegisterOnShutdown(stopStreams)

	logger.Info("storefront wired",
		slog.String("storage", cfg.StorageBackend),
		slog.String("notifier", cfg.NotifierBackend),
		slog.String("conflict_policy", cfg.Policy().String()),
		slog.String("order_backend", cfg.OrderBackend),
		slog.Bool("domain_events", cfg.DomainEventsEnabled),
	)
	return a, nil
}

func (a *App) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rdb, err := database.NewRedisClient(ctx, a.cfg.RedisConfig())
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.health.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	a.logger.Info("connected to Redis",
		slog.String("addr", a.cfg.RedisAddr),
		slog.Int("db", a.cfg.RedisDB),
	)
	return rdb, nil
}

func (a *App) initStorage(ctx context.Context) (repository.KVStore, error) {
	switch a.cfg.StorageBackend {
	case config.StorageRedis:
		rdb, err := a.redisClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		return redisrepo.NewStore(rdb, a.cfg.StorageKeyPrefix, a.cfg.StorageTTL()), nil
	default:
		return memory.NewStore(a.cfg.StorageQuotaBytes), nil
	}
}

func (a *App) initNotifier(ctx context.Context) (notifier.Notifier, error) {
	switch a.cfg.NotifierBackend {
	case config.NotifierRedis:
		rdb, err := a.redisClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init notifier: %w", err)
		}
		n := redisnotifier.New(rdb, a.cfg.NotifierChannel, a.logger)
		a.runners = append(a.runners, runner{name: "redis-notifier", run: n.Run})
		return n, nil
	case config.NotifierKafka:
		n := kafkanotifier.New(a.producer, kafkanotifier.Config{
			Brokers:    a.cfg.KafkaBrokers,
			InstanceID: a.cfg.InstanceID,
		}, a.logger)
		a.runners = append(a.runners, runner{name: "kafka-notifier", run: n.Run})
		a.logger.Info("kafka notifier configured", slog.String("group_id", n.GroupID()))
		return n, nil
	default:
		return notifier.NewBus(a.logger), nil
	}
}

func (a *App) initOrderPlacer(ctx context.Context) (checkout.OrderPlacer, error) {
	cfg := a.cfg
	if cfg.OrderBackend == config.OrderBackendPostgres {
		pgCfg := cfg.PostgresConfig()
		pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		a.logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)

		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
		if err := database.RunMigrations(ctx, pool, checkout.Migrations(), a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")

		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
		}

		a.health.RegisterCritical("postgres", pool.Ping)
		return checkout.NewPostgresPlacer(pool), nil
	}

	cbCfg := cfg.CircuitBreakerConfig()
	cbClient := httpclient.NewCircuitBreakerClient(httpclient.New(httpclient.DefaultConfig()), cbCfg, a.logger).
		WithFallback(checkout.CircuitOpenFallback)
	a.logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.String("order_service_url", cfg.OrderServiceURL),
		slog.Int("timeout_seconds", cfg.CBTimeout),
	)

	a.health.RegisterNonCritical("order-service", func(context.Context) error {
		if cbClient.State() == gobreaker.StateOpen {
			return errors.New("circuit breaker open")
		}
		return nil
	})
	return checkout.NewHTTPPlacer(cbClient, cfg.OrderServiceURL, a.logger), nil
}

// Run listens on the configured port and serves until the context is
// canceled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		_ = a.Shutdown()
		return fmt.Errorf("listen %s: %w", a.httpServer.Addr, err)
	}
	return a.Serve(ctx, ln)
}

func (a *App) startRunners() {
	runCtx, stop := context.WithCancel(context.Background())
	a.stopRunner = stop
	for _, r := range a.runners {
		a.runnersWG.Add(1)
		go func(r runner) {
			defer a.runnersWG.Done()
			if err := r.run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("background runner stopped",
					slog.String("runner", r.name),
					slog.String("error", err.Error()),
				)
			}
		}(r)
	}
}

// Serve starts the background runners and serves HTTP on ln until ctx is
// canceled, then shuts down.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.startRunners()
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", ln.Addr().String()))
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
//  1. readiness reports draining and HTTP requests drain
//  2. sessions close, unsubscribing from the notifier
//  3. notifier loops stop
//  4. pending spans flush
//  5. Kafka, Redis and PostgreSQL connections close
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	a.health.Drain()

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error

	if a.stopStreams != nil {
		a.stopStreams()
	}
	if a.registry != nil {
		a.registry.Close()
	}
	if a.rateLimiter != nil {
		a.rateLimiter.Close()
	}
	if a.stopRunner != nil {
		a.stopRunner()
		a.runnersWG.Wait()
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}

	return errors.Join(errs...)
}

// Handler exposes the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}
