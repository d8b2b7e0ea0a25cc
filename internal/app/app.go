package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/auth"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/config"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/event"
	handler "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/handler/http"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/repository/postgres"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/service"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/migrations"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/database"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/health"
	pkgkafka "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/kafka"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/middleware"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/tracing"
)

const (
	authLimitPrefix = "ratelimit:auth"
	apiLimitPrefix  = "ratelimit:api"
)

// App wires together all dependencies and runs the API service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	memLimiters    []*middleware.MemoryLimiter
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp connects to every backing service, applies migrations and builds
// the HTTP server. Resources opened before a failure are released.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	app, err := a.build(ctx)
	if err != nil {
		_ = a.release()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) (*App, error) {
	cfg, logger := a.cfg, a.logger

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRate:     cfg.OTelSampleRate,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, cfg.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.DBSlowQuery > 0 {
		database.SetSlowQueryLogging(cfg.DBSlowQuery, logger)
	}

	healthHandler := health.NewHandler(cfg.ServiceName)
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	authLimiter, apiLimiter, err := a.limiters(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	var publisher event.Publisher = event.Nop{}
	if cfg.KafkaEnabled {
		producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.producer = producer
		breaker := pkgkafka.NewBreakerPublisher(producer, pkgkafka.DefaultBreakerConfig("kafka-"+cfg.ServiceName), logger)
		publisher = event.NewProducer(breaker, logger)
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("kafka disabled, user events are discarded")
	}

	signer := auth.NewTokenSigner(auth.TokenConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
		Issuer:        cfg.JWTIssuer,
	})
	userRepo := postgres.NewUserRepository(pool)
	ledger := auth.NewLedger(postgres.NewRefreshTokenRepository(pool), signer)
	sessions := service.NewSessionService(userRepo, auth.NewPasswordHasher(cfg.BcryptCost), signer, ledger, publisher, logger)
	users := service.NewUserService(userRepo, sessions, ledger, publisher, logger)

	router := handler.NewRouter(handler.RouterConfig{
		ServiceName: cfg.ServiceName,
		Sessions:    sessions,
		Users:       users,
		Signer:      signer,
		Health:      healthHandler,
		Logger:      logger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORSAllowedOrigin,
			AllowCredentials: true,
		},
		AuthLimiter: authLimiter,
		AuthLimitOptions: middleware.RateLimitOptions{
			RetryAfter: cfg.AuthRateWindow,
			TrustProxy: cfg.TrustProxyHeaders,
		},
		APILimiter: apiLimiter,
		APILimitOptions: middleware.RateLimitOptions{
			RetryAfter: cfg.APIRateWindow,
			TrustProxy: cfg.TrustProxyHeaders,
		},
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
		Debug:             cfg.IsDevelopment(),
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// limiters builds the auth and API rate limiters on the configured backend.
func (a *App) limiters(ctx context.Context, h *health.Handler) (authL, apiL middleware.Limiter, err error) {
	cfg := a.cfg
	if cfg.RateLimitBackend != "redis" {
		authMem := middleware.NewMemoryLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)
		apiMem := middleware.NewMemoryLimiter(cfg.APIRateLimit, cfg.APIRateWindow)
		a.memLimiters = append(a.memLimiters, authMem, apiMem)
		return authMem, apiMem, nil
	}

	client, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	h.RegisterNonCritical("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	a.logger.Info("rate limiting backed by redis", slog.String("addr", cfg.Redis().Addr()))

	return middleware.NewRedisLimiter(client, authLimitPrefix, cfg.AuthRateLimit, cfg.AuthRateWindow),
		middleware.NewRedisLimiter(client, apiLimitPrefix, cfg.APIRateLimit, cfg.APIRateWindow),
		nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown drains in-flight requests first, then flushes spans, then closes
// the backing clients.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	if a.httpServer != nil {
		httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer httpCancel()
		if err := a.httpServer.Shutdown(httpCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes everything except the HTTP server. Nil members are skipped
// so it is safe after a partial NewApp.
func (a *App) release() error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	for _, l := range a.memLimiters {
		l.Close()
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	return errors.Join(errs...)
}
