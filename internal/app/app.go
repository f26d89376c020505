package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Taro112233/mederror/internal/auth"
	"github.com/Taro112233/mederror/internal/config"
	"github.com/Taro112233/mederror/internal/event"
	handler "github.com/Taro112233/mederror/internal/handler/http"
	"github.com/Taro112233/mederror/internal/repository/postgres"
	"github.com/Taro112233/mederror/internal/service"
	"github.com/Taro112233/mederror/migrations"
	"github.com/Taro112233/mederror/pkg/database"
	"github.com/Taro112233/mederror/pkg/health"
	pkgkafka "github.com/Taro112233/mederror/pkg/kafka"
	"github.com/Taro112233/mederror/pkg/tracing"
)

// App wires together all dependencies and runs the API service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "mederror-api",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		DBName:   cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "mederror")

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	tokens := auth.NewManager(cfg.JWTSecret, auth.TTLConfig{
		Login:      cfg.SessionTTLLogin,
		Refresh:    cfg.SessionTTLRefresh,
		Onboarding: cfg.SessionTTLOnboarding,
		Security:   cfg.SecurityTokenTTL,
	})
	accountRepo := postgres.NewAccountRepository(pool)
	tokenRepo := postgres.NewRefreshTokenRepository(pool)
	eventProducer := event.NewProducer(producer, logger)

	sessionService := service.NewSessionService(accountRepo, tokenRepo, tokens, eventProducer, logger, service.SessionConfig{
		RefreshTokenTTL:   cfg.RefreshTokenTTL,
		InactivityTimeout: cfg.InactivityTimeout,
	})
	accountService := service.NewAccountService(accountRepo, tokenRepo, tokens, eventProducer, logger)
	securityService := service.NewSecurityService(accountRepo, tokens, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP handlers and router.
	cookies := handler.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: !cfg.IsDevelopment(),
	}
	ttls := handler.SessionCookieTTLs{
		Session:  cfg.SessionTTLLogin,
		Refresh:  cfg.RefreshTokenTTL,
		Security: cfg.SecurityTokenTTL,
	}
	guard := handler.NewGuard(tokens, accountService, securityService, logger)

	router := handler.NewRouter(handler.RouterDeps{
		Auth:     handler.NewAuthHandler(sessionService, accountService, cookies, ttls, logger),
		Accounts: handler.NewAccountHandler(accountService, cookies, ttls, logger),
		Security: handler.NewSecurityHandler(securityService, cookies, ttls, logger),
		Pages:    handler.NewPageHandler(securityService, logger),
		Guard:    guard,
		Edge:     handler.NewEdgeGate(tokens, logger),
		Health:   healthHandler,
		CORS: handler.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
