// Package main is the entry point for the relay coordination server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/relayops/relay/internal/auth"
	"github.com/relayops/relay/internal/command"
	"github.com/relayops/relay/internal/config"
	"github.com/relayops/relay/internal/event"
	"github.com/relayops/relay/internal/observability"
	"github.com/relayops/relay/internal/process"
	"github.com/relayops/relay/internal/stream"
	"github.com/relayops/relay/internal/transport"
	"github.com/relayops/relay/internal/worker"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "relayd", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	stores, err := buildStores(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}
	if stores.closer != nil {
		defer stores.closer()
	}

	signer := auth.NewSigner(cfg.Worker.SigningSecret)
	authority := auth.NewAuthority(
		stores.tokens, signer, cfg.Worker.APIKey,
		cfg.Auth.TokenTTL, cfg.Auth.FreshnessWindow,
		auth.WithAPIKeyStore(stores.apiKeys),
	)

	registry := stream.NewRegistry(cfg.Stream.Buffer,
		stream.WithMetrics(metrics), stream.WithLogger(logger))
	notifications := stream.NewNotificationService(stores.notifications, registry,
		stream.WithNotificationMetrics(metrics))

	// Deleting a failed process removes its tokens, events, and
	// notifications in the same pass.
	procs := process.NewService(stores.processes,
		process.WithCascades(stores.tokens, stores.events, notifications),
		process.WithMetrics(metrics))

	workerClient := worker.NewClient(cfg.Worker, signer,
		worker.WithMetrics(metrics), worker.WithLogger(logger))

	limiter, limiterCloser, err := buildRateLimiter(cfg.RateLimit, logger)
	if err != nil {
		logger.Error("rate limiter initialization failed", zap.Error(err))
		return 1
	}
	if limiterCloser != nil {
		defer limiterCloser()
	}

	runner := command.NewRunner(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize,
		command.WithRunnerMetrics(metrics), command.WithRunnerLogger(logger))
	runner.Start(ctx)

	dispatcher := command.NewDispatcher(procs, workerClient, authority, notifications,
		limiter, runner,
		command.WithMetrics(metrics), command.WithLogger(logger))

	ingestor := event.NewIngestor(stores.events, procs, registry, notifications,
		event.WithMetrics(metrics), event.WithLogger(logger))

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)

	handlers := &transport.Handlers{
		Processes:     procs,
		Dispatcher:    dispatcher,
		Ingestor:      ingestor,
		Notifications: notifications,
		Authority:     authority,
		SSE:           stream.NewSSEHandler(registry, cfg.Stream.HeartbeatInterval, logger),
		Logger:        logger,
		Authenticate:  transport.JWTAuthenticator(cfg.Identity, jwks),
		Metrics:       metrics,
		Checks:        observability.ReadinessChecks{Store: stores.health},
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      observability.TracingMiddleware(handlers.NewRouter()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("store", cfg.Store.Driver),
		zap.String("ratelimit", cfg.RateLimit.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Drain queued background commands before the stores close.
	runner.Shutdown()

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// stores bundles the persistence layer behind one driver choice.
type stores struct {
	processes     process.Store
	tokens        auth.TokenStore
	apiKeys       auth.APIKeyStore
	events        event.Store
	notifications stream.NotificationStore
	health        observability.HealthChecker
	closer        func()
}

// buildStores creates the store set for the configured driver.
func buildStores(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*stores, error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory stores")
		return &stores{
			processes:     process.NewMemoryStore(),
			tokens:        auth.NewMemoryTokenStore(),
			apiKeys:       auth.NewMemoryAPIKeyStore(),
			events:        event.NewMemoryStore(),
			notifications: stream.NewMemoryNotificationStore(),
		}, nil

	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("store: ping: %w", err)
		}

		procStore := process.NewPgStore(pool)
		return &stores{
			processes:     procStore,
			tokens:        auth.NewPgTokenStore(pool),
			apiKeys:       auth.NewPgAPIKeyStore(pool),
			events:        event.NewPgStore(pool),
			notifications: stream.NewPgNotificationStore(pool),
			health:        procStore,
			closer:        pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// buildRateLimiter creates the command gate for the configured driver.
func buildRateLimiter(cfg config.RateLimitConfig, logger *zap.Logger) (command.RateLimiter, func(), error) {
	switch cfg.Driver {
	case "memory":
		return command.NewMemoryRateLimiter(cfg.Interval), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ratelimit: redis ping: %w", err)
		}
		limiter := command.NewRedisRateLimiter(client, cfg.Interval, logger)
		return limiter, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ratelimit driver: %q", cfg.Driver)
	}
}
