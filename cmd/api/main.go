package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/handling-fee/internal/di"
	"github.com/hanko-field/handling-fee/internal/handlers"
	"github.com/hanko-field/handling-fee/internal/platform/config"
	"github.com/hanko-field/handling-fee/internal/platform/events"
	pfirestore "github.com/hanko-field/handling-fee/internal/platform/firestore"
	"github.com/hanko-field/handling-fee/internal/platform/observability"
	"github.com/hanko-field/handling-fee/internal/platform/secrets"
	"github.com/hanko-field/handling-fee/internal/repositories"
	firestoreRepo "github.com/hanko-field/handling-fee/internal/repositories/firestore"
	"github.com/hanko-field/handling-fee/internal/repositories/rediscache"
	"github.com/hanko-field/handling-fee/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("handling-fee")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	eventLogger := observability.EventLogger(logger.Named("events"))

	registry, err := newRegistry(ctx, cfg, logger, eventLogger)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	containerOpts := []di.Option{
		di.WithEventLogger(eventLogger),
		di.WithBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
	}
	publisher, closePublisher, err := newSettingsPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise settings publisher", zap.Error(err))
	}
	if publisher != nil {
		containerOpts = append(containerOpts, di.WithSettingsPublisher(publisher))
	} else {
		logger.Info("pubsub settings topic not configured; settings events disabled")
	}

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		closePublisher()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
			handlers.WithHealthSystemService(container.Services.System),
		)),
		handlers.WithCartRoutes(handlers.NewFeeHandlers(container.Services.HandlingFees,
			handlers.WithRecalculateRateLimit(cfg.RateLimits.RecalculatePerSecond, cfg.RateLimits.RecalculateBurst),
		).Routes),
		handlers.WithAdminRoutes(handlers.NewAdminHandlingFeeHandlers(container.Services.Settings, cfg.Security.AdminToken).Routes),
	)
	if cfg.Security.AdminToken == "" {
		logger.Warn("admin token not configured; admin routes are unauthenticated")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("handling fee api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newRegistry connects Firestore and, when configured, puts the Redis cache in front
// of the settings document.
func newRegistry(ctx context.Context, cfg config.Config, logger *zap.Logger, eventLogger func(context.Context, string, map[string]any)) (repositories.Registry, error) {
	provider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := provider.Client(ctx); err != nil {
		return nil, fmt.Errorf("firestore: %w", err)
	}
	closers := []func(context.Context) error{provider.Close}
	checks := []repositories.DependencyCheck{{Name: "firestore", Check: provider.Ping}}

	carts, err := firestoreRepo.NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	var settings repositories.HandlingFeeSettingsRepository
	settings, err = firestoreRepo.NewSettingsRepository(provider)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func(context.Context) error { return rdb.Close() })
		checks = append(checks, repositories.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		settings, err = rediscache.NewSettingsCache(settings, rdb,
			rediscache.WithKeyPrefix(cfg.Redis.KeyPrefix),
			rediscache.WithTTL(cfg.Redis.SettingsTTL),
			rediscache.WithLogger(eventLogger),
		)
		if err != nil {
			return nil, err
		}
		logger.Info("redis settings cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.SettingsTTL))
	}

	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return repositories.NewRegistry(repositories.RegistryDeps{
		Carts:    carts,
		Settings: settings,
		Health:   health,
		Closers:  closers,
	})
}

// newSettingsPublisher returns a nil publisher when no topic is configured.
func newSettingsPublisher(ctx context.Context, cfg config.Config) (services.SettingsEventPublisher, func(), error) {
	topicName := strings.TrimSpace(cfg.PubSub.SettingsTopic)
	if topicName == "" {
		return nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, func() {}, fmt.Errorf("pubsub: %w", err)
	}
	topic := client.Topic(topicName)
	publisher, err := events.NewPubSubSettingsPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, func() {}, err
	}
	return publisher, func() {
		topic.Stop()
		_ = client.Close()
	}, nil
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	project := lookup("API_SECRETS_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallback := lookup("API_SECRETS_FALLBACK_FILE")
	if fallback == "" {
		fallback = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(project),
		secrets.WithFallbackFile(fallback),
	}
	if credentials := lookup("API_SECRETS_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames makes the admin token mandatory outside local development.
func requiredSecretNames(env map[string]string) []string {
	switch strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"])) {
	case "", "local", "dev":
		return nil
	default:
		return []string{"Security.AdminToken"}
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}
