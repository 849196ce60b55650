// Command service serves feature toggle evaluations over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jsamuelsen/flagcontext-service/internal/adapters/clients"
	"github.com/jsamuelsen/flagcontext-service/internal/adapters/clients/acl"
	"github.com/jsamuelsen/flagcontext-service/internal/adapters/http"
	"github.com/jsamuelsen/flagcontext-service/internal/adapters/http/handlers"
	"github.com/jsamuelsen/flagcontext-service/internal/adapters/toggles"
	"github.com/jsamuelsen/flagcontext-service/internal/app"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/config"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/logging"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/telemetry"
	"github.com/jsamuelsen/flagcontext-service/internal/ports"
)

// Set with -ldflags "-X main.Version=... -X main.Commit=... -X main.BuildTime=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	profile := os.Getenv("APP_ENVIRONMENT")
	if profile == "" {
		profile = "local"
	}

	cfg, err := config.Load(profile, config.WithDir(os.Getenv("APP_CONFIG_DIR")))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
	logging.SetDefault(logger)

	logger.Info("starting service",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("environment", cfg.App.Environment),
	)

	telProvider, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if shutdownErr := telProvider.Shutdown(flushCtx); shutdownErr != nil {
			logger.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	healthRegistry := ports.NewHealthRegistry()

	registry := app.NewStrategyRegistry()

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	toggleRepo, err := newToggleSource(bgCtx, cfg, logger, healthRegistry, registry.Names())
	if err != nil {
		return err
	}

	flagMetrics, err := telemetry.NewFlagMetrics()
	if err != nil {
		return fmt.Errorf("creating flag metrics: %w", err)
	}

	featureService := app.NewFeatureService(app.FeatureServiceConfig{
		Toggles:     toggleRepo,
		Registry:    registry,
		Metrics:     flagMetrics,
		Concurrency: cfg.Features.Concurrency,
		Logger:      logger,
	})

	buildInfo := handlers.NewBuildInfo(Version, Commit, BuildTime)
	healthHandler := handlers.NewHealthHandler(healthRegistry, buildInfo)
	featuresHandler := handlers.NewFeaturesHandler(featureService)

	server := http.New(&cfg.Server, logger)

	routerCfg := http.RouterConfig{
		Logger:          logger,
		AuthConfig:      &cfg.Auth,
		AppConfig:       &cfg.App,
		HealthHandler:   healthHandler,
		FeaturesHandler: featuresHandler,
		FeatureContext:  &cfg.Features.Context,
		Timeout:         http.DefaultRequestTimeout,
	}
	http.SetupRouter(server.Engine(), routerCfg)

	serverErr, err := server.Start()
	if err != nil {
		return err
	}

	err = waitForShutdown(ctx, logger, server, serverErr, cfg.Server.ShutdownTimeout)
	stopBackground()

	return err
}

// newToggleSource builds the configured toggle repository, registers its
// health checks and starts its background refresh (file watcher or poller)
// bound to ctx.
func newToggleSource(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	health ports.HealthRegistry,
	strategies []string,
) (ports.ToggleRepository, error) {
	if cfg.Features.Source == config.FeatureSourceRemote {
		return newRemoteToggleSource(ctx, cfg, logger, health, strategies)
	}

	repo, err := toggles.NewFileRepository(cfg.Features.File.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("loading toggle file: %w", err)
	}

	if err := health.Register(repo); err != nil {
		return nil, fmt.Errorf("registering toggle file health check: %w", err)
	}

	if cfg.Features.File.Watch {
		watcher, err := toggles.NewWatcher(toggles.WatcherConfig{
			Path:     repo.Path(),
			Target:   repo,
			Debounce: cfg.Features.File.Debounce,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating toggle file watcher: %w", err)
		}

		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("toggle file watcher stopped", slog.Any("error", err))
			}
		}()
	}

	return repo, nil
}

func newRemoteToggleSource(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	health ports.HealthRegistry,
	strategies []string,
) (ports.ToggleRepository, error) {
	remote := cfg.Features.Remote

	instanceID := remote.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	var authFunc func(*nethttp.Request)
	if remote.APIToken != "" {
		authFunc = func(req *nethttp.Request) {
			req.Header.Set("Authorization", remote.APIToken)
		}
	}

	httpClient, err := clients.New(&clients.Config{
		BaseURL:     remote.BaseURL,
		ServiceName: "toggle-server",
		Timeout:     cfg.Client.Timeout,
		Retry:       cfg.Client.Retry,
		Circuit:     cfg.Client.CircuitBreaker,
		Transport:   cfg.Client.Transport,
		Headers: map[string]string{
			"UNLEASH-APPNAME":    remote.AppName,
			"UNLEASH-INSTANCEID": instanceID,
		},
		AuthFunc: authFunc,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating toggle server client: %w", err)
	}

	client := acl.NewToggleClient(acl.ToggleClientConfig{
		Client:          httpClient,
		AppName:         remote.AppName,
		InstanceID:      instanceID,
		RefreshInterval: remote.RefreshInterval,
		Strategies:      strategies,
		Logger:          logger,
	})

	if err := health.Register(client); err != nil {
		return nil, fmt.Errorf("registering toggle server health check: %w", err)
	}

	if err := health.Register(httpClient.CircuitBreaker()); err != nil {
		return nil, fmt.Errorf("registering circuit breaker health check: %w", err)
	}

	if remote.Register {
		if err := client.Register(ctx); err != nil {
			logger.Warn("toggle server registration failed", slog.Any("error", err))
		}
	}

	go client.Poll(ctx)

	return client, nil
}

// waitForShutdown blocks until SIGINT/SIGTERM or a server error, then
// shuts the server down within shutdownTimeout.
func waitForShutdown(
	ctx context.Context,
	logger *slog.Logger,
	server *http.Server,
	serverErr <-chan error,
	shutdownTimeout time.Duration,
) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-sigCtx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	logger.Info("initiating graceful shutdown", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("shutdown complete")

	return nil
}
