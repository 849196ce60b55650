package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/flagcontext-service/internal/adapters/http/handlers"
	"github.com/jsamuelsen/flagcontext-service/internal/adapters/http/middleware"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/config"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/telemetry"
)

// DefaultRequestTimeout is the default deadline for /api/v1 requests.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig contains everything SetupRouter wires.
type RouterConfig struct {
	Logger *slog.Logger

	// AuthConfig names the gateway claim headers; when Enabled the feature
	// routes require a subject.
	AuthConfig *config.AuthConfig

	AppConfig *config.AppConfig

	HealthHandler *handlers.HealthHandler

	// FeaturesHandler is optional; without it no /api/v1 routes exist.
	FeaturesHandler *handlers.FeaturesHandler

	// FeatureContext controls how the per-request FlagContext is built.
	FeatureContext *config.FeatureContextConfig

	// Timeout is the /api/v1 request deadline. Zero disables it.
	Timeout time.Duration
}

// SetupRouter installs the middleware chain and routes on engine.
//
// Global chain, outermost first: Recovery, RequestID, CorrelationID,
// OpenTelemetry, Logging. /-/ probes bypass everything below that.
// /api/v1 adds Timeout, then RequireAuth (when enabled) and FlagContext.
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	appName := ""
	if cfg.AppConfig != nil {
		appName = cfg.AppConfig.Name
	}

	engine.Use(middleware.Recovery(cfg.Logger), middleware.RequestID(), middleware.CorrelationID())
	engine.Use(telemetry.Middleware(appName)...)
	engine.Use(middleware.Logging(cfg.Logger))

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterHealthRoutesOnEngine(engine)
	}

	if cfg.FeaturesHandler == nil {
		return
	}

	api := engine.Group("/api/v1")
	if cfg.Timeout > 0 {
		api.Use(middleware.Timeout(cfg.Timeout))
	}

	if cfg.AuthConfig != nil && cfg.AuthConfig.Enabled {
		api.Use(middleware.RequireAuth(cfg.AuthConfig))
	}

	api.Use(middleware.FlagContext(cfg.AuthConfig, cfg.FeatureContext))
	cfg.FeaturesHandler.RegisterFeatureRoutes(api)
}
