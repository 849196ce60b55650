package middleware

import (
	"maps"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/flagcontext-service/internal/adapters/http/dto"
	appctx "github.com/jsamuelsen/flagcontext-service/internal/app/context"
	"github.com/jsamuelsen/flagcontext-service/internal/domain"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/config"
	"github.com/jsamuelsen/flagcontext-service/internal/ports"
)

// ContextKeyFlagContext is the gin context key for the request FlagContext.
const ContextKeyFlagContext = "flag_context"

// FlagContext returns middleware that builds the FlagContext toggles are
// evaluated against for this request:
//   - UserID from the gateway subject header (see ExtractClaims)
//   - SessionID from the session header, falling back to the session cookie
//   - RemoteAddress from gin's ClientIP
//   - Properties from the configured property headers, then the static
//     properties appended through appctx.Enrich
//
// The context is stored with ports.WithFlagContext and wrapped in a
// per-request evaluation cache. A property key supplied twice aborts the
// request with 400 INVALID_ARGUMENT.
func FlagContext(authCfg *config.AuthConfig, cfg *config.FeatureContextConfig) gin.HandlerFunc {
	if cfg == nil {
		cfg = &config.FeatureContextConfig{}
	}

	headers := slices.Sorted(maps.Keys(cfg.PropertyHeaders))

	var providers []appctx.PropertyProvider
	if len(cfg.StaticProperties) > 0 {
		providers = append(providers, appctx.StaticProperties(cfg.StaticProperties))
	}

	return func(c *gin.Context) {
		claims := getOrExtractClaims(c, authCfg)

		b := domain.NewFlagContextBuilder().
			UserID(claims.Subject).
			SessionID(sessionID(c, cfg)).
			RemoteAddress(c.ClientIP())

		for _, header := range headers {
			if value := c.GetHeader(header); value != "" {
				b.AddProperty(cfg.PropertyHeaders[header], value)
			}
		}

		fc, err := b.Build()
		if err == nil && len(providers) > 0 {
			fc, err = appctx.Enrich(c.Request.Context(), fc, providers...)
		}

		if err != nil {
			status, errResp := dto.MapDomainError(err)
			c.AbortWithStatusJSON(status, errResp.WithTraceID(dto.GetTraceID(c)))

			return
		}

		ctx := ports.WithFlagContext(c.Request.Context(), fc)
		ctx = appctx.WithContext(ctx, appctx.New(ctx, fc))
		c.Request = c.Request.WithContext(ctx)
		c.Set(ContextKeyFlagContext, fc)

		c.Next()
	}
}

// GetFlagContext returns the FlagContext installed by the FlagContext
// middleware, or nil.
func GetFlagContext(c *gin.Context) *domain.FlagContext {
	if v, exists := c.Get(ContextKeyFlagContext); exists {
		if fc, ok := v.(*domain.FlagContext); ok {
			return fc
		}
	}

	return nil
}

func sessionID(c *gin.Context, cfg *config.FeatureContextConfig) string {
	if cfg.SessionHeader != "" {
		if id := c.GetHeader(cfg.SessionHeader); id != "" {
			return id
		}
	}

	if cfg.SessionCookie != "" {
		if id, err := c.Cookie(cfg.SessionCookie); err == nil {
			return id
		}
	}

	return ""
}
