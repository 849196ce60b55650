package ports

import (
	"context"

	"github.com/jsamuelsen/flagcontext-service/internal/domain"
)

// FeatureFlags defines the contract for feature flag evaluation.
// Callers check enablement without knowing where toggle definitions come
// from (local YAML file or a remote Unleash-compatible server).
//
// Design principles:
//   - Always provide default values for graceful degradation
//   - The per-request FlagContext travels in ctx (see WithFlagContext)
//   - Synchronous evaluation (toggle refreshes happen in adapters)
//
// Example usage:
//
//	if flags.IsEnabled(ctx, "new-checkout-flow", false) {
//	    return s.newCheckoutFlow(ctx, cart)
//	}
//	return s.legacyCheckoutFlow(ctx, cart)
type FeatureFlags interface {
	// IsEnabled checks if a feature toggle is on for the FlagContext in ctx.
	// Returns defaultValue if the toggle doesn't exist or evaluation fails.
	IsEnabled(ctx context.Context, flag string, defaultValue bool) bool

	// Evaluate returns the full evaluation result including the matching
	// strategy and reason. Returns domain.ErrNotFound for unknown toggles.
	Evaluate(ctx context.Context, flag string) (*domain.Evaluation, error)
}

// ContextProvider supplies the FlagContext for the current request or
// session. The HTTP layer installs one per request; background jobs can use
// a static provider.
type ContextProvider interface {
	FlagContext(ctx context.Context) *domain.FlagContext
}

// ContextProviderFunc adapts a function to ContextProvider.
type ContextProviderFunc func(ctx context.Context) *domain.FlagContext

// FlagContext implements ContextProvider.
func (f ContextProviderFunc) FlagContext(ctx context.Context) *domain.FlagContext {
	return f(ctx)
}

type flagContextKey struct{}

// WithFlagContext stores the FlagContext for flag evaluation in ctx.
func WithFlagContext(ctx context.Context, fc *domain.FlagContext) context.Context {
	return context.WithValue(ctx, flagContextKey{}, fc)
}

// GetFlagContext retrieves the FlagContext from ctx, or nil if not present.
func GetFlagContext(ctx context.Context) *domain.FlagContext {
	if ctx == nil {
		return nil
	}

	if fc, ok := ctx.Value(flagContextKey{}).(*domain.FlagContext); ok {
		return fc
	}

	return nil
}

// RequestContextProvider is the ContextProvider backed by WithFlagContext.
// It returns an empty FlagContext when none was stored.
var RequestContextProvider = ContextProviderFunc(func(ctx context.Context) *domain.FlagContext {
	if fc := GetFlagContext(ctx); fc != nil {
		return fc
	}

	return &domain.FlagContext{Properties: map[string]string{}}
})
