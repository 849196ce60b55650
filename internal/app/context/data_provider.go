package context

import (
	"context"
	"fmt"

	"github.com/jsamuelsen/flagcontext-service/internal/domain"
)

// PropertyProvider contributes extra properties to a FlagContext.
// Useful for pre-registering known data sources (tenant lookups, static
// deployment metadata).
type PropertyProvider interface {
	// Name identifies the provider in errors and logs.
	Name() string

	// Properties returns the properties to append. It must not mutate fc.
	Properties(ctx context.Context, fc *domain.FlagContext) (map[string]string, error)
}

// StaticProperties is a PropertyProvider returning the same map every time.
type StaticProperties map[string]string

// Name implements PropertyProvider.
func (StaticProperties) Name() string { return "static" }

// Properties implements PropertyProvider.
func (s StaticProperties) Properties(context.Context, *domain.FlagContext) (map[string]string, error) {
	return s, nil
}

// Enrich returns a clone of base with every provider's properties appended
// in order. base is never modified. A provider returning a key that is
// already present fails with domain.ErrInvalidArgument.
func Enrich(ctx context.Context, base *domain.FlagContext, providers ...PropertyProvider) (*domain.FlagContext, error) {
	if base == nil {
		return nil, ErrNoFlagContext
	}

	enriched := base.Clone()

	for _, provider := range providers {
		props, err := provider.Properties(ctx, enriched)
		if err != nil {
			return nil, fmt.Errorf("property provider %q: %w", provider.Name(), err)
		}

		if err := enriched.AppendProperties(props); err != nil {
			return nil, fmt.Errorf("property provider %q: %w", provider.Name(), err)
		}
	}

	return enriched, nil
}
