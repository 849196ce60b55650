// Package ports defines interfaces for external dependencies.
// Ports are contracts that adapters implement, allowing the application layer
// to depend on abstractions rather than concrete implementations.
//
// Port Design Principles:
//   - Context as first parameter (always) for cancellation and deadlines
//   - Return domain types, never external DTOs or infrastructure types
//   - Error returns use domain error types (ErrNotFound, ErrUnavailable, etc.)
//   - Keep interfaces small and focused
package ports

import (
	"context"

	"github.com/jsamuelsen/flagcontext-service/internal/domain"
)

// ToggleRepository provides feature toggle definitions.
// Implementations may read a local file or poll a remote toggle server.
//
// Example usage in application layer:
//
//	type FeatureService struct {
//	    toggles ports.ToggleRepository
//	}
type ToggleRepository interface {
	// GetToggle returns the toggle with the given name.
	// Returns domain.ErrNotFound if it does not exist.
	GetToggle(ctx context.Context, name string) (*domain.FeatureToggle, error)

	// ListToggles returns every known toggle sorted by name.
	// Returns domain.ErrUnavailable if definitions have never been loaded.
	ListToggles(ctx context.Context) ([]*domain.FeatureToggle, error)
}

// Strategy decides whether a toggle is on for a FlagContext.
// Strategies must not mutate the context.
type Strategy interface {
	// Name is the identifier used in toggle definitions (e.g. "userWithId").
	Name() string

	// IsEnabled evaluates the strategy with its configured parameters.
	IsEnabled(params map[string]string, fc *domain.FlagContext) bool
}
