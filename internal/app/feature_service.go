package app

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	reqctx "github.com/jsamuelsen/flagcontext-service/internal/app/context"
	"github.com/jsamuelsen/flagcontext-service/internal/domain"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/logging"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/telemetry"
	"github.com/jsamuelsen/flagcontext-service/internal/ports"
)

const defaultEvaluationConcurrency = 8

// FeatureService evaluates feature toggles against FlagContexts.
// It depends on port interfaces, not concrete implementations,
// and implements ports.FeatureFlags for the rest of the application.
//
// Example usage:
//
//	svc := app.NewFeatureService(app.FeatureServiceConfig{
//	    Toggles: fileRepo,
//	    Logger:  logger,
//	})
//
//	if svc.IsEnabled(ctx, "new-checkout", false) { ... }
type FeatureService struct {
	toggles     ports.ToggleRepository
	registry    *StrategyRegistry
	provider    ports.ContextProvider
	metrics     *telemetry.FlagMetrics
	concurrency int
	logger      *slog.Logger
}

// FeatureServiceConfig contains configuration for the feature service.
type FeatureServiceConfig struct {
	Toggles ports.ToggleRepository

	// Registry defaults to the built-in strategies.
	Registry *StrategyRegistry

	// ContextProvider defaults to ports.RequestContextProvider.
	ContextProvider ports.ContextProvider

	// Metrics is optional.
	Metrics *telemetry.FlagMetrics

	// Concurrency bounds EvaluateAll. Defaults to 8.
	Concurrency int

	Logger *slog.Logger
}

var _ ports.FeatureFlags = (*FeatureService)(nil)

// NewFeatureService creates a feature service with the provided dependencies.
func NewFeatureService(cfg FeatureServiceConfig) *FeatureService {
	logger := slog.Default()
	if cfg.Logger != nil {
		logger = cfg.Logger
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewStrategyRegistry()
	}

	provider := cfg.ContextProvider
	if provider == nil {
		provider = ports.RequestContextProvider
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultEvaluationConcurrency
	}

	return &FeatureService{
		toggles:     cfg.Toggles,
		registry:    registry,
		provider:    provider,
		metrics:     cfg.Metrics,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "app.FeatureService")),
	}
}

// IsEnabled implements ports.FeatureFlags. Unknown toggles and evaluation
// failures yield defaultValue.
func (s *FeatureService) IsEnabled(ctx context.Context, flag string, defaultValue bool) bool {
	eval, err := s.Evaluate(ctx, flag)
	if err != nil {
		s.loggerFor(ctx).DebugContext(ctx, "toggle evaluation fell back to default",
			slog.String("flag", flag),
			slog.Bool("default", defaultValue),
			slog.Any("error", err),
		)

		s.metrics.RecordEvaluation(ctx, flag, defaultValue, domain.ReasonDefault)

		return defaultValue
	}

	return eval.Enabled
}

// Evaluate implements ports.FeatureFlags. The FlagContext comes from the
// request context when one is installed (results are then memoized per
// request), otherwise from the configured ContextProvider.
func (s *FeatureService) Evaluate(ctx context.Context, flag string) (*domain.Evaluation, error) {
	if rc := reqctx.FromContext(ctx); rc != nil {
		return rc.GetOrEvaluate(flag, func(ctx context.Context, fc *domain.FlagContext) (*domain.Evaluation, error) {
			return s.EvaluateFor(ctx, flag, fc)
		})
	}

	return s.EvaluateFor(ctx, flag, s.provider.FlagContext(ctx))
}

// EvaluateFor evaluates flag against an explicit FlagContext.
func (s *FeatureService) EvaluateFor(ctx context.Context, flag string, fc *domain.FlagContext) (*domain.Evaluation, error) {
	toggle, err := s.toggles.GetToggle(ctx, flag)
	if err != nil {
		return nil, fmt.Errorf("getting toggle %q: %w", flag, err)
	}

	eval := s.evaluateToggle(ctx, toggle, fc)

	s.loggerFor(ctx).Log(ctx, logging.LevelTrace, "evaluated toggle",
		slog.String("flag", eval.Flag),
		slog.Bool("enabled", eval.Enabled),
		slog.String("reason", eval.Reason),
		slog.Any("flag_context", fc),
	)

	return eval, nil
}

// EvaluateAll evaluates every known toggle for fc concurrently. Each worker
// gets its own clone of fc, so strategies never share a property map.
// Results are sorted by toggle name.
func (s *FeatureService) EvaluateAll(ctx context.Context, fc *domain.FlagContext) ([]*domain.Evaluation, error) {
	toggles, err := s.toggles.ListToggles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing toggles: %w", err)
	}

	fns := make([]func(context.Context) (*domain.Evaluation, error), len(toggles))
	for i, toggle := range toggles {
		local := fc.Clone()
		fns[i] = func(ctx context.Context) (*domain.Evaluation, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			return s.evaluateToggle(ctx, toggle, local), nil
		}
	}

	evals, err := ParallelLimit(ctx, s.concurrency, fns...)
	if err != nil {
		return nil, fmt.Errorf("evaluating toggles: %w", err)
	}

	s.loggerFor(ctx).DebugContext(ctx, "evaluated all toggles", slog.Int("count", len(evals)))

	return evals, nil
}

// ListToggles returns every toggle definition sorted by name.
func (s *FeatureService) ListToggles(ctx context.Context) ([]*domain.FeatureToggle, error) {
	toggles, err := s.toggles.ListToggles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing toggles: %w", err)
	}

	return toggles, nil
}

// GetToggle returns a single toggle definition.
func (s *FeatureService) GetToggle(ctx context.Context, name string) (*domain.FeatureToggle, error) {
	toggle, err := s.toggles.GetToggle(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("getting toggle %q: %w", name, err)
	}

	return toggle, nil
}

func (s *FeatureService) evaluateToggle(
	ctx context.Context,
	toggle *domain.FeatureToggle,
	fc *domain.FlagContext,
) *domain.Evaluation {
	eval := &domain.Evaluation{Flag: toggle.Name}

	switch {
	case !toggle.Enabled:
		eval.Reason = domain.ReasonDisabled
	case len(toggle.Strategies) == 0:
		eval.Enabled = true
		eval.Reason = domain.ReasonNoStrategies
	default:
		eval.Reason = domain.ReasonNoStrategyMatched

		for i := range toggle.Strategies {
			def := &toggle.Strategies[i]
			if s.strategyMatches(ctx, toggle.Name, def, fc) {
				eval.Enabled = true
				eval.Strategy = def.Name
				eval.Reason = domain.ReasonStrategyMatched

				break
			}
		}
	}

	s.metrics.RecordEvaluation(ctx, eval.Flag, eval.Enabled, eval.Reason)

	return eval
}

func (s *FeatureService) strategyMatches(
	ctx context.Context,
	toggleName string,
	def *domain.StrategyDefinition,
	fc *domain.FlagContext,
) bool {
	strategy, ok := s.registry.Lookup(def.Name)
	if !ok {
		s.loggerFor(ctx).WarnContext(ctx, "unknown strategy",
			slog.String("flag", toggleName),
			slog.String("strategy", def.Name),
		)
		s.metrics.RecordUnknownStrategy(ctx, def.Name)

		return false
	}

	if !def.ConstraintsMatch(fc) {
		return false
	}

	params := def.Parameters
	if params["groupId"] == "" {
		params = maps.Clone(params)
		if params == nil {
			params = make(map[string]string, 1)
		}

		params["groupId"] = toggleName
	}

	return strategy.IsEnabled(params, fc)
}

func (s *FeatureService) loggerFor(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, s.logger)
}
