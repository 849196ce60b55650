package context

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/jsamuelsen/flagcontext-service/internal/domain"
)

type ctxKey struct{}

// EvaluateFunc evaluates a single toggle against a FlagContext.
type EvaluateFunc func(ctx context.Context, fc *domain.FlagContext) (*domain.Evaluation, error)

// RequestContext pins the FlagContext for one request and memoizes toggle
// evaluations so a flag checked several times in a request answers the same way.
type RequestContext struct {
	ctx         context.Context
	flagContext *domain.FlagContext
	cache       sync.Map // flag name -> *domain.Evaluation
}

// New creates a RequestContext wrapping ctx. fc may be nil; FlagContext then
// returns an empty context.
func New(ctx context.Context, fc *domain.FlagContext) *RequestContext {
	if fc == nil {
		fc = &domain.FlagContext{Properties: map[string]string{}}
	}

	return &RequestContext{ctx: ctx, flagContext: fc}
}

// FromContext extracts RequestContext, returns nil if not present.
func FromContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	if rc, ok := ctx.Value(ctxKey{}).(*RequestContext); ok {
		return rc
	}
	return nil
}

// WithContext stores RequestContext in the context.
func WithContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FlagContext returns the FlagContext pinned for this request.
func (rc *RequestContext) FlagContext() *domain.FlagContext {
	return rc.flagContext
}

// GetOrEvaluate returns the cached evaluation for flag or runs evalFn and
// caches its result. Errors are not cached.
// Thread-safe via sync.Map.
func (rc *RequestContext) GetOrEvaluate(flag string, evalFn EvaluateFunc) (*domain.Evaluation, error) {
	if cached, ok := rc.cache.Load(flag); ok {
		return cached.(*domain.Evaluation), nil
	}

	eval, err := evalFn(rc.ctx, rc.flagContext)
	if err != nil {
		return nil, err
	}

	// LoadOrStore handles the race between two first evaluations.
	actual, _ := rc.cache.LoadOrStore(flag, eval)
	return actual.(*domain.Evaluation), nil
}

// Evaluations returns every memoized evaluation sorted by flag name.
func (rc *RequestContext) Evaluations() []*domain.Evaluation {
	var result []*domain.Evaluation
	rc.cache.Range(func(_, value any) bool {
		result = append(result, value.(*domain.Evaluation))
		return true
	})

	slices.SortFunc(result, func(a, b *domain.Evaluation) int {
		return strings.Compare(a.Flag, b.Flag)
	})

	return result
}

// Context returns the underlying context.
func (rc *RequestContext) Context() context.Context {
	return rc.ctx
}
