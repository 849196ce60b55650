// Package context provides request-scoped flag evaluation state.
//
// # Pinned FlagContext
//
// Each request carries one FlagContext. RequestContext pins it together with
// a memoization cache so repeated checks of the same toggle agree:
//
//	rc := context.New(ctx, fc)
//	ctx = context.WithContext(ctx, rc)
//
//	eval, err := rc.GetOrEvaluate("new-checkout", func(ctx context.Context, fc *domain.FlagContext) (*domain.Evaluation, error) {
//	    return features.EvaluateFor(ctx, "new-checkout", fc)
//	})
//
// # Enrichment
//
// PropertyProviders add properties to a FlagContext without touching the
// caller's copy:
//
//	enriched, err := context.Enrich(ctx, fc, context.StaticProperties{"region": "eu-west-1"})
//
// Enrich clones the base context first, then appends each provider's
// properties. Duplicate keys fail with domain.ErrInvalidArgument.
package context
