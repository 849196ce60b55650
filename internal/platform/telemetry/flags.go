package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FlagMetrics holds feature toggle evaluation metrics.
type FlagMetrics struct {
	evaluations metric.Int64Counter
	unknown     metric.Int64Counter
}

// NewFlagMetrics creates toggle evaluation metrics on the global meter provider.
func NewFlagMetrics() (*FlagMetrics, error) {
	meter := otel.Meter(instrumentationName)

	evaluations, err := meter.Int64Counter(
		"feature_flag.evaluation.total",
		metric.WithDescription("Total number of feature toggle evaluations"),
	)
	if err != nil {
		return nil, err
	}

	unknown, err := meter.Int64Counter(
		"feature_flag.unknown_strategy.total",
		metric.WithDescription("Strategies referenced by toggles but not registered"),
	)
	if err != nil {
		return nil, err
	}

	return &FlagMetrics{evaluations: evaluations, unknown: unknown}, nil
}

// RecordEvaluation counts one evaluation. Safe on a nil receiver.
func (m *FlagMetrics) RecordEvaluation(ctx context.Context, flag string, enabled bool, reason string) {
	if m == nil {
		return
	}

	m.evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("feature_flag.key", flag),
		attribute.Bool("feature_flag.enabled", enabled),
		attribute.String("feature_flag.reason", reason),
	))
}

// RecordUnknownStrategy counts a strategy name with no registered implementation.
func (m *FlagMetrics) RecordUnknownStrategy(ctx context.Context, strategy string) {
	if m == nil {
		return
	}

	m.unknown.Add(ctx, 1, metric.WithAttributes(attribute.String("feature_flag.strategy", strategy)))
}
