package dto

import (
	"maps"
	"slices"

	"github.com/jsamuelsen/flagcontext-service/internal/domain"
)

// FlagContextRequest is the JSON form of a FlagContext.
type FlagContextRequest struct {
	UserID        string            `json:"userId"        validate:"max=256"`
	SessionID     string            `json:"sessionId"     validate:"max=256"`
	RemoteAddress string            `json:"remoteAddress" validate:"omitempty,ip"`
	Properties    map[string]string `json:"properties"    validate:"omitempty,max=64,dive,keys,notempty,endkeys"`
}

// ToFlagContext builds the domain FlagContext. Properties are added in sorted
// key order.
func (r *FlagContextRequest) ToFlagContext() (*domain.FlagContext, error) {
	b := domain.NewFlagContextBuilder().
		UserID(r.UserID).
		SessionID(r.SessionID).
		RemoteAddress(r.RemoteAddress)

	for _, key := range slices.Sorted(maps.Keys(r.Properties)) {
		b.AddProperty(key, r.Properties[key])
	}

	return b.Build()
}

// EvaluateRequest evaluates toggles against an explicit context.
// An empty Flags list evaluates every known toggle.
type EvaluateRequest struct {
	Context FlagContextRequest `json:"context"`
	Flags   []string           `json:"flags"   validate:"omitempty,max=100,unique,dive,togglename,max=256"`
}

// EvaluationResponse is the result of evaluating one toggle.
type EvaluationResponse struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Strategy string `json:"strategy,omitempty"`
	Reason   string `json:"reason"`
}

// EvaluateResponse lists evaluation results in request order, or by name
// when every toggle was evaluated.
type EvaluateResponse struct {
	Evaluations []EvaluationResponse `json:"evaluations"`
}

// NewEvaluationResponse converts a domain Evaluation.
func NewEvaluationResponse(e *domain.Evaluation) EvaluationResponse {
	return EvaluationResponse{
		Name:     e.Flag,
		Enabled:  e.Enabled,
		Strategy: e.Strategy,
		Reason:   e.Reason,
	}
}

// FeatureResponse describes a toggle definition.
type FeatureResponse struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Enabled     bool               `json:"enabled"`
	Strategies  []StrategyResponse `json:"strategies"`
}

// StrategyResponse describes one activation strategy of a toggle.
type StrategyResponse struct {
	Name        string               `json:"name"`
	Parameters  map[string]string    `json:"parameters,omitempty"`
	Constraints []ConstraintResponse `json:"constraints,omitempty"`
}

// ConstraintResponse describes a strategy constraint.
type ConstraintResponse struct {
	ContextName string   `json:"contextName"`
	Operator    string   `json:"operator"`
	Values      []string `json:"values"`
}

// NewFeatureResponse converts a domain FeatureToggle.
func NewFeatureResponse(t *domain.FeatureToggle) FeatureResponse {
	resp := FeatureResponse{
		Name:        t.Name,
		Description: t.Description,
		Enabled:     t.Enabled,
		Strategies:  make([]StrategyResponse, 0, len(t.Strategies)),
	}

	for _, s := range t.Strategies {
		sr := StrategyResponse{Name: s.Name, Parameters: s.Parameters}
		for _, c := range s.Constraints {
			sr.Constraints = append(sr.Constraints, ConstraintResponse{
				ContextName: c.ContextName,
				Operator:    c.Operator,
				Values:      c.Values,
			})
		}

		resp.Strategies = append(resp.Strategies, sr)
	}

	return resp
}
