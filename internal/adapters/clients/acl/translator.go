package acl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/jsamuelsen/flagcontext-service/internal/domain"
)

// featuresResponse is the body of GET /api/client/features. The external
// types below never leave this package.
type featuresResponse struct {
	Version  int               `json:"version"`
	Features []externalFeature `json:"features"`
}

type externalFeature struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Enabled     bool               `json:"enabled"`
	Strategies  []externalStrategy `json:"strategies"`
}

type externalStrategy struct {
	Name        string               `json:"name"`
	Parameters  map[string]any       `json:"parameters"`
	Constraints []externalConstraint `json:"constraints"`
}

type externalConstraint struct {
	ContextName string   `json:"contextName"`
	Operator    string   `json:"operator"`
	Values      []string `json:"values"`
	Value       string   `json:"value"`
	Inverted    bool     `json:"inverted"`
}

// decodeJSON decodes body into a T and closes it.
func decodeJSON[T any](body io.ReadCloser) (*T, error) {
	if body == nil {
		return nil, errors.New("decoding response: empty body")
	}
	defer func() { _ = body.Close() }()

	var out T
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &out, nil
}

// translateFeatures converts the features payload. The first invalid feature
// fails the whole batch so a half-translated snapshot is never installed.
func translateFeatures(features []externalFeature) ([]*domain.FeatureToggle, error) {
	toggles := make([]*domain.FeatureToggle, 0, len(features))

	for i := range features {
		toggle, err := translateFeature(&features[i])
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		toggles = append(toggles, toggle)
	}

	return toggles, nil
}

func translateFeature(ext *externalFeature) (*domain.FeatureToggle, error) {
	if ext.Name == "" {
		return nil, domain.NewValidationError("name", "is required")
	}

	toggle := &domain.FeatureToggle{
		Name:        ext.Name,
		Description: ext.Description,
		Enabled:     ext.Enabled,
		Strategies:  make([]domain.StrategyDefinition, 0, len(ext.Strategies)),
	}

	for _, s := range ext.Strategies {
		if s.Name == "" {
			return nil, domain.NewValidationError("strategies.name", "is required")
		}

		def := domain.StrategyDefinition{
			Name:       s.Name,
			Parameters: make(map[string]string, len(s.Parameters)),
		}

		for key, value := range s.Parameters {
			def.Parameters[key] = stringifyParameter(value)
		}

		for _, ec := range s.Constraints {
			def.Constraints = append(def.Constraints, translateConstraint(ec))
		}

		toggle.Strategies = append(toggle.Strategies, def)
	}

	return toggle, nil
}

// translateConstraint folds the single-value form into Values and applies
// inversion to the set operators.
func translateConstraint(ec externalConstraint) domain.Constraint {
	values := slices.Clone(ec.Values)
	if ec.Value != "" {
		values = append(values, ec.Value)
	}

	operator := ec.Operator
	if ec.Inverted {
		switch operator {
		case domain.OperatorIn:
			operator = domain.OperatorNotIn
		case domain.OperatorNotIn:
			operator = domain.OperatorIn
		}
	}

	return domain.Constraint{
		ContextName: ec.ContextName,
		Operator:    operator,
		Values:      values,
	}
}

// stringifyParameter renders JSON scalars as strategies expect them. Some
// servers send rollout percentages as numbers.
func stringifyParameter(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
