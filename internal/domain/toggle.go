package domain

import (
	"slices"
	"strings"
)

// Constraint operators.
const (
	OperatorIn    = "IN"
	OperatorNotIn = "NOT_IN"
)

// Evaluation reasons.
const (
	ReasonDisabled          = "disabled"
	ReasonStrategyMatched   = "strategy_matched"
	ReasonNoStrategyMatched = "no_strategy_matched"
	ReasonNoStrategies      = "no_strategies"
	ReasonNotFound          = "not_found"
	ReasonDefault           = "default"
)

// FeatureToggle is a named feature flag with the strategies that decide
// whether it is on for a given FlagContext.
type FeatureToggle struct {
	// Name uniquely identifies the toggle.
	Name string

	// Description is free text for operators.
	Description string

	// Enabled is the kill switch. A disabled toggle is off for everyone.
	Enabled bool

	// Strategies are tried in order; the first match turns the toggle on.
	// An enabled toggle without strategies is on for everyone.
	Strategies []StrategyDefinition
}

// StrategyDefinition binds a strategy implementation to its parameters.
type StrategyDefinition struct {
	Name        string
	Parameters  map[string]string
	Constraints []Constraint
}

// ConstraintsMatch reports whether every constraint holds for fc.
func (s *StrategyDefinition) ConstraintsMatch(fc *FlagContext) bool {
	for i := range s.Constraints {
		if !s.Constraints[i].Matches(fc) {
			return false
		}
	}

	return true
}

// Constraint restricts a strategy to contexts whose field value is (or is
// not) in Values.
type Constraint struct {
	ContextName string
	Operator    string
	Values      []string
}

// Matches evaluates the constraint. A missing field never satisfies IN and
// always satisfies NOT_IN. Unknown operators never match.
func (c *Constraint) Matches(fc *FlagContext) bool {
	value, ok := fc.Field(c.ContextName)
	found := ok && slices.Contains(c.Values, value)

	switch c.Operator {
	case OperatorIn:
		return found
	case OperatorNotIn:
		return !found
	default:
		return false
	}
}

// Evaluation is the outcome of evaluating one toggle.
type Evaluation struct {
	Flag     string
	Enabled  bool
	Strategy string
	Reason   string
}

// ToggleSet is an immutable collection of toggles indexed by name.
// Sources build a new set on every reload and swap it in atomically.
type ToggleSet struct {
	byName map[string]*FeatureToggle
	sorted []*FeatureToggle
}

// NewToggleSet indexes toggles. Names must be non-empty and unique.
func NewToggleSet(toggles []*FeatureToggle) (*ToggleSet, error) {
	set := &ToggleSet{
		byName: make(map[string]*FeatureToggle, len(toggles)),
		sorted: make([]*FeatureToggle, 0, len(toggles)),
	}

	for _, t := range toggles {
		if t == nil || t.Name == "" {
			return nil, NewValidationError("name", "toggle name is required")
		}

		if _, exists := set.byName[t.Name]; exists {
			return nil, NewDuplicateKeyError("toggles", t.Name)
		}

		set.byName[t.Name] = t
		set.sorted = append(set.sorted, t)
	}

	slices.SortFunc(set.sorted, func(a, b *FeatureToggle) int {
		return strings.Compare(a.Name, b.Name)
	})

	return set, nil
}

// Get returns the toggle named name.
func (s *ToggleSet) Get(name string) (*FeatureToggle, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// List returns the toggles sorted by name. The slice is a copy.
func (s *ToggleSet) List() []*FeatureToggle {
	return slices.Clone(s.sorted)
}

// Len returns the number of toggles.
func (s *ToggleSet) Len() int {
	return len(s.sorted)
}
