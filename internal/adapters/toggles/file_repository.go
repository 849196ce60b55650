// Package toggles provides file-backed feature toggle sources.
package toggles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jsamuelsen/flagcontext-service/internal/domain"
	"github.com/jsamuelsen/flagcontext-service/internal/ports"
)

const healthCheckName = "toggle-file"

// fileToggle mirrors one entry of the toggle file:
//
//	features:
//	  - name: new-checkout
//	    enabled: true
//	    strategies:
//	      - name: flexibleRollout
//	        parameters: {rollout: 25}
//	        constraints:
//	          - context_name: region
//	            operator: IN
//	            values: [eu]
type fileToggle struct {
	Name        string         `koanf:"name"`
	Description string         `koanf:"description"`
	Enabled     bool           `koanf:"enabled"`
	Strategies  []fileStrategy `koanf:"strategies"`
}

type fileStrategy struct {
	Name        string           `koanf:"name"`
	Parameters  map[string]any   `koanf:"parameters"`
	Constraints []fileConstraint `koanf:"constraints"`
}

type fileConstraint struct {
	ContextName string   `koanf:"context_name"`
	Operator    string   `koanf:"operator"`
	Values      []string `koanf:"values"`
}

type fileSnapshot struct {
	toggles  *domain.ToggleSet
	loadedAt time.Time
}

// FileRepository serves toggles from a YAML file. Reload parses the file
// into a fresh snapshot and swaps it in; a failed reload keeps the previous
// snapshot.
type FileRepository struct {
	path     string
	logger   *slog.Logger
	snapshot atomic.Pointer[fileSnapshot]
	lastErr  atomic.Pointer[error]
}

var (
	_ ports.ToggleRepository = (*FileRepository)(nil)
	_ ports.HealthChecker    = (*FileRepository)(nil)
)

// NewFileRepository loads path once and returns the repository.
func NewFileRepository(path string, logger *slog.Logger) (*FileRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &FileRepository{
		path:   path,
		logger: logger.With(slog.String("component", "toggles.FileRepository")),
	}

	if err := r.Reload(); err != nil {
		return nil, err
	}

	return r, nil
}

// Path returns the watched toggle file.
func (r *FileRepository) Path() string {
	return r.path
}

// Reload re-reads the toggle file.
func (r *FileRepository) Reload() error {
	set, err := loadToggleFile(r.path)
	if err != nil {
		r.lastErr.Store(&err)
		return err
	}

	r.snapshot.Store(&fileSnapshot{toggles: set, loadedAt: time.Now()})
	r.lastErr.Store(nil)

	r.logger.Info("toggles loaded",
		slog.String("path", r.path),
		slog.Int("count", set.Len()),
	)

	return nil
}

// GetToggle implements ports.ToggleRepository.
func (r *FileRepository) GetToggle(_ context.Context, name string) (*domain.FeatureToggle, error) {
	toggle, ok := r.snapshot.Load().toggles.Get(name)
	if !ok {
		return nil, domain.NewNotFoundError("toggle", name)
	}

	return toggle, nil
}

// ListToggles implements ports.ToggleRepository.
func (r *FileRepository) ListToggles(_ context.Context) ([]*domain.FeatureToggle, error) {
	return r.snapshot.Load().toggles.List(), nil
}

// Name implements ports.HealthChecker.
func (r *FileRepository) Name() string {
	return healthCheckName
}

// Check reports a failed latest reload as degraded: the previous snapshot
// keeps serving.
func (r *FileRepository) Check(_ context.Context) error {
	if errPtr := r.lastErr.Load(); errPtr != nil {
		return ports.Degraded("reload failed: " + (*errPtr).Error())
	}

	return nil
}

func loadToggleFile(path string) (*domain.ToggleSet, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, domain.NewNotFoundError("toggle file", path)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading toggle file %q: %w", path, err)
	}

	var raw []fileToggle
	if err := k.Unmarshal("features", &raw); err != nil {
		return nil, fmt.Errorf("decoding toggle file %q: %w", path, err)
	}

	toggles := make([]*domain.FeatureToggle, 0, len(raw))
	for i := range raw {
		toggle, err := raw[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("toggle file %q: %w", path, err)
		}

		toggles = append(toggles, toggle)
	}

	set, err := domain.NewToggleSet(toggles)
	if err != nil {
		return nil, fmt.Errorf("toggle file %q: %w", path, err)
	}

	return set, nil
}

func (t *fileToggle) toDomain() (*domain.FeatureToggle, error) {
	toggle := &domain.FeatureToggle{
		Name:        t.Name,
		Description: t.Description,
		Enabled:     t.Enabled,
		Strategies:  make([]domain.StrategyDefinition, 0, len(t.Strategies)),
	}

	for _, s := range t.Strategies {
		def := domain.StrategyDefinition{
			Name:       s.Name,
			Parameters: make(map[string]string, len(s.Parameters)),
		}

		for key, value := range s.Parameters {
			if value == nil {
				continue
			}

			param, err := parameterString(value)
			if err != nil {
				return nil, domain.NewValidationError(
					fmt.Sprintf("%s.strategies.%s.parameters.%s", t.Name, s.Name, key), err.Error())
			}

			def.Parameters[key] = param
		}

		for _, c := range s.Constraints {
			def.Constraints = append(def.Constraints, domain.Constraint{
				ContextName: c.ContextName,
				Operator:    c.Operator,
				Values:      c.Values,
			})
		}

		toggle.Strategies = append(toggle.Strategies, def)
	}

	return toggle, nil
}

// parameterString renders a YAML parameter the way strategies read it.
// Lists become comma-separated, so userIds: [a, b] means "a,b".
func parameterString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			switch item.(type) {
			case []any, map[string]any:
				return "", errors.New("nested lists and maps are not supported")
			}

			items = append(items, fmt.Sprint(item))
		}

		return strings.Join(items, ","), nil
	case map[string]any:
		return "", errors.New("maps are not supported")
	default:
		return fmt.Sprint(v), nil
	}
}
