package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validatorInstance = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			return f.Name
		}

		return name
	})

	v.RegisterStructValidation(validateFeatureSource, FeaturesConfig{})

	return v
})

// validateFeatureSource requires the settings of whichever toggle source is
// selected.
func validateFeatureSource(sl validator.StructLevel) {
	f := sl.Current().Interface().(FeaturesConfig) //nolint:forcetypeassert // registered for FeaturesConfig

	switch f.Source {
	case FeatureSourceFile:
		if f.File.Path == "" {
			sl.ReportError(f.File.Path, "file.path", "Path", "required_for_source", f.Source)
		}
	case FeatureSourceRemote:
		if f.Remote.BaseURL == "" {
			sl.ReportError(f.Remote.BaseURL, "remote.base_url", "BaseURL", "required_for_source", f.Source)
		}

		if f.Remote.AppName == "" {
			sl.ReportError(f.Remote.AppName, "remote.app_name", "AppName", "required_for_source", f.Source)
		}
	}
}

// Validate reports every invalid setting at once, one per line:
//
//	config validation failed:
//	  server.port must be at most 65535
//	  features.remote.base_url is required when features.source is remote
func (c *Config) Validate() error {
	err := validatorInstance().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}

	lines := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		lines = append(lines, describe(fe))
	}

	return errors.New("config validation failed:\n  " + strings.Join(lines, "\n  "))
}

func describe(fe validator.FieldError) string {
	key := configKey(fe.Namespace())

	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "required_if":
		field, value, _ := strings.Cut(fe.Param(), " ")
		return fmt.Sprintf("%s is required when %s is %s", key, sibling(fe, field), value)
	case "required_for_source":
		return fmt.Sprintf("%s is required when features.source is %s", key, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", key, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", key, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", key, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return key + " must be a valid URL"
	case "gtefield":
		return fmt.Sprintf("%s must not be less than %s", key, sibling(fe, fe.Param()))
	case "ltefield":
		return fmt.Sprintf("%s must not exceed %s", key, sibling(fe, fe.Param()))
	default:
		return fmt.Sprintf("%s failed %q validation", key, fe.Tag())
	}
}

// configKey drops the root struct name: "Config.server.port" -> "server.port".
func configKey(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}

	return rest
}

// sibling names the config key of another field in the same struct, given
// its Go name: (log.file.path, "Enabled") -> "log.file.enabled".
func sibling(fe validator.FieldError, goName string) string {
	var b strings.Builder

	for i, r := range goName {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}

			r = unicode.ToLower(r)
		}

		b.WriteRune(r)
	}

	key := configKey(fe.Namespace())
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[:i+1] + b.String()
	}

	return b.String()
}
