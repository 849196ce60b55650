// Package config loads service settings with koanf from built-in defaults,
// YAML files and APP_ environment variables, and validates them with
// go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Connection pool defaults, also applied by the HTTP client when a field is
// left zero.
const (
	DefaultTransportMaxIdleConns        = 100
	DefaultTransportMaxIdleConnsPerHost = 10
	DefaultTransportIdleConnTimeout     = 90 * time.Second
)

// Values accepted by features.source.
const (
	FeatureSourceFile   = "file"
	FeatureSourceRemote = "remote"
)

const envPrefix = "APP_"

// Config is the root of the configuration tree. Field paths in validation
// errors use the koanf keys, e.g. "client.retry.max_attempts".
type Config struct {
	App       AppConfig       `koanf:"app"       validate:"required"`
	Server    ServerConfig    `koanf:"server"    validate:"required"`
	Log       LogConfig       `koanf:"log"       validate:"required"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Auth      AuthConfig      `koanf:"auth"`
	Client    ClientConfig    `koanf:"client"    validate:"required"`
	Features  FeaturesConfig  `koanf:"features"  validate:"required"`
}

type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`
}

type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig enables a lumberjack-rotated copy of the log stream.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig points the OTLP exporters at a collector.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true,omitempty,url"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
}

// AuthConfig names the headers an upstream gateway fills after verifying
// the caller.
type AuthConfig struct {
	Enabled       bool   `koanf:"enabled"`
	JWKSEndpoint  string `koanf:"jwks_endpoint"  validate:"required_if=Enabled true,omitempty,url"`
	Issuer        string `koanf:"issuer"         validate:"required_if=Enabled true"`
	Audience      string `koanf:"audience"       validate:"required_if=Enabled true"`
	ClaimsHeader  string `koanf:"claims_header"`
	RolesHeader   string `koanf:"roles_header"`
	ScopesHeader  string `koanf:"scopes_header"`
	SubjectHeader string `koanf:"subject_header"`
}

// ClientConfig tunes the HTTP client used for the remote toggle server.
// Timeout bounds one attempt.
type ClientConfig struct {
	Timeout        time.Duration        `koanf:"timeout"         validate:"required,min=100ms"`
	Retry          RetryConfig          `koanf:"retry"           validate:"required"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker" validate:"required"`
	Transport      TransportConfig      `koanf:"transport"       validate:"required"`
}

// RetryConfig drives the exponential backoff between attempts. JitterFactor
// randomizes each wait by up to that fraction either way.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"required,min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"required,min=10ms"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"required,min=100ms,gtefield=InitialInterval"`
	Multiplier      float64       `koanf:"multiplier"       validate:"required,min=1.1,max=10"`
	JitterFactor    float64       `koanf:"jitter_factor"    validate:"min=0,max=1"`
}

type CircuitBreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"required,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"required,min=1s"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"required,min=1"`
}

type TransportConfig struct {
	MaxIdleConns        int           `koanf:"max_idle_conns"          validate:"required,min=1"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host" validate:"required,min=1,ltefield=MaxIdleConns"`
	IdleConnTimeout     time.Duration `koanf:"idle_conn_timeout"       validate:"required,min=1s"`
}

// FeaturesConfig selects the toggle source and how requests are evaluated.
// Concurrency bounds parallel evaluation in bulk requests; zero means one
// worker per toggle.
type FeaturesConfig struct {
	Source      string               `koanf:"source"      validate:"required,oneof=file remote"`
	Concurrency int                  `koanf:"concurrency" validate:"min=0,max=256"`
	File        FeatureFileConfig    `koanf:"file"`
	Remote      FeatureRemoteConfig  `koanf:"remote"`
	Context     FeatureContextConfig `koanf:"context"`
}

// FeatureFileConfig is the local YAML toggle source. Watch reloads on change
// after Debounce of quiet.
type FeatureFileConfig struct {
	Path     string        `koanf:"path"`
	Watch    bool          `koanf:"watch"`
	Debounce time.Duration `koanf:"debounce" validate:"omitempty,min=10ms"`
}

// FeatureRemoteConfig is the Unleash-compatible toggle server. APIToken is
// sent verbatim in the Authorization header.
type FeatureRemoteConfig struct {
	BaseURL         string        `koanf:"base_url"         validate:"omitempty,url"`
	AppName         string        `koanf:"app_name"`
	InstanceID      string        `koanf:"instance_id"`
	APIToken        string        `koanf:"api_token"`
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"omitempty,min=1s"`
	Register        bool          `koanf:"register"`
}

// FeatureContextConfig controls how the per-request FlagContext is built.
type FeatureContextConfig struct {
	// SessionHeader is checked before SessionCookie.
	SessionHeader string `koanf:"session_header"`
	SessionCookie string `koanf:"session_cookie"`

	// PropertyHeaders maps request header names to property keys.
	PropertyHeaders map[string]string `koanf:"property_headers"`

	// StaticProperties are added to every request context.
	StaticProperties map[string]string `koanf:"static_properties"`
}

func defaults() map[string]any {
	return map[string]any{
		"app.name":        "flagcontext-service",
		"app.version":     "dev",
		"app.environment": "local",

		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.max_request_size": 1 << 20,

		"log.level":            "info",
		"log.format":           "json",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/app.log",
		"log.file.max_size":    100,
		"log.file.max_backups": 3,
		"log.file.max_age":     28,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "flagcontext-service",
		"telemetry.sampling_rate": 1.0,

		"auth.enabled":        false,
		"auth.jwks_endpoint":  "",
		"auth.issuer":         "",
		"auth.audience":       "",
		"auth.claims_header":  "X-User-Claims",
		"auth.roles_header":   "X-User-Roles",
		"auth.scopes_header":  "X-User-Scopes",
		"auth.subject_header": "X-User-ID",

		"client.timeout":                           "5s",
		"client.retry.max_attempts":                3,
		"client.retry.initial_interval":            "100ms",
		"client.retry.max_interval":                "5s",
		"client.retry.multiplier":                  2.0,
		"client.retry.jitter_factor":               0.25,
		"client.circuit_breaker.max_failures":      5,
		"client.circuit_breaker.timeout":           "30s",
		"client.circuit_breaker.half_open_limit":   3,
		"client.transport.max_idle_conns":          DefaultTransportMaxIdleConns,
		"client.transport.max_idle_conns_per_host": DefaultTransportMaxIdleConnsPerHost,
		"client.transport.idle_conn_timeout":       DefaultTransportIdleConnTimeout.String(),

		"features.source":                  FeatureSourceFile,
		"features.concurrency":             8,
		"features.file.path":               "configs/toggles.yaml",
		"features.file.watch":              true,
		"features.file.debounce":           "100ms",
		"features.remote.base_url":         "",
		"features.remote.app_name":         "flagcontext-service",
		"features.remote.instance_id":      "",
		"features.remote.api_token":        "",
		"features.remote.refresh_interval": "15s",
		"features.remote.register":         true,
		"features.context.session_header":  "X-Session-ID",
		"features.context.session_cookie":  "session_id",
	}
}

type loadOptions struct {
	dir string
}

// Option customizes Load.
type Option func(*loadOptions)

// WithDir reads YAML files from dir instead of "configs".
func WithDir(dir string) Option {
	return func(o *loadOptions) {
		if dir != "" {
			o.dir = dir
		}
	}
}

// Load merges, lowest precedence first: built-in defaults, <dir>/base.yaml,
// <dir>/<profile>.yaml and APP_ environment variables. Missing files are
// skipped. The result is not validated; call Validate.
func Load(profile string, opts ...Option) (*Config, error) {
	o := loadOptions{dir: "configs"}
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")
	base := defaults()

	if err := k.Load(confmap.Provider(base, "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	files := []string{"base"}
	if profile != "" {
		files = append(files, profile)
	}

	for _, name := range files {
		path := filepath.Join(o.dir, name+".yaml")
		if err := loadFileIfExists(k, path); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper(base)), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// envKeyMapper turns APP_CLIENT_RETRY_MAX_ATTEMPTS into
// client.retry.max_attempts. Known keys are matched exactly so underscores
// inside a key survive; anything else has every underscore read as a dot.
func envKeyMapper(known map[string]any) func(string) string {
	lookup := make(map[string]string, len(known))
	for key := range known {
		lookup[strings.ReplaceAll(key, ".", "_")] = key
	}

	return func(name string) string {
		flat := strings.ToLower(strings.TrimPrefix(name, envPrefix))
		if key, ok := lookup[flat]; ok {
			return key
		}

		return strings.ReplaceAll(flat, "_", ".")
	}
}

func loadFileIfExists(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return k.Load(file.Provider(path), yaml.Parser())
}
