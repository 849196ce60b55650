package acl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jsamuelsen/flagcontext-service/internal/adapters/clients"
	"github.com/jsamuelsen/flagcontext-service/internal/domain"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/logging"
	"github.com/jsamuelsen/flagcontext-service/internal/ports"
)

const (
	toggleServiceName = "toggle-server"
	featuresPath      = "/api/client/features"
	registerPath      = "/api/client/register"

	// staleAfterIntervals is how many missed refreshes make the snapshot unhealthy.
	staleAfterIntervals = 3

	defaultRefreshInterval = 15 * time.Second
)

// ToggleClientConfig contains configuration for the toggle client.
type ToggleClientConfig struct {
	// Client is the HTTP client to use for requests.
	// The client's BaseURL should point at the toggle server root.
	Client *clients.Client

	// AppName and InstanceID identify this service when registering.
	AppName    string
	InstanceID string

	// RefreshInterval is the Poll period. Defaults to 15s.
	RefreshInterval time.Duration

	// Strategies are announced on registration.
	Strategies []string

	// Logger is the structured logger.
	Logger *slog.Logger
}

// ToggleClient implements ports.ToggleRepository against an
// Unleash-compatible toggle server. Definitions are fetched with
// conditional requests and served from an in-memory snapshot.
type ToggleClient struct {
	http   *clients.Client
	cfg    ToggleClientConfig
	logger *slog.Logger

	snapshot  atomic.Pointer[remoteSnapshot]
	refreshMu sync.Mutex // serializes Refresh so ETags stay consistent
}

type remoteSnapshot struct {
	toggles   *domain.ToggleSet
	etag      string
	fetchedAt time.Time
}

var (
	_ ports.ToggleRepository = (*ToggleClient)(nil)
	_ ports.HealthChecker    = (*ToggleClient)(nil)
)

// NewToggleClient creates a new toggle client adapter.
// Panics if Client is nil. Defaults logger to slog.Default() if nil.
func NewToggleClient(cfg ToggleClientConfig) *ToggleClient {
	if cfg.Client == nil {
		panic("ToggleClient: Client is required")
	}

	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ToggleClient{
		http:   cfg.Client,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "acl.ToggleClient")),
	}
}

type registration struct {
	AppName    string    `json:"appName"`
	InstanceID string    `json:"instanceId"`
	SDKVersion string    `json:"sdkVersion"`
	Strategies []string  `json:"strategies"`
	Started    time.Time `json:"started"`
	Interval   int64     `json:"interval"`
}

// Refresh fetches toggle definitions. A 304 Not Modified keeps the current
// snapshot and only bumps its fetch time.
func (c *ToggleClient) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current := c.snapshot.Load()

	var etag string
	if current != nil {
		etag = current.etag
	}

	c.logger.Log(ctx, logging.LevelTrace, "starting request",
		slog.String("path", featuresPath),
		slog.String("etag", etag))

	resp, err := c.get(ctx, featuresPath, "fetch toggles", clients.WithHeader("If-None-Match", etag))
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotModified {
		_ = resp.Body.Close()

		if current != nil {
			next := *current
			next.fetchedAt = time.Now()
			c.snapshot.Store(&next)
		}

		c.logger.DebugContext(ctx, "toggles not modified")

		return nil
	}

	newETag := resp.Header.Get("ETag")

	external, err := decodeJSON[featuresResponse](resp.Body)
	if err != nil {
		return domain.NewUnavailableError(toggleServiceName, err.Error())
	}

	toggles, err := translateFeatures(external.Features)
	if err != nil {
		return fmt.Errorf("translating toggles: %w", err)
	}

	set, err := domain.NewToggleSet(toggles)
	if err != nil {
		return fmt.Errorf("indexing toggles: %w", err)
	}

	c.snapshot.Store(&remoteSnapshot{toggles: set, etag: newETag, fetchedAt: time.Now()})

	c.logger.InfoContext(ctx, "toggles refreshed",
		slog.Int("count", set.Len()),
		slog.Int("version", external.Version),
	)

	return nil
}

// Register announces this instance to the toggle server.
func (c *ToggleClient) Register(ctx context.Context) error {
	body := registration{
		AppName:    c.cfg.AppName,
		InstanceID: c.cfg.InstanceID,
		SDKVersion: "flagcontext-service:go",
		Strategies: c.cfg.Strategies,
		Started:    time.Now().UTC(),
		Interval:   c.cfg.RefreshInterval.Milliseconds(),
	}

	if err := c.post(ctx, registerPath, body, "register client"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "registered with toggle server", slog.String("app_name", c.cfg.AppName))

	return nil
}

// Poll refreshes immediately and then every RefreshInterval until ctx is
// canceled. Failures are logged and the previous snapshot keeps serving.
func (c *ToggleClient) Poll(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			c.logger.WarnContext(ctx, "toggle refresh failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GetToggle implements ports.ToggleRepository.
func (c *ToggleClient) GetToggle(_ context.Context, name string) (*domain.FeatureToggle, error) {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil, domain.NewUnavailableError(toggleServiceName, "toggles not loaded")
	}

	toggle, ok := snap.toggles.Get(name)
	if !ok {
		return nil, domain.NewNotFoundError("toggle", name)
	}

	return toggle, nil
}

// ListToggles implements ports.ToggleRepository.
func (c *ToggleClient) ListToggles(_ context.Context) ([]*domain.FeatureToggle, error) {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil, domain.NewUnavailableError(toggleServiceName, "toggles not loaded")
	}

	return snap.toggles.List(), nil
}

// Name returns the health check name for this client.
// Implements ports.HealthChecker.
func (c *ToggleClient) Name() string {
	return toggleServiceName
}

// Check is unhealthy until the first snapshot loads and degraded once the
// snapshot is older than staleAfterIntervals refresh intervals.
func (c *ToggleClient) Check(_ context.Context) error {
	snap := c.snapshot.Load()
	if snap == nil {
		return domain.NewUnavailableError(toggleServiceName, "toggles not loaded")
	}

	if age := time.Since(snap.fetchedAt); age > staleAfterIntervals*c.cfg.RefreshInterval {
		return ports.Degraded("toggles stale for " + age.Round(time.Second).String())
	}

	return nil
}

// get returns any response below 400, 304 included; the caller closes the
// body. Everything else comes back as a domain error.
func (c *ToggleClient) get(ctx context.Context, path, operation string, opts ...clients.RequestOption) (*http.Response, error) {
	resp, err := c.http.Get(ctx, path, opts...)
	if err != nil {
		return nil, transportError(err, operation)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer func() { _ = resp.Body.Close() }()

		return nil, responseError(resp, operation, path)
	}

	return resp, nil
}

// post sends body as JSON and discards the response.
func (c *ToggleClient) post(ctx context.Context, path string, body any, operation string) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("encoding %s request: %w", operation, err)
	}

	resp, err := c.http.Post(ctx, path, bytes.TrimSpace(buf.Bytes()))
	if err != nil {
		return transportError(err, operation)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(resp, operation, path)
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
