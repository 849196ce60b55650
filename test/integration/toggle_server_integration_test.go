//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/flagcontext-service/internal/adapters/clients"
	"github.com/jsamuelsen/flagcontext-service/internal/adapters/clients/acl"
	httpadapter "github.com/jsamuelsen/flagcontext-service/internal/adapters/http"
	"github.com/jsamuelsen/flagcontext-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/flagcontext-service/internal/adapters/http/handlers"
	"github.com/jsamuelsen/flagcontext-service/internal/app"
	"github.com/jsamuelsen/flagcontext-service/internal/domain"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/config"
	"github.com/jsamuelsen/flagcontext-service/internal/ports"
)

const featuresPayload = `{
	"version": 1,
	"features": [
		{
			"name": "beta-dashboard",
			"enabled": true,
			"strategies": [
				{"name": "userWithId", "parameters": {"userIds": "alice,bob"}}
			]
		},
		{
			"name": "eu-only",
			"enabled": true,
			"strategies": [
				{
					"name": "default",
					"constraints": [
						{"contextName": "region", "operator": "IN", "values": ["eu"]}
					]
				}
			]
		},
		{"name": "everyone", "enabled": true, "strategies": []},
		{"name": "killed", "enabled": false, "strategies": [{"name": "default"}]}
	]
}`

// fakeToggleServer is an Unleash-compatible toggle server.
type fakeToggleServer struct {
	*httptest.Server

	mu            sync.Mutex
	payload       string
	etag          string
	failures      int32
	featureCalls  atomic.Int32
	notModified   atomic.Int32
	registrations []map[string]any
	headers       http.Header
}

func newFakeToggleServer(t *testing.T) *fakeToggleServer {
	t.Helper()

	s := &fakeToggleServer{payload: featuresPayload, etag: `"v1"`}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)

	return s
}

func (s *fakeToggleServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.headers = r.Header.Clone()

	switch r.URL.Path {
	case "/api/client/register":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.registrations = append(s.registrations, body)
		w.WriteHeader(http.StatusAccepted)

	case "/api/client/features":
		s.featureCalls.Add(1)

		if s.failures > 0 {
			s.failures--
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		if r.Header.Get("If-None-Match") == s.etag {
			s.notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)

			return
		}

		w.Header().Set("ETag", s.etag)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, s.payload)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *fakeToggleServer) failNext(n int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = n
}

func (s *fakeToggleServer) publish(payload, etag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payload = payload
	s.etag = etag
}

func (s *fakeToggleServer) registered() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.registrations
}

func (s *fakeToggleServer) lastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.headers
}

// toggleClientConfig returns a client config tuned for fast tests.
func toggleClientConfig(baseURL string) *clients.Config {
	return &clients.Config{
		ServiceName: "toggle-server",
		BaseURL:     baseURL,
		Timeout:     5 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      2.0,
		},
		Circuit: config.CircuitBreakerConfig{
			MaxFailures:   2,
			Timeout:       time.Second,
			HalfOpenLimit: 1,
		},
		Headers: map[string]string{
			"UNLEASH-APPNAME":    "integration",
			"UNLEASH-INSTANCEID": "instance-1",
		},
		AuthFunc: func(req *http.Request) {
			req.Header.Set("Authorization", "test-token")
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newToggleClient(t *testing.T, baseURL string) (*acl.ToggleClient, *clients.Client) {
	t.Helper()

	httpClient, err := clients.New(toggleClientConfig(baseURL))
	require.NoError(t, err)

	client := acl.NewToggleClient(acl.ToggleClientConfig{
		Client:          httpClient,
		AppName:         "integration",
		InstanceID:      "instance-1",
		RefreshInterval: time.Minute,
		Strategies:      app.NewStrategyRegistry().Names(),
	})

	return client, httpClient
}

// TestToggleServer_RegisterAndEvaluate drives registration, a refresh and
// evaluation through the feature service.
func TestToggleServer_RegisterAndEvaluate(t *testing.T) {
	server := newFakeToggleServer(t)
	client, _ := newToggleClient(t, server.URL)
	ctx := context.Background()

	require.NoError(t, client.Register(ctx))
	require.NoError(t, client.Refresh(ctx))
	require.NoError(t, client.Check(ctx))

	registrations := server.registered()
	require.Len(t, registrations, 1)
	assert.Equal(t, "integration", registrations[0]["appName"])
	assert.Equal(t, "instance-1", registrations[0]["instanceId"])
	assert.Contains(t, registrations[0]["strategies"], app.StrategyFlexibleRollout)

	headers := server.lastHeaders()
	assert.Equal(t, "integration", headers.Get("UNLEASH-APPNAME"))
	assert.Equal(t, "instance-1", headers.Get("UNLEASH-INSTANCEID"))
	assert.Equal(t, "test-token", headers.Get("Authorization"))

	service := app.NewFeatureService(app.FeatureServiceConfig{Toggles: client})

	fc, err := domain.NewFlagContextBuilder().
		UserID("alice").
		AddProperty("region", "eu").
		Build()
	require.NoError(t, err)

	evals, err := service.EvaluateAll(ctx, fc)
	require.NoError(t, err)

	got := make(map[string]*domain.Evaluation, len(evals))
	for _, e := range evals {
		got[e.Flag] = e
	}

	require.Len(t, got, 4)
	assert.True(t, got["beta-dashboard"].Enabled)
	assert.Equal(t, app.StrategyUserWithID, got["beta-dashboard"].Strategy)
	assert.True(t, got["eu-only"].Enabled)
	assert.True(t, got["everyone"].Enabled)
	assert.Equal(t, domain.ReasonNoStrategies, got["everyone"].Reason)
	assert.False(t, got["killed"].Enabled)
	assert.Equal(t, domain.ReasonDisabled, got["killed"].Reason)

	other, err := domain.NewFlagContextBuilder().UserID("carol").Build()
	require.NoError(t, err)

	eval, err := service.EvaluateFor(ctx, "eu-only", other)
	require.NoError(t, err)
	assert.False(t, eval.Enabled)
	assert.Equal(t, domain.ReasonNoStrategyMatched, eval.Reason)
}

// TestToggleServer_ConditionalRefresh verifies ETag handling across refreshes.
func TestToggleServer_ConditionalRefresh(t *testing.T) {
	server := newFakeToggleServer(t)
	client, _ := newToggleClient(t, server.URL)
	ctx := context.Background()

	require.NoError(t, client.Refresh(ctx))
	require.NoError(t, client.Refresh(ctx))
	assert.Equal(t, int32(1), server.notModified.Load())

	server.publish(`{"version":2,"features":[{"name":"fresh","enabled":true}]}`, `"v2"`)
	require.NoError(t, client.Refresh(ctx))

	toggles, err := client.ListToggles(ctx)
	require.NoError(t, err)
	require.Len(t, toggles, 1)
	assert.Equal(t, "fresh", toggles[0].Name)

	_, err = client.GetToggle(ctx, "beta-dashboard")
	assert.True(t, domain.IsNotFound(err))
}

// TestToggleServer_RetriesTransientFailures verifies a refresh survives
// transient 503s within the retry budget.
func TestToggleServer_RetriesTransientFailures(t *testing.T) {
	server := newFakeToggleServer(t)
	client, httpClient := newToggleClient(t, server.URL)

	server.failNext(2)

	require.NoError(t, client.Refresh(context.Background()))
	assert.Equal(t, int32(3), server.featureCalls.Load())
	assert.Equal(t, clients.StateClosed, httpClient.CircuitState())
}

// TestToggleServer_OutageKeepsLastSnapshot verifies an outage opens the
// circuit while evaluation keeps using the last good snapshot.
func TestToggleServer_OutageKeepsLastSnapshot(t *testing.T) {
	server := newFakeToggleServer(t)
	client, httpClient := newToggleClient(t, server.URL)
	ctx := context.Background()

	require.NoError(t, client.Refresh(ctx))

	server.failNext(100)

	for range 2 {
		err := client.Refresh(ctx)
		require.Error(t, err)
		assert.True(t, domain.IsUnavailable(err))
	}

	assert.Equal(t, clients.StateOpen, httpClient.CircuitState())
	require.ErrorIs(t, httpClient.CircuitBreaker().Check(ctx), ports.ErrDegraded)

	calls := server.featureCalls.Load()
	err := client.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, calls, server.featureCalls.Load(), "open circuit should not reach the server")

	service := app.NewFeatureService(app.FeatureServiceConfig{Toggles: client})
	fc, err := domain.NewFlagContextBuilder().UserID("bob").Build()
	require.NoError(t, err)

	eval, err := service.EvaluateFor(ctx, "beta-dashboard", fc)
	require.NoError(t, err)
	assert.True(t, eval.Enabled)
}

// TestToggleServer_HTTPAPI serves the feature routes backed by a polling
// toggle client.
func TestToggleServer_HTTPAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)

	server := newFakeToggleServer(t)
	client, _ := newToggleClient(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go client.Poll(ctx)

	require.Eventually(t, func() bool {
		return client.Check(ctx) == nil
	}, 2*time.Second, 10*time.Millisecond)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := ports.NewHealthRegistry()
	require.NoError(t, registry.Register(client))

	engine := gin.New()
	httpadapter.SetupRouter(engine, httpadapter.RouterConfig{
		Logger:        logger,
		AuthConfig:    &config.AuthConfig{},
		AppConfig:     &config.AppConfig{Name: "integration"},
		HealthHandler: handlers.NewHealthHandler(registry, handlers.BuildInfo{}),
		FeaturesHandler: handlers.NewFeaturesHandler(app.NewFeatureService(app.FeatureServiceConfig{
			Toggles: client,
			Logger:  logger,
		})),
		FeatureContext: &config.FeatureContextConfig{
			PropertyHeaders: map[string]string{"X-Region": "region"},
		},
		Timeout: 5 * time.Second,
	})

	t.Run("ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("property header feeds constraints", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/features/eu-only", nil)
		req.Header.Set("X-Region", "eu")
		engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.EvaluationResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Enabled)
		assert.Equal(t, domain.ReasonStrategyMatched, resp.Reason)
	})

	t.Run("list is sorted by name", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/features", nil))

		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.PaginatedResponse[dto.FeatureResponse]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		names := make([]string, 0, len(resp.Items))
		for _, f := range resp.Items {
			names = append(names, f.Name)
		}

		assert.Equal(t, []string{"beta-dashboard", "eu-only", "everyone", "killed"}, names)
	})
}
