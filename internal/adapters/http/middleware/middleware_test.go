package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/flagcontext-service/internal/adapters/http/dto"
	appctx "github.com/jsamuelsen/flagcontext-service/internal/app/context"
	"github.com/jsamuelsen/flagcontext-service/internal/domain"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/config"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIDMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		middleware gin.HandlerFunc
		header     string
		fromGin    func(*gin.Context) string
		fromCtx    func(context.Context) string
	}{
		{
			name:       "request id",
			middleware: RequestID(),
			header:     HeaderRequestID,
			fromGin:    GetRequestID,
			fromCtx:    RequestIDFromContext,
		},
		{
			name:       "correlation id",
			middleware: CorrelationID(),
			header:     HeaderCorrelationID,
			fromGin:    GetCorrelationID,
			fromCtx:    CorrelationIDFromContext,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cases := []struct {
				name     string
				incoming string
				keep     bool
			}{
				{name: "generated when absent"},
				{name: "propagated when present", incoming: "upstream-123", keep: true},
				{name: "replaced when oversized", incoming: strings.Repeat("x", maxIDLength+1)},
			}

			for _, tc := range cases {
				var ginID, ctxID string

				router := gin.New()
				router.Use(tt.middleware)
				router.GET("/test", func(c *gin.Context) {
					ginID = tt.fromGin(c)
					ctxID = tt.fromCtx(c.Request.Context())
					c.Status(http.StatusOK)
				})

				w := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodGet, "/test", nil)
				if tc.incoming != "" {
					req.Header.Set(tt.header, tc.incoming)
				}

				router.ServeHTTP(w, req)

				require.NotEmpty(t, ginID, tc.name)
				assert.Equal(t, ginID, ctxID, tc.name)
				assert.Equal(t, ginID, w.Header().Get(tt.header), tc.name)

				if tc.keep {
					assert.Equal(t, tc.incoming, ginID, tc.name)
				} else {
					assert.NotEqual(t, tc.incoming, ginID, tc.name)
					assert.LessOrEqual(t, len(ginID), maxIDLength, tc.name)
				}
			}
		})
	}
}

func TestIDsFromContext(t *testing.T) {
	t.Parallel()

	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Empty(t, CorrelationIDFromContext(nil)) //nolint:staticcheck // nil context is handled

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "corr-1", CorrelationIDFromContext(ctx))
}

func TestIDMiddleware_EnrichesLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	router := gin.New()
	router.Use(func(c *gin.Context) {
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), logger))
		c.Next()
	})
	router.Use(RequestID(), CorrelationID())
	router.GET("/test", func(c *gin.Context) {
		logging.FromContext(c.Request.Context()).Info("inside")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	req.Header.Set(HeaderCorrelationID, "corr-42")
	router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "corr-42", entry["correlation_id"])
}

func TestExtractClaims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *config.AuthConfig
		headers map[string]string
		want    *Claims
	}{
		{
			name: "default headers",
			headers: map[string]string{
				"X-User-ID":     " user-1 ",
				"X-User-Roles":  "admin, editor,,",
				"X-User-Scopes": "read  write",
			},
			want: &Claims{Subject: "user-1", Roles: []string{"admin", "editor"}, Scopes: []string{"read", "write"}},
		},
		{
			name: "custom headers",
			cfg:  &config.AuthConfig{SubjectHeader: "X-Sub", RolesHeader: "X-Roles", ScopesHeader: "X-Scopes"},
			headers: map[string]string{
				"X-Sub":     "svc-7",
				"X-Roles":   "service",
				"X-User-ID": "ignored",
			},
			want: &Claims{Subject: "svc-7", Roles: []string{"service"}, Scopes: []string{}},
		},
		{
			name: "no headers",
			want: &Claims{Scopes: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}

			got := ExtractClaims(c, tt.cfg)
			assert.Equal(t, tt.want.Subject, got.Subject)
			assert.Equal(t, tt.want.Roles, got.Roles)
			assert.ElementsMatch(t, tt.want.Scopes, got.Scopes)
		})
	}
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	var stored *Claims

	router := gin.New()
	router.Use(RequireAuth(&config.AuthConfig{Enabled: true}))
	router.GET("/test", func(c *gin.Context) {
		stored = GetClaims(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrorCodeForbidden, resp.Error.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-User-ID", "user-1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stored)
	assert.Equal(t, "user-1", stored.Subject)
}

func TestGetClaims_WrongType(t *testing.T) {
	t.Parallel()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetClaims(c))

	c.Set(ContextKeyClaims, "not claims")
	assert.Nil(t, GetClaims(c))
}

func TestLogging(t *testing.T) {
	t.Parallel()

	newRouter := func(buf *bytes.Buffer, skip ...string) *gin.Engine {
		logger := slog.New(slog.NewJSONHandler(buf, nil))

		router := gin.New()
		router.Use(Logging(logger, skip...), FlagContext(nil, nil))
		router.GET("/api/flags", func(c *gin.Context) {
			rc := appctx.FromContext(c.Request.Context())
			_, _ = rc.GetOrEvaluate("beta", func(context.Context, *domain.FlagContext) (*domain.Evaluation, error) {
				return &domain.Evaluation{Flag: "beta", Enabled: true}, nil
			})
			c.Status(http.StatusOK)
		})
		router.GET("/api/boom", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
		router.GET("/-/live", func(c *gin.Context) { c.Status(http.StatusOK) })
		router.GET("/skipped", func(c *gin.Context) { c.Status(http.StatusOK) })

		return router
	}

	t.Run("logs completion with evaluation count", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		newRouter(&buf).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/flags?x=1", nil))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "request completed", entry["msg"])
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "/api/flags", entry["route"])
		assert.InDelta(t, 1, entry["flags_evaluated"], 0)
	})

	t.Run("server errors log at error level", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		newRouter(&buf).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/boom", nil))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "ERROR", entry["level"])
	})

	t.Run("skips internal and configured paths", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		router := newRouter(&buf, "/skipped")
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/-/live", nil))
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/skipped", nil))

		assert.Zero(t, buf.Len())
	})
}

func TestLevelForStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelInfo, levelForStatus(http.StatusOK))
	assert.Equal(t, slog.LevelInfo, levelForStatus(http.StatusNotModified))
	assert.Equal(t, slog.LevelWarn, levelForStatus(http.StatusNotFound))
	assert.Equal(t, slog.LevelError, levelForStatus(http.StatusBadGateway))
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(Recovery(discardLogger()))
	router.GET("/panic", func(*gin.Context) { panic("boom") })
	router.GET("/written", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
		c.Writer.WriteHeaderNow()
		panic("late")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrorCodeInternal, resp.Error.Code)
	assert.NotContains(t, w.Body.String(), "boom")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(Timeout(20 * time.Millisecond))
	router.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	router.GET("/fast", func(c *gin.Context) {
		_, hasDeadline := c.Request.Context().Deadline()
		assert.True(t, hasDeadline)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrorCodeTimeout, resp.Error.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
