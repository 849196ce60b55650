package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/flagcontext-service/internal/adapters/http/middleware"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/config"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/logging"
)

const (
	instrumentationName = "github.com/jsamuelsen/flagcontext-service/internal/adapters/clients"

	defaultTimeout = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	// BaseURL prefixes every request path, e.g. "http://unleash:4242/api".
	BaseURL string

	// ServiceName names the downstream in logs, spans, metrics and health.
	ServiceName string

	// Timeout bounds a single attempt. Retries and backoff come on top.
	Timeout time.Duration

	Retry     config.RetryConfig
	Circuit   config.CircuitBreakerConfig
	Transport config.TransportConfig

	// Headers are sent with every request (e.g. UNLEASH-APPNAME).
	Headers map[string]string

	// AuthFunc runs on every attempt so a rotated token is picked up.
	AuthFunc func(*http.Request)

	Logger *slog.Logger
}

// StatusError is a retryable response status (5xx or 429) that survived
// every attempt.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client is the HTTP client used to reach the toggle server. Calls pass
// through a circuit breaker and are retried with exponential backoff;
// request and correlation IDs and the trace context are forwarded.
type Client struct {
	http        *http.Client
	baseURL     string
	serviceName string
	cfg         *Config
	logger      *slog.Logger
	cb          *CircuitBreaker
	tracer      trace.Tracer

	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	retryTotal      metric.Int64Counter
}

// New creates a Client. Zero transport settings fall back to the config
// package defaults.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	if cfg.ServiceName == "" {
		return nil, errors.New("service name is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	cfg.Retry.MaxAttempts = max(cfg.Retry.MaxAttempts, 1)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(
		slog.String("component", "clients.Client"),
		slog.String("downstream", cfg.ServiceName),
	)

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:          cfg.ServiceName,
		MaxFailures:   cfg.Circuit.MaxFailures,
		Timeout:       cfg.Circuit.Timeout,
		HalfOpenLimit: cfg.Circuit.HalfOpenLimit,
	})
	cb.OnStateChange(func(from, to State) {
		logger.Warn("circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	meter := otel.Meter(instrumentationName)

	requestDuration, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of toggle server requests including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration metric: %w", err)
	}

	requestTotal, err := meter.Int64Counter(
		"http.client.request.total",
		metric.WithDescription("Toggle server requests by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request counter: %w", err)
	}

	retryTotal, err := meter.Int64Counter(
		"http.client.request.retries",
		metric.WithDescription("Toggle server request attempts that were retried"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating retry counter: %w", err)
	}

	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newTransport(cfg.Transport),
		},
		baseURL:         strings.TrimSuffix(cfg.BaseURL, "/"),
		serviceName:     cfg.ServiceName,
		cfg:             cfg,
		logger:          logger,
		cb:              cb,
		tracer:          otel.Tracer(instrumentationName),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		retryTotal:      retryTotal,
	}, nil
}

func newTransport(tc config.TransportConfig) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib default
	t.MaxIdleConns = config.DefaultTransportMaxIdleConns
	t.MaxIdleConnsPerHost = config.DefaultTransportMaxIdleConnsPerHost
	t.IdleConnTimeout = config.DefaultTransportIdleConnTimeout

	if tc.MaxIdleConns > 0 {
		t.MaxIdleConns = tc.MaxIdleConns
	}

	if tc.MaxIdleConnsPerHost > 0 {
		t.MaxIdleConnsPerHost = tc.MaxIdleConnsPerHost
	}

	if tc.IdleConnTimeout > 0 {
		t.IdleConnTimeout = tc.IdleConnTimeout
	}

	return t
}

// Do sends req. A response below 500 (other than 429) is returned as is and
// the caller must close its body. Connection failures, 5xx and 429 are
// retried; once attempts run out the error wraps ErrMaxRetriesExceeded. An
// open circuit fails fast with ErrCircuitOpen.
//
// A request with a body is only retried when req.GetBody is set.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	logger := logging.FromContextOr(ctx, c.logger).With(
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
	)

	if !c.cb.Allow() {
		c.record(ctx, req.Method, 0, time.Since(start), "circuit_open")
		logger.Warn("request blocked by circuit breaker")

		return nil, ErrCircuitOpen
	}

	ctx, span := c.tracer.Start(ctx, "HTTP "+req.Method+" "+c.serviceName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
			attribute.String("peer.service", c.serviceName),
		),
	)
	defer span.End()

	c.injectHeaders(ctx, req)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	attempts := uint(c.cfg.Retry.MaxAttempts) //nolint:gosec // clamped to >= 1 in New
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		attempts = 1
	}

	attempt := 0
	resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
		attempt++
		return c.attempt(ctx, req, attempt)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.retryTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("peer.service", c.serviceName)))
			logger.Debug("retrying request",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.Any("error", err),
			)
		}),
	)

	duration := time.Since(start)

	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}

		c.cb.RecordFailure()
		span.SetStatus(codes.Error, err.Error())
		c.record(ctx, req.Method, 0, duration, "error")
		logger.Error("request failed",
			slog.Int("attempts", attempt),
			slog.Duration("duration", duration),
			slog.Any("error", err),
		)

		return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
	}

	c.cb.RecordSuccess()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(resp.StatusCode))
	}

	c.record(ctx, req.Method, resp.StatusCode, duration, strconv.Itoa(resp.StatusCode/100)+"xx")
	logger.Debug("request completed",
		slog.Int("status", resp.StatusCode),
		slog.Int("attempts", attempt),
		slog.Duration("duration", duration),
	)

	return resp, nil
}

// attempt sends one copy of req. Errors that must not be retried come back
// wrapped in backoff.Permanent.
func (c *Client) attempt(ctx context.Context, req *http.Request, n int) (*http.Response, error) {
	r := req.Clone(ctx)

	if n > 1 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("rewinding request body: %w", err))
		}

		r.Body = body
	}

	if c.cfg.AuthFunc != nil {
		c.cfg.AuthFunc(r)
	}

	resp, err := c.http.Do(r)
	if err != nil {
		if ctx.Err() == nil && isRetryableError(err) {
			return nil, err
		}

		return nil, backoff.Permanent(err)
	}

	if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	statusErr := &StatusError{StatusCode: resp.StatusCode}
	if secs := c.retryAfter(resp.Header.Get("Retry-After")); secs > 0 {
		return nil, fmt.Errorf("%w: %w", statusErr, backoff.RetryAfter(secs))
	}

	return nil, statusErr
}

// retryAfter parses a delay-seconds Retry-After value, capped at the
// configured MaxInterval. HTTP-date values are ignored.
func (c *Client) retryAfter(header string) int {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}

	if limit := int(c.cfg.Retry.MaxInterval / time.Second); limit > 0 {
		secs = min(secs, limit)
	}

	return secs
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()

	if c.cfg.Retry.InitialInterval > 0 {
		b.InitialInterval = c.cfg.Retry.InitialInterval
	}

	if c.cfg.Retry.MaxInterval > 0 {
		b.MaxInterval = c.cfg.Retry.MaxInterval
	}

	if c.cfg.Retry.Multiplier > 1 {
		b.Multiplier = c.cfg.Retry.Multiplier
	}

	b.RandomizationFactor = c.cfg.Retry.JitterFactor

	return b
}

// RequestOption customizes a single outgoing request.
type RequestOption func(*http.Request)

// WithHeader sets a header on the request, e.g. If-None-Match for
// conditional toggle fetches. Empty values are skipped.
func WithHeader(key, value string) RequestOption {
	return func(req *http.Request) {
		if value != "" {
			req.Header.Set(key, value)
		}
	}
}

// Get performs a GET accepting JSON.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	return c.Do(ctx, req)
}

// Post sends body as JSON. The body is replayed on retries.
func (c *Client) Post(ctx context.Context, path string, body []byte, opts ...RequestOption) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	return c.Do(ctx, req)
}

// CircuitState returns the breaker state.
func (c *Client) CircuitState() State {
	return c.cb.State()
}

// CircuitBreaker exposes the breaker so it can be registered as a health check.
func (c *Client) CircuitBreaker() *CircuitBreaker {
	return c.cb
}

func (c *Client) injectHeaders(ctx context.Context, req *http.Request) {
	for key, value := range c.cfg.Headers {
		req.Header.Set(key, value)
	}

	if id := middleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderRequestID, id)
	}

	if id := middleware.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderCorrelationID, id)
	}
}

func (c *Client) buildURL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return c.baseURL + path
}

func (c *Client) record(ctx context.Context, method string, status int, d time.Duration, result string) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("peer.service", c.serviceName),
		attribute.String("result", result),
	}

	if status > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", status))
	}

	set := metric.WithAttributes(attrs...)
	c.requestDuration.Record(ctx, d.Seconds(), set)
	c.requestTotal.Add(ctx, 1, set)
}

// isRetryableError reports whether a transport error is worth another
// attempt: per-attempt timeouts and connection failures are.
func isRetryableError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}
