// Package middleware provides the gin middleware chain: panic recovery,
// request and correlation IDs, request logging, deadlines, gateway claims
// and the per-request FlagContext.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jsamuelsen/flagcontext-service/internal/platform/logging"
)

const (
	// HeaderRequestID identifies a single hop.
	HeaderRequestID = "X-Request-ID"

	// HeaderCorrelationID follows a transaction across services.
	HeaderCorrelationID = "X-Correlation-ID"

	// ContextKeyRequestID is the gin context key holding the request ID.
	ContextKeyRequestID = "request_id"

	// ContextKeyCorrelationID is the gin context key holding the correlation ID.
	ContextKeyCorrelationID = "correlation_id"

	// maxIDLength bounds caller-supplied IDs; longer values are replaced.
	maxIDLength = 128
)

type idKey int

const (
	requestIDKey idKey = iota
	correlationIDKey
)

type idSpec struct {
	header string
	ginKey string
	ctxKey idKey
	enrich func(ctx context.Context, id string) context.Context
}

// RequestID returns middleware that accepts or generates X-Request-ID,
// echoes it in the response, and attaches it to the request logger and
// context (the toggle server client forwards it from there).
func RequestID() gin.HandlerFunc {
	return propagateID(idSpec{
		header: HeaderRequestID,
		ginKey: ContextKeyRequestID,
		ctxKey: requestIDKey,
		enrich: logging.WithRequestID,
	})
}

// CorrelationID is RequestID for X-Correlation-ID.
func CorrelationID() gin.HandlerFunc {
	return propagateID(idSpec{
		header: HeaderCorrelationID,
		ginKey: ContextKeyCorrelationID,
		ctxKey: correlationIDKey,
		enrich: logging.WithCorrelationID,
	})
}

func propagateID(ids idSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(ids.header)
		if id == "" || len(id) > maxIDLength {
			id = uuid.NewString()
		}

		c.Set(ids.ginKey, id)
		c.Header(ids.header, id)

		ctx := context.WithValue(c.Request.Context(), ids.ctxKey, id)
		c.Request = c.Request.WithContext(ids.enrich(ctx, id))

		c.Next()
	}
}

// GetRequestID returns the request ID set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// GetCorrelationID returns the correlation ID set by CorrelationID, or "".
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}

// RequestIDFromContext returns the request ID stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, requestIDKey)
}

// CorrelationIDFromContext returns the correlation ID stored in ctx, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, correlationIDKey)
}

// ContextWithRequestID stores a request ID in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithCorrelationID stores a correlation ID in ctx.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func idFromContext(ctx context.Context, key idKey) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(key).(string)

	return id
}
