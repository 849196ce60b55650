package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/flagcontext-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/flagcontext-service/internal/platform/config"
)

const (
	// ContextKeyClaims is the gin context key for storing extracted claims.
	ContextKeyClaims = "claims"

	defaultSubjectHeader = "X-User-ID"
	defaultRolesHeader   = "X-User-Roles"
	defaultScopesHeader  = "X-User-Scopes"
)

// Claims are the identity facts the gateway (Envoy, API Gateway) forwards
// as headers after validating the caller's token. Subject becomes the
// FlagContext UserID.
type Claims struct {
	Subject string
	Roles   []string
	Scopes  []string
}

// claimHeaders are the header names claims are read from.
type claimHeaders struct {
	subject string
	roles   string
	scopes  string
}

func headersFor(cfg *config.AuthConfig) claimHeaders {
	h := claimHeaders{
		subject: defaultSubjectHeader,
		roles:   defaultRolesHeader,
		scopes:  defaultScopesHeader,
	}

	if cfg == nil {
		return h
	}

	if cfg.SubjectHeader != "" {
		h.subject = cfg.SubjectHeader
	}

	if cfg.RolesHeader != "" {
		h.roles = cfg.RolesHeader
	}

	if cfg.ScopesHeader != "" {
		h.scopes = cfg.ScopesHeader
	}

	return h
}

func (h claimHeaders) extract(c *gin.Context) *Claims {
	return &Claims{
		Subject: strings.TrimSpace(c.GetHeader(h.subject)),
		// Roles are comma separated; scopes are space separated (OAuth2).
		Roles:  splitNonEmpty(c.GetHeader(h.roles), func(r rune) bool { return r == ',' }),
		Scopes: strings.Fields(c.GetHeader(h.scopes)),
	}
}

// ExtractClaims reads claims from the request headers named in cfg.
// A nil cfg uses the default header names.
func ExtractClaims(c *gin.Context, cfg *config.AuthConfig) *Claims {
	return headersFor(cfg).extract(c)
}

// GetClaims returns the claims stored on the gin context, or nil.
func GetClaims(c *gin.Context) *Claims {
	if v, ok := c.Get(ContextKeyClaims); ok {
		if claims, ok := v.(*Claims); ok {
			return claims
		}
	}

	return nil
}

// RequireAuth returns middleware that rejects requests without a subject
// with 403 FORBIDDEN and stores the claims of the others.
func RequireAuth(cfg *config.AuthConfig) gin.HandlerFunc {
	headers := headersFor(cfg)

	return func(c *gin.Context) {
		claims := headers.extract(c)
		if claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponse(
				dto.ErrorCodeForbidden,
				"authentication required",
			).WithTraceID(dto.GetTraceID(c)))

			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// getOrExtractClaims returns the stored claims, extracting and storing them
// first when RequireAuth did not run.
func getOrExtractClaims(c *gin.Context, cfg *config.AuthConfig) *Claims {
	if claims := GetClaims(c); claims != nil {
		return claims
	}

	claims := ExtractClaims(c, cfg)
	c.Set(ContextKeyClaims, claims)

	return claims
}

func splitNonEmpty(s string, sep func(rune) bool) []string {
	var out []string

	for _, part := range strings.FieldsFunc(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
