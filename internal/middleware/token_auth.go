package middleware

import (
	"net/http"

	"crmdash-go/internal/auth"
	apperrors "crmdash-go/internal/errors"

	"github.com/gin-gonic/gin"
)

// Context keys set by TokenAuth.
const (
	ContextAccessToken  = "access_token"
	ContextRefreshToken = "refresh_token"
	ContextTokenSource  = "token_source"
)

// TokenAuth resolves the caller's bearer token and refresh cookie into the
// gin context. A missing token is not an error here: the proxy falls back to
// the server-side credential.
func TokenAuth(resolver *auth.Resolver, provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, source, err := resolver.ResolveWithSource(c.Request); err == nil {
			c.Set(ContextAccessToken, token)
			c.Set(ContextTokenSource, source)
		}
		if rt := auth.RefreshToken(c.Request, provider); rt != "" {
			c.Set(ContextRefreshToken, rt)
		}
		c.Next()
	}
}

// RequireToken rejects requests for which neither the caller nor has() can
// supply a token.
func RequireToken(has func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextAccessToken) != "" || (has != nil && has()) {
			c.Next()
			return
		}
		payload, _ := apperrors.New(http.StatusUnauthorized, "unauthenticated", "authentication_error",
			"Not authenticated with the CRM. Visit /auth to connect your account.").ToJSON()
		c.Data(http.StatusUnauthorized, "application/json", payload)
		c.Abort()
	}
}
