package common

import (
	"strings"

	"crmdash-go/internal/credential"
	"crmdash-go/internal/middleware"

	"github.com/gin-gonic/gin"
)

// CallerTokens returns the tokens TokenAuth resolved for this request.
func CallerTokens(c *gin.Context) (access, refresh string) {
	return c.GetString(middleware.ContextAccessToken), c.GetString(middleware.ContextRefreshToken)
}

// LocationID picks the sub-account for a call: the caller's locationId query
// parameter, then the configured default, then the one the grant was issued for.
func LocationID(c *gin.Context, configured string, store *credential.Store) string {
	if v := strings.TrimSpace(c.Query("locationId")); v != "" {
		return v
	}
	if configured != "" {
		return configured
	}
	if store != nil {
		if cred, ok := store.Get(); ok {
			return cred.LocationID
		}
	}
	return ""
}
