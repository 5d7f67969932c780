// Package connect serves the browser OAuth flow: consent redirect, callback,
// logout and status.
package connect

import (
	"context"
	"net/http"
	"strings"
	"time"

	"crmdash-go/internal/auth"
	"crmdash-go/internal/config"
	"crmdash-go/internal/credential"
	hcommon "crmdash-go/internal/handlers/common"
	"crmdash-go/internal/logging"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Flow is the part of the OAuth client the routes use.
type Flow interface {
	AuthCodeURL() (authURL, state string, err error)
	ValidateState(state string) bool
	ExchangeCode(ctx context.Context, code string) (credential.Credential, error)
}

// Handler serves /auth, /oauth/callback, /auth/logout and /auth/status.
type Handler struct {
	flow     Flow
	store    *credential.Store
	provider string
	cookies  config.CookieConfig
	now      func() time.Time
}

// New builds the handler for the named provider.
func New(flow Flow, store *credential.Store, provider string, cookies config.CookieConfig) *Handler {
	if cookies.RefreshTTLDays <= 0 {
		cookies.RefreshTTLDays = 30
	}
	return &Handler{flow: flow, store: store, provider: provider, cookies: cookies, now: time.Now}
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/auth", h.Start)
	r.GET("/oauth/callback", h.Callback)
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/status", h.Status)
}

// Start redirects the browser to the provider consent page.
func (h *Handler) Start(c *gin.Context) {
	authURL, _, err := h.flow.AuthCodeURL()
	if err != nil {
		hcommon.AbortWithError(c, err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback exchanges the authorization code and sets the token cookies.
func (h *Handler) Callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		hcommon.AbortWithStatus(c, http.StatusBadRequest, "authorization_denied", firstNonEmpty(c.Query("error_description"), errParam))
		return
	}
	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		hcommon.AbortWithStatus(c, http.StatusBadRequest, "missing_code", "Authorization code is required")
		return
	}
	if state := c.Query("state"); state != "" && !h.flow.ValidateState(state) {
		logging.WithReq(c, nil).Warn("oauth callback with unknown or expired state")
		hcommon.AbortWithStatus(c, http.StatusBadRequest, "invalid_state", "OAuth state is invalid or expired")
		return
	}

	cred, err := h.flow.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		hcommon.AbortWithError(c, err)
		return
	}
	h.setTokenCookies(c, cred)

	resp := gin.H{"success": true, "acquired_via": cred.AcquiredVia}
	if cred.ExpiryKnown() {
		resp["expires_at"] = cred.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if cred.LocationID != "" {
		resp["location_id"] = cred.LocationID
	}
	logging.WithReq(c, log.Fields{"location_id": cred.LocationID}).Info("crm account connected")
	c.JSON(http.StatusOK, resp)
}

// Logout forgets the server-side credential and expires both cookies.
func (h *Handler) Logout(c *gin.Context) {
	h.store.Clear()
	h.writeCookie(c, auth.AccessCookieName(h.provider), "", -1)
	h.writeCookie(c, auth.RefreshCookieName(h.provider), "", -1)
	logging.WithReq(c, nil).Info("crm account disconnected")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Status reports whether a credential is held and when it expires.
func (h *Handler) Status(c *gin.Context) {
	cred, ok := h.store.Get()
	resp := gin.H{"authenticated": ok}
	if ok {
		resp["acquired_via"] = cred.AcquiredVia
		resp["has_refresh_token"] = cred.RefreshToken != ""
		resp["expired"] = cred.IsExpired(h.now())
		if cred.ExpiryKnown() {
			resp["expires_at"] = cred.ExpiresAt.UTC().Format(time.RFC3339)
		}
		if cred.LocationID != "" {
			resp["location_id"] = cred.LocationID
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) setTokenCookies(c *gin.Context, cred credential.Credential) {
	// Zero max-age makes a session cookie when the provider gave no expiry.
	maxAge := 0
	if cred.ExpiryKnown() {
		if ttl := int(cred.TTL(h.now()).Seconds()); ttl > 0 {
			maxAge = ttl
		}
	}
	h.writeCookie(c, auth.AccessCookieName(h.provider), cred.AccessToken, maxAge)
	if cred.RefreshToken != "" {
		h.writeCookie(c, auth.RefreshCookieName(h.provider), cred.RefreshToken, h.cookies.RefreshTTLDays*24*60*60)
	}
}

func (h *Handler) writeCookie(c *gin.Context, name, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   maxAge,
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: sameSite(h.cookies.SameSite),
	})
}

func sameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
