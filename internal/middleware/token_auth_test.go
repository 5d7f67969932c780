package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"crmdash-go/internal/auth"

	"github.com/gin-gonic/gin"
)

func TestTokenAuthSetsContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TokenAuth(auth.NewResolver("crm"), "crm"))

	var token, source, refresh string
	router.GET("/api/contacts", func(c *gin.Context) {
		token = c.GetString(ContextAccessToken)
		source = c.GetString(ContextTokenSource)
		refresh = c.GetString(ContextRefreshToken)
		c.Status(200)
	})

	req := httptest.NewRequest("GET", "/api/contacts?token=from-query", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	req.AddCookie(&http.Cookie{Name: "crm_refresh_token", Value: "rt"})
	router.ServeHTTP(httptest.NewRecorder(), req)

	if token != "from-header" || source != "header:authorization" {
		t.Fatalf("expected header token, got %q from %q", token, source)
	}
	if refresh != "rt" {
		t.Fatalf("expected refresh cookie, got %q", refresh)
	}
}

func TestTokenAuthWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TokenAuth(auth.NewResolver("crm"), "crm"))
	router.GET("/x", func(c *gin.Context) {
		if _, ok := c.Get(ContextAccessToken); ok {
			t.Error("no token should be set")
		}
		c.Status(204)
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))
	if w.Code != 204 {
		t.Fatalf("missing token must not abort, got %d", w.Code)
	}
}

func TestRequireToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stored := false
	router := gin.New()
	router.Use(TokenAuth(auth.NewResolver("crm"), "crm"), RequireToken(func() bool { return stored }))
	router.GET("/x", func(c *gin.Context) { c.Status(200) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	stored = true
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))
	if w.Code != 200 {
		t.Fatalf("stored credential should pass, got %d", w.Code)
	}

	stored = false
	req := httptest.NewRequest("GET", "/x", nil)
	req.AddCookie(&http.Cookie{Name: "crm_access_token", Value: "cookie"})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("caller token should pass, got %d", w.Code)
	}
}
