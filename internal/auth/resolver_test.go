package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolvePrecedence(t *testing.T) {
	r := NewResolver("leadconnector")

	req := httptest.NewRequest(http.MethodGet, "/api/contacts?token=from-query", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	req.AddCookie(&http.Cookie{Name: "leadconnector_access_token", Value: "from-cookie"})

	tok, src, err := r.ResolveWithSource(req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tok != "from-cookie" || src != "cookie:leadconnector_access_token" {
		t.Fatalf("expected cookie token, got %q from %s", tok, src)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/contacts?token=from-query", nil)
	req.Header.Set("Authorization", "bearer from-header")
	if tok, _ := r.Resolve(req); tok != "from-header" {
		t.Fatalf("expected header token, got %q", tok)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/contacts?token=from-query", nil)
	if tok, _ := r.Resolve(req); tok != "from-query" {
		t.Fatalf("expected query token, got %q", tok)
	}
}

func TestResolveSkipsEmptyCarriers(t *testing.T) {
	r := NewResolver("leadconnector")
	req := httptest.NewRequest(http.MethodGet, "/api/contacts?token=q", nil)
	req.AddCookie(&http.Cookie{Name: "leadconnector_access_token", Value: ""})
	req.Header.Set("Authorization", "Basic abc")
	if tok, _ := r.Resolve(req); tok != "q" {
		t.Fatalf("expected fallthrough to query, got %q", tok)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := NewResolver("leadconnector")
	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	if _, err := r.Resolve(req); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestRefreshTokenCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "leadconnector_refresh_token", Value: "rt"})
	if got := RefreshToken(req, "leadconnector"); got != "rt" {
		t.Fatalf("expected rt, got %q", got)
	}
}
