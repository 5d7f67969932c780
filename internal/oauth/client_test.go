package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"crmdash-go/internal/credential"
	apperrors "crmdash-go/internal/errors"
)

type testOAuthServer struct {
	t      *testing.T
	server *httptest.Server

	mu             sync.Mutex
	refreshHandled int
	rotate         bool
	rejectRefresh  bool
	lastForm       url.Values
}

func newTestOAuthServer(t *testing.T) *testOAuthServer {
	t.Helper()

	s := &testOAuthServer{t: t, rotate: true}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = r.ParseForm()
		s.mu.Lock()
		s.lastForm = r.Form
		s.mu.Unlock()

		switch r.Form.Get("grant_type") {
		case "refresh_token":
			s.mu.Lock()
			s.refreshHandled++
			reject, rotate := s.rejectRefresh, s.rotate
			s.mu.Unlock()
			if reject {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
				return
			}
			resp := TokenResponse{AccessToken: "refreshed-token", ExpiresIn: 3600, TokenType: "Bearer"}
			if rotate {
				resp.RefreshToken = "next-refresh-token"
			}
			_ = json.NewEncoder(w).Encode(resp)
		case "authorization_code":
			if r.Form.Get("code") == "bad" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(TokenResponse{
				AccessToken:  "access-" + r.Form.Get("code"),
				RefreshToken: "refresh-" + r.Form.Get("code"),
				ExpiresIn:    86399,
				TokenType:    "Bearer",
				LocationID:   "loc-1",
				UserID:       "user-1",
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func (s *testOAuthServer) form() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastForm
}

func (s *testOAuthServer) refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshHandled
}

func (s *testOAuthServer) options() Options {
	return Options{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:3000/oauth/callback",
		AuthURL:      s.server.URL + "/oauth/chooselocation",
		TokenURL:     s.server.URL + "/oauth/token",
		Scopes:       []string{"contacts.readonly", "opportunities.readonly"},
		Timeout:      5 * time.Second,
	}
}

func TestAuthCodeURLAndState(t *testing.T) {
	srv := newTestOAuthServer(t)
	c := NewClient(srv.options(), credential.NewStore())

	authURL, state, err := c.AuthCodeURL()
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != "client-id" || q.Get("state") != state || q.Get("response_type") != "code" {
		t.Fatalf("unexpected consent url: %s", authURL)
	}
	if q.Get("scope") != "contacts.readonly opportunities.readonly" {
		t.Fatalf("unexpected scope %q", q.Get("scope"))
	}
	if !c.ValidateState(state) {
		t.Fatalf("expected issued state to validate")
	}
	if c.ValidateState(state) {
		t.Fatalf("state must be single use")
	}
	if c.ValidateState("forged") {
		t.Fatalf("unknown state must not validate")
	}
}

func TestAuthCodeURLRequiresClientID(t *testing.T) {
	c := NewClient(Options{}, credential.NewStore())
	_, _, err := c.AuthCodeURL()
	var ce *apperrors.ConfigError
	if !errors.As(err, &ce) || ce.Field != "CLIENT_ID" {
		t.Fatalf("expected CLIENT_ID config error, got %v", err)
	}
}

func TestExchangeCodeWritesStore(t *testing.T) {
	srv := newTestOAuthServer(t)
	store := credential.NewStore()
	c := NewClient(srv.options(), store)

	cred, err := c.ExchangeCode(context.Background(), "abc")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if cred.AccessToken != "access-abc" || cred.RefreshToken != "refresh-abc" {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if cred.AcquiredVia != credential.GrantAuthorizationCode || cred.LocationID != "loc-1" || cred.UserID != "user-1" {
		t.Fatalf("unexpected metadata %+v", cred)
	}
	if cred.ExpiresAt.IsZero() {
		t.Fatalf("expected expiry from expires_in")
	}
	stored, ok := store.Get()
	if !ok || stored.AccessToken != "access-abc" {
		t.Fatalf("store not updated: %+v", stored)
	}
	if form := srv.form(); form.Get("client_secret") != "client-secret" || form.Get("redirect_uri") == "" {
		t.Fatalf("client credentials not posted in body: %v", form)
	}
}

func TestExchangeCodeFailure(t *testing.T) {
	srv := newTestOAuthServer(t)
	store := credential.NewStore()
	c := NewClient(srv.options(), store)

	_, err := c.ExchangeCode(context.Background(), "bad")
	var ae *apperrors.UpstreamAuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected UpstreamAuthError, got %v", err)
	}
	if ae.Status != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", ae.Status)
	}
	if _, ok := store.Get(); ok {
		t.Fatalf("failed exchange must not populate the store")
	}
}

func TestRefreshRotatesAndKeepsOldRefreshToken(t *testing.T) {
	srv := newTestOAuthServer(t)
	store := credential.NewStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClient(srv.options(), store, WithNowFunc(func() time.Time { return now }))

	cred, err := c.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if cred.RefreshToken != "next-refresh-token" || cred.AcquiredVia != credential.GrantRefresh {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if !cred.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", cred.ExpiresAt)
	}

	srv.mu.Lock()
	srv.rotate = false
	srv.mu.Unlock()
	cred, err = c.Refresh(context.Background(), "rt-2")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if cred.RefreshToken != "rt-2" {
		t.Fatalf("expected unrotated refresh token to be kept, got %q", cred.RefreshToken)
	}
	if n := srv.refreshes(); n != 2 {
		t.Fatalf("expected 2 refresh calls, got %d", n)
	}
}

func TestRefreshFailureLeavesStoreUntouched(t *testing.T) {
	srv := newTestOAuthServer(t)
	srv.rejectRefresh = true
	store := credential.NewStore()
	store.Set(credential.Credential{AccessToken: "old", RefreshToken: "rt"})
	c := NewClient(srv.options(), store)

	_, err := c.Refresh(context.Background(), "rt")
	var ae *apperrors.UpstreamAuthError
	if !errors.As(err, &ae) || ae.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 UpstreamAuthError, got %v", err)
	}
	got, _ := store.Get()
	if got.AccessToken != "old" || got.RefreshToken != "rt" {
		t.Fatalf("store changed after failed refresh: %+v", got)
	}
}

func TestRefreshWithoutToken(t *testing.T) {
	c := NewClient(Options{ClientID: "id", ClientSecret: "secret"}, credential.NewStore())
	if _, err := c.Refresh(context.Background(), ""); !errors.Is(err, credential.ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
}
