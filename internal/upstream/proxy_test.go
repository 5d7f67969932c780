package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crmdash-go/internal/credential"
	apperrors "crmdash-go/internal/errors"
)

type fakeRefresher struct {
	store *credential.Store
	calls atomic.Int32
	delay time.Duration
	err   error
	next  string
	seen  []string
	mu    sync.Mutex
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (credential.Credential, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, refreshToken)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return credential.Credential{}, f.err
	}
	cred := credential.Credential{AccessToken: f.next, RefreshToken: "rotated", AcquiredVia: credential.GrantRefresh}
	f.store.Set(cred)
	return cred, nil
}

// crmServer accepts only the bearer token in valid and counts hits.
func crmServer(t *testing.T, valid string, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+valid {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"statusCode":401,"message":"Invalid JWT"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"message":"upstream exploded"}`))
			return
		}
		_, _ = w.Write([]byte(`{"contacts":[{"id":"c1"}],"meta":{"total":1}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestProxy(srv *httptest.Server, store *credential.Store, r Refresher) *Proxy {
	return NewProxy(Options{
		Provider:   "leadconnector",
		APIBase:    srv.URL,
		APIVersion: "2021-07-28",
		Timeout:    5 * time.Second,
	}, store, credential.NewRefreshCoordinator(store), r, WithHTTPClient(srv.Client()))
}

func TestProxyRefreshesOnceForConcurrent401s(t *testing.T) {
	srv, _ := crmServer(t, "fresh", http.StatusOK)
	store := credential.NewStore()
	store.Set(credential.Credential{AccessToken: "stale", RefreshToken: "rt"})
	ref := &fakeRefresher{store: store, next: "fresh", delay: 30 * time.Millisecond}
	p := newTestProxy(srv, store, ref)

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := p.Get(context.Background(), "/contacts/", nil, "", "")
			if err == nil && resp.Status != http.StatusOK {
				err = errors.New("unexpected status")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
	}
	if got := ref.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
	cred, _ := store.Get()
	if cred.AccessToken != "fresh" {
		t.Fatalf("store not updated: %+v", cred)
	}
}

func TestProxySecond401IsUnauthenticated(t *testing.T) {
	srv, hits := crmServer(t, "never-valid", http.StatusOK)
	store := credential.NewStore()
	store.Set(credential.Credential{AccessToken: "stale", RefreshToken: "rt"})
	ref := &fakeRefresher{store: store, next: "also-rejected"}
	p := newTestProxy(srv, store, ref)

	_, err := p.Get(context.Background(), "/contacts/", nil, "", "")
	if !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected exactly one retry (2 hits), got %d", got)
	}
	if got := ref.calls.Load(); got != 1 {
		t.Fatalf("expected one refresh, got %d", got)
	}
}

func TestProxyWithoutCredentialMakesNoCall(t *testing.T) {
	srv, hits := crmServer(t, "x", http.StatusOK)
	store := credential.NewStore()
	p := newTestProxy(srv, store, &fakeRefresher{store: store})

	_, err := p.Get(context.Background(), "/contacts/", nil, "", "")
	if !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no upstream call, got %d", hits.Load())
	}
}

func TestProxyServerErrorIsUpstreamError(t *testing.T) {
	srv, hits := crmServer(t, "good", http.StatusBadGateway)
	store := credential.NewStore()
	store.Set(credential.Credential{AccessToken: "good", RefreshToken: "rt"})
	ref := &fakeRefresher{store: store}
	p := newTestProxy(srv, store, ref)

	_, err := p.Get(context.Background(), "/opportunities/search", nil, "", "")
	ue, ok := apperrors.AsUpstream(err)
	if !ok {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusBadGateway || string(ue.Body) != `{"message":"upstream exploded"}` {
		t.Fatalf("unexpected upstream error %+v", ue)
	}
	if hits.Load() != 1 || ref.calls.Load() != 0 {
		t.Fatalf("non-401 failures must not retry or refresh")
	}
}

func TestProxyRefreshFailureKeepsStore(t *testing.T) {
	srv, _ := crmServer(t, "fresh", http.StatusOK)
	store := credential.NewStore()
	store.Set(credential.Credential{AccessToken: "stale", RefreshToken: "rt"})
	ref := &fakeRefresher{store: store, err: &apperrors.UpstreamAuthError{Grant: "refresh_token", Status: 400}}
	p := newTestProxy(srv, store, ref)

	_, err := p.Get(context.Background(), "/contacts/", nil, "", "")
	if !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	cred, _ := store.Get()
	if cred.AccessToken != "stale" || cred.RefreshToken != "rt" {
		t.Fatalf("store changed after failed refresh: %+v", cred)
	}
}

func TestProxyUsesCallerTokensWhenStoreEmpty(t *testing.T) {
	srv, _ := crmServer(t, "fresh", http.StatusOK)
	store := credential.NewStore()
	ref := &fakeRefresher{store: store, next: "fresh"}
	p := newTestProxy(srv, store, ref)

	resp, err := p.Get(context.Background(), "/contacts/", nil, "cookie-access", "cookie-refresh")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !resp.Refreshed {
		t.Fatalf("expected refreshed response")
	}
	ref.mu.Lock()
	defer ref.mu.Unlock()
	if len(ref.seen) != 1 || ref.seen[0] != "cookie-refresh" {
		t.Fatalf("expected cookie refresh token to be used, got %v", ref.seen)
	}
}

func TestProxyNoRefreshTokenIsUnauthenticated(t *testing.T) {
	srv, hits := crmServer(t, "fresh", http.StatusOK)
	store := credential.NewStore()
	store.Set(credential.Credential{AccessToken: "stale"})
	ref := &fakeRefresher{store: store, next: "fresh"}
	p := newTestProxy(srv, store, ref)

	_, err := p.Get(context.Background(), "/contacts/", nil, "", "")
	if !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if hits.Load() != 1 || ref.calls.Load() != 0 {
		t.Fatalf("expected no retry without refresh token")
	}
}

func TestProxyHeadersAndParams(t *testing.T) {
	var mu sync.Mutex
	var gotVersion, gotAccept, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotVersion = r.Header.Get("Version")
		gotAccept = r.Header.Get("Accept")
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	store := credential.NewStore()
	store.Set(credential.Credential{AccessToken: "tok"})
	p := newTestProxy(srv, store, nil)

	params := url.Values{"locationId": {"loc-1"}, "limit": {"100"}}
	if _, err := p.Get(context.Background(), "contacts/", params, "", ""); err != nil {
		t.Fatalf("Get: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotVersion != "2021-07-28" || gotAccept != "application/json" {
		t.Fatalf("missing provider headers: version=%q accept=%q", gotVersion, gotAccept)
	}
	if gotQuery != "limit=100&locationId=loc-1" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}

func TestProxyFailedRefreshIsSharedByConcurrent401s(t *testing.T) {
	srv, _ := crmServer(t, "fresh", http.StatusOK)
	store := credential.NewStore()
	store.Set(credential.Credential{AccessToken: "stale", RefreshToken: "revoked"})
	ref := &fakeRefresher{store: store, err: errors.New("invalid_grant"), delay: 30 * time.Millisecond}
	p := newTestProxy(srv, store, ref)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Get(context.Background(), "/contacts/", nil, "", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, apperrors.ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
	}
	if got := ref.calls.Load(); got != 1 {
		t.Fatalf("expected one refresh attempt for the rejected token, got %d", got)
	}
}

func TestProxyRefreshConfigErrorIsNotUnauthenticated(t *testing.T) {
	srv, _ := crmServer(t, "fresh", http.StatusOK)
	store := credential.NewStore()
	store.Set(credential.Credential{AccessToken: "stale", RefreshToken: "rt"})
	ref := &fakeRefresher{store: store, err: &apperrors.ConfigError{Field: "CLIENT_SECRET"}}
	p := newTestProxy(srv, store, ref)

	_, err := p.Get(context.Background(), "/contacts/", nil, "", "")
	if _, ok := apperrors.AsConfig(err); !ok {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("config error must not read as unauthenticated: %v", err)
	}
	if got := apperrors.FromError(err).HTTPStatus; got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}

func TestProxyOversizedBodyIsUpstreamError(t *testing.T) {
	srv, _ := crmServer(t, "ok", http.StatusOK)
	store := credential.NewStore()
	store.Set(credential.Credential{AccessToken: "ok"})
	p := NewProxy(Options{APIBase: srv.URL, Timeout: 5 * time.Second}, store, nil, nil,
		WithHTTPClient(srv.Client()), WithMaxBodyBytes(16))

	_, err := p.Get(context.Background(), "/contacts/", nil, "", "")
	ue, ok := apperrors.AsUpstream(err)
	if !ok {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusOK {
		t.Fatalf("expected upstream status to be kept, got %d", ue.Status)
	}

	p = NewProxy(Options{APIBase: srv.URL, Timeout: 5 * time.Second}, store, nil, nil,
		WithHTTPClient(srv.Client()), WithMaxBodyBytes(1<<10))
	if _, err := p.Get(context.Background(), "/contacts/", nil, "", ""); err != nil {
		t.Fatalf("body under the limit failed: %v", err)
	}
}
