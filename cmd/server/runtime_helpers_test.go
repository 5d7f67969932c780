package main

import (
	"context"
	"testing"
	"time"

	"crmdash-go/internal/config"
	"crmdash-go/internal/credential"
	"crmdash-go/internal/monitoring"
	store "crmdash-go/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBuildStorageBackendDisabled(t *testing.T) {
	cfg := config.Default()
	b, err := buildStorageBackend(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b != nil {
		t.Fatalf("expected no backend without a redis address, got %T", b)
	}
}

func TestBuildStorageBackendUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Storage.RedisAddr = addr
	if _, err := buildStorageBackend(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for unreachable redis")
	}
}

func TestNewCredentialStoreRestoresPersistedCredential(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Storage.RedisAddr = mr.Addr()

	ctx := context.Background()
	b, err := buildStorageBackend(ctx, cfg)
	if err != nil {
		t.Fatalf("buildStorageBackend: %v", err)
	}
	defer b.Close()
	if got := store.DetectBackendLabel(b); got != "redis" {
		t.Fatalf("expected redis label, got %q", got)
	}

	first := newCredentialStore(ctx, b)
	if _, ok := first.Get(); ok {
		t.Fatalf("expected empty store on first start")
	}
	first.Set(credential.Credential{
		AccessToken:  "persisted",
		RefreshToken: "rt",
		AcquiredVia:  credential.GrantAuthorizationCode,
		ExpiresAt:    time.Now().Add(time.Hour),
	})

	second := newCredentialStore(ctx, b)
	cred, ok := second.Get()
	if !ok || cred.AccessToken != "persisted" || cred.RefreshToken != "rt" {
		t.Fatalf("credential not restored: %+v", cred)
	}
}

func TestNewCredentialStoreWithoutBackend(t *testing.T) {
	st := newCredentialStore(context.Background(), nil)
	st.Set(credential.Credential{AccessToken: "mem"})
	if cred, ok := st.Get(); !ok || cred.AccessToken != "mem" {
		t.Fatalf("in-memory store broken: %+v", cred)
	}
}

func TestReportCredentialTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	st := credential.NewStore()

	reportCredentialTTL(st, now)
	if got := testutil.ToFloat64(monitoring.CredentialTTLSeconds); got != 0 {
		t.Fatalf("expected 0 without a credential, got %v", got)
	}

	st.Set(credential.Credential{AccessToken: "a", ExpiresAt: now.Add(90 * time.Second)})
	reportCredentialTTL(st, now)
	if got := testutil.ToFloat64(monitoring.CredentialTTLSeconds); got != 90 {
		t.Fatalf("expected 90s, got %v", got)
	}

	st.Set(credential.Credential{AccessToken: "a"})
	reportCredentialTTL(st, now)
	if got := testutil.ToFloat64(monitoring.CredentialTTLSeconds); got != 0 {
		t.Fatalf("expected 0 for unknown expiry, got %v", got)
	}
}
