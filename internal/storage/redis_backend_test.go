package storage

import (
	"context"
	"testing"
	"time"

	"crmdash-go/internal/credential"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(mr.Close)

	rb, err := NewRedisBackend(mr.Addr(), "", 0, "test:")
	require.NoError(t, err)
	require.NoError(t, rb.Initialize(context.Background()))
	t.Cleanup(func() { _ = rb.Close() })
	return rb, mr
}

func TestNewRedisBackendRequiresAddr(t *testing.T) {
	t.Parallel()
	_, err := NewRedisBackend("", "", 0, "")
	require.Error(t, err)
}

func TestRedisBackendCredentialRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rb, mr := newTestBackend(t)

	got, err := rb.LoadCredential(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	expires := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, rb.SaveCredential(ctx, credential.Credential{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    expires,
		AcquiredVia:  credential.GrantAuthorizationCode,
		LocationID:   "loc-1",
	}))
	require.True(t, mr.Exists("test:credential:current"))

	got, err = rb.LoadCredential(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "rt", got.RefreshToken)
	require.Equal(t, "loc-1", got.LocationID)
	require.True(t, got.ExpiresAt.Equal(expires))

	require.NoError(t, rb.DeleteCredential(ctx))
	got, err = rb.LoadCredential(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisBackendCorruptPayload(t *testing.T) {
	t.Parallel()
	rb, mr := newTestBackend(t)
	require.NoError(t, mr.Set("test:credential:current", "{not json"))

	_, err := rb.LoadCredential(context.Background())
	require.Error(t, err)
}

func TestStoreRestoresFromRedis(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rb, _ := newTestBackend(t)
	backend := WithInstrumentation(rb, DetectBackendLabel(rb))
	require.Equal(t, "redis", DetectBackendLabel(backend))

	first := credential.NewStore(credential.WithPersister(backend))
	first.Set(credential.Credential{AccessToken: "persisted", RefreshToken: "rt"})

	second := credential.NewStore(credential.WithPersister(backend))
	ok, err := second.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	cred, present := second.Get()
	require.True(t, present)
	require.Equal(t, "persisted", cred.AccessToken)

	first.Clear()
	third := credential.NewStore(credential.WithPersister(backend))
	ok, err = third.Restore(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisBackendHealthFailsWhenDown(t *testing.T) {
	t.Parallel()
	rb, mr := newTestBackend(t)
	require.NoError(t, rb.Health(context.Background()))
	mr.Close()
	require.Error(t, rb.Health(context.Background()))
}
