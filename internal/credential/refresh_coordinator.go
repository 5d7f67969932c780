package credential

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoRefreshToken is returned when a refresh is needed but neither the store
// nor the caller has a refresh token.
var ErrNoRefreshToken = errors.New("no refresh token available")

// RefreshFunc exchanges a refresh token for a new credential. It is expected to
// write the result to the store on success and leave it untouched on failure.
type RefreshFunc func(ctx context.Context, refreshToken string) (Credential, error)

// RefreshRequest describes the caller that saw a 401.
type RefreshRequest struct {
	// StaleAccess is the access token the upstream rejected.
	StaleAccess string
	// FallbackRefresh is used when the store holds no refresh token.
	FallbackRefresh string
	// IssuedAt is when the rejected request was sent. A refresh for the same
	// token that failed after this instant is reported instead of retried.
	IssuedAt time.Time
}

// RefreshCoordinator makes sure that at most one refresh is in flight. Callers
// that queue behind it for the same stale token share its outcome, success or
// failure. Store readers never wait on it.
type RefreshCoordinator struct {
	store *Store

	mu       sync.Mutex
	inflight *flight
	failed   *flight
}

type flight struct {
	done    chan struct{}
	access  string
	cred    Credential
	err     error
	ended   time.Time
	version uint64
}

// NewRefreshCoordinator binds a coordinator to store.
func NewRefreshCoordinator(store *Store) *RefreshCoordinator {
	return &RefreshCoordinator{store: store}
}

// Do returns a credential that is newer than req.StaleAccess. If another caller
// already replaced it, that credential is returned and refreshed is false.
// Otherwise fn runs with the store's refresh token, or req.FallbackRefresh
// when the store has none.
func (c *RefreshCoordinator) Do(ctx context.Context, req RefreshRequest, fn RefreshFunc) (cred Credential, refreshed bool, err error) {
	c.mu.Lock()
	for c.inflight != nil {
		f := c.inflight
		c.mu.Unlock()
		select {
		case <-f.done:
		case <-ctx.Done():
			return Credential{}, false, ctx.Err()
		}
		if f.access == req.StaleAccess {
			if f.err != nil {
				return Credential{}, false, f.err
			}
			return f.cred, false, nil
		}
		c.mu.Lock()
	}

	current, ok, version := c.store.Snapshot()
	if ok && current.AccessToken != req.StaleAccess {
		c.mu.Unlock()
		return current, false, nil
	}
	if last := c.failed; last != nil && last.access == req.StaleAccess && last.version == version &&
		!req.IssuedAt.IsZero() && last.ended.After(req.IssuedAt) {
		c.mu.Unlock()
		return Credential{}, false, last.err
	}

	refreshToken := req.FallbackRefresh
	if ok && current.RefreshToken != "" {
		refreshToken = current.RefreshToken
	}
	if refreshToken == "" {
		c.mu.Unlock()
		return Credential{}, false, ErrNoRefreshToken
	}

	f := &flight{done: make(chan struct{}), access: req.StaleAccess}
	c.inflight = f
	c.mu.Unlock()

	cred, err = fn(ctx, refreshToken)

	c.mu.Lock()
	f.cred, f.err = cred, err
	f.ended = time.Now()
	f.version = c.store.Version()
	c.inflight = nil
	c.failed = nil
	if err != nil && ctx.Err() == nil {
		c.failed = f
	}
	c.mu.Unlock()
	close(f.done)

	if err != nil {
		return Credential{}, false, err
	}
	return cred, true, nil
}
