package credential

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Persister saves the current credential outside the process. Implementations
// must be safe for concurrent use.
type Persister interface {
	LoadCredential(ctx context.Context) (*Credential, error)
	SaveCredential(ctx context.Context, cred Credential) error
	DeleteCredential(ctx context.Context) error
}

// Store holds the single current credential for the process.
type Store struct {
	mu      sync.RWMutex
	cred    Credential
	present bool
	version uint64

	persister      Persister
	persistMu      sync.Mutex
	persistTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPersister enables write-through persistence.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithPersistTimeout bounds every persister call.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{persistTimeout: 5 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Get returns a copy of the current credential and whether one is present.
func (s *Store) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.present
}

// Version increments on every Set and Clear.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns the credential together with the version it was read at.
func (s *Store) Snapshot() (Credential, bool, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.present, s.version
}

// Set atomically replaces the credential.
func (s *Store) Set(cred Credential) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.cred = cred
	s.present = cred.AccessToken != ""
	s.version++
	s.mu.Unlock()

	if s.persister != nil {
		s.persist(func(ctx context.Context) error {
			if cred.AccessToken == "" {
				return s.persister.DeleteCredential(ctx)
			}
			return s.persister.SaveCredential(ctx, cred)
		})
	}
}

// Clear removes the credential.
func (s *Store) Clear() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.cred = Credential{}
	s.present = false
	s.version++
	s.mu.Unlock()

	if s.persister != nil {
		s.persist(func(ctx context.Context) error {
			return s.persister.DeleteCredential(ctx)
		})
	}
}

// Restore loads a previously persisted credential into memory. It is a no-op
// without a persister or when nothing was saved.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if s.persister == nil {
		return false, nil
	}
	cred, err := s.persister.LoadCredential(ctx)
	if err != nil {
		return false, err
	}
	if cred == nil || cred.AccessToken == "" {
		return false, nil
	}
	s.mu.Lock()
	s.cred = *cred
	s.present = true
	s.version++
	s.mu.Unlock()
	log.WithFields(log.Fields{
		"acquired_via": cred.AcquiredVia,
		"expires_at":   cred.ExpiresAt,
	}).Info("credential restored from persistent storage")
	return true, nil
}

// persist runs under persistMu so the backend sees writes in Set/Clear order.
// Failures are logged and never undo the in-memory swap.
func (s *Store) persist(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.WithError(err).Warn("failed to persist credential")
	}
}
