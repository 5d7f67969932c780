package main

import (
	"context"
	"fmt"
	"time"

	"crmdash-go/internal/config"
	"crmdash-go/internal/credential"
	"crmdash-go/internal/logging"
	"crmdash-go/internal/monitoring"
	"crmdash-go/internal/stages"
	store "crmdash-go/internal/storage"
	log "github.com/sirupsen/logrus"
)

// buildStorageBackend returns the credential persister, or nil when
// persistence is not configured.
func buildStorageBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	if !cfg.PersistenceEnabled() {
		return nil, nil
	}
	rb, err := store.NewRedisBackendFromConfig(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := rb.Initialize(ctx); err != nil {
		_ = rb.Close()
		return nil, fmt.Errorf("initialize redis storage: %w", err)
	}
	return store.WithInstrumentation(rb, store.DetectBackendLabel(rb)), nil
}

// newCredentialStore builds the store and reloads a persisted credential.
// A failed reload is logged; the service starts unauthenticated.
func newCredentialStore(ctx context.Context, backend store.Backend) *credential.Store {
	if backend == nil {
		return credential.NewStore()
	}
	st := credential.NewStore(credential.WithPersister(backend))
	restored, err := st.Restore(ctx)
	switch {
	case err != nil:
		log.WithError(err).Warn("failed to restore persisted credential; starting unauthenticated")
	case restored:
		cred, _ := st.Get()
		log.WithFields(log.Fields{
			"access_token": logging.MaskToken(cred.AccessToken),
			"acquired_via": cred.AcquiredVia,
			"expires_at":   cred.ExpiresAt,
		}).Info("restored persisted credential")
	default:
		log.Debug("no persisted credential")
	}
	return st
}

// reportCredentialTTL publishes the remaining lifetime of the stored token.
func reportCredentialTTL(st *credential.Store, now time.Time) {
	cred, ok := st.Get()
	if !ok || !cred.ExpiryKnown() {
		monitoring.CredentialTTLSeconds.Set(0)
		return
	}
	monitoring.CredentialTTLSeconds.Set(cred.TTL(now).Seconds())
}

// watchStages reloads the stage tables when the config file changes. Other
// settings take effect on restart.
func watchStages(ctx context.Context, path string, classifier *stages.Classifier) {
	err := config.Watch(ctx, path, func(next *config.Config) {
		classifier.Update(next.Stages)
		log.WithField("stages", len(next.Stages.Names)).Info("stage configuration reloaded")
	})
	if err != nil {
		log.WithError(err).Warn("config watcher disabled")
	}
}
