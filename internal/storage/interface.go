package storage

import (
	"context"

	"crmdash-go/internal/credential"
)

// Backend is a credential persister with a connection lifecycle.
type Backend interface {
	credential.Persister

	// Initialize verifies the backend is reachable
	Initialize(ctx context.Context) error

	// Close releases the backend's connections
	Close() error

	// Health checks if the storage backend is healthy
	Health(ctx context.Context) error
}

// ErrNotFound is returned when a key is not found
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return "key not found: " + e.Key
}
