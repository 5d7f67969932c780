package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crmdash-go/internal/config"
	"crmdash-go/internal/credential"

	"github.com/redis/go-redis/v9"
)

const credentialKey = "credential:current"

// RedisBackend persists the single CRM credential as a JSON document.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a new Redis storage backend
func NewRedisBackend(addr, password string, db int, prefix string) (*RedisBackend, error) {
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	if prefix == "" {
		prefix = "crmdash:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	return &RedisBackend{client: client, prefix: prefix}, nil
}

// NewRedisBackendFromConfig builds the backend from the storage section.
func NewRedisBackendFromConfig(cfg config.StorageConfig) (*RedisBackend, error) {
	return NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
}

// Initialize tests Redis connection
func (r *RedisBackend) Initialize(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes Redis connection
func (r *RedisBackend) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Health checks redis availability
func (r *RedisBackend) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) key() string { return r.prefix + credentialKey }

// LoadCredential returns the persisted credential, or nil when none is stored.
func (r *RedisBackend) LoadCredential(ctx context.Context) (*credential.Credential, error) {
	data, err := r.client.Get(ctx, r.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var cred credential.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("decode credential payload: %w", err)
	}
	return &cred, nil
}

// SaveCredential stores the credential without a TTL.
func (r *RedisBackend) SaveCredential(ctx context.Context, cred credential.Credential) error {
	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	return r.client.Set(ctx, r.key(), payload, 0).Err()
}

// DeleteCredential removes the stored credential.
func (r *RedisBackend) DeleteCredential(ctx context.Context) error {
	return r.client.Del(ctx, r.key()).Err()
}
