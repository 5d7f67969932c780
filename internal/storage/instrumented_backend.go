package storage

import (
	"context"
	"time"

	"crmdash-go/internal/credential"
	"crmdash-go/internal/monitoring"
	"crmdash-go/internal/monitoring/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// WithInstrumentation wraps a backend with tracing and metrics instrumentation.
func WithInstrumentation(inner Backend, label string) Backend {
	if inner == nil {
		return inner
	}
	if label == "" {
		label = "unknown"
	}
	return &instrumentedBackend{Backend: inner, label: label}
}

// DetectBackendLabel returns a normalized label for a backend.
func DetectBackendLabel(backend Backend) string {
	switch b := backend.(type) {
	case *RedisBackend:
		return "redis"
	case *instrumentedBackend:
		return b.label
	default:
		return "unknown"
	}
}

type instrumentedBackend struct {
	Backend
	label string
}

func (i *instrumentedBackend) LoadCredential(ctx context.Context) (*credential.Credential, error) {
	var result *credential.Credential
	err := i.instrument(ctx, "load_credential", func(ctx context.Context) error {
		var innerErr error
		result, innerErr = i.Backend.LoadCredential(ctx)
		return innerErr
	})
	return result, err
}

func (i *instrumentedBackend) SaveCredential(ctx context.Context, cred credential.Credential) error {
	return i.instrument(ctx, "save_credential", func(ctx context.Context) error {
		return i.Backend.SaveCredential(ctx, cred)
	})
}

func (i *instrumentedBackend) DeleteCredential(ctx context.Context) error {
	return i.instrument(ctx, "delete_credential", func(ctx context.Context) error {
		return i.Backend.DeleteCredential(ctx)
	})
}

func (i *instrumentedBackend) Health(ctx context.Context) error {
	return i.instrument(ctx, "health", i.Backend.Health)
}

func (i *instrumentedBackend) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(ctx, "storage", i.label+"/"+operation)
	span.SetAttributes(
		attribute.String("storage.backend", i.label),
		attribute.String("storage.operation", operation),
	)
	start := time.Now()
	err := fn(ctx)
	tracing.End(span, err)

	result := "ok"
	if err != nil {
		result = "error"
	}
	monitoring.StorageOperationsTotal.WithLabelValues(i.label, operation, result).Inc()
	monitoring.StorageOperationDuration.WithLabelValues(i.label, operation).Observe(time.Since(start).Seconds())
	return err
}
