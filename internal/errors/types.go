package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the credential, proxy and crawl layers.
var (
	// ErrUnauthenticated means no usable token exists, or the token was
	// rejected and could not be refreshed. Callers must re-run /auth.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPaginationSafetyStop marks a crawl that hit its page ceiling.
	// The accumulated records are valid but may be incomplete.
	ErrPaginationSafetyStop = errors.New("pagination safety stop: page ceiling reached")

	// ErrTokenNotFound is returned by token resolution when no carrier matched.
	ErrTokenNotFound = errors.New("no bearer token found")
)

// ConfigError reports a missing or invalid configuration value. It is fatal
// for the route that needs the value, never for the process.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s is not configured", e.Field)
}

// UpstreamError is any non-401 failure from the CRM API: 4xx, 5xx, network or timeout.
type UpstreamError struct {
	Endpoint string
	Status   int
	Body     []byte
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("upstream %s returned %d: %s", e.Endpoint, e.Status, truncate(string(e.Body), 200))
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UpstreamAuthError is a failure from the provider's token endpoint.
type UpstreamAuthError struct {
	Grant  string
	Status int
	Body   []byte
	Err    error
}

func (e *UpstreamAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token %s grant failed: %v", e.Grant, e.Err)
	}
	return fmt.Sprintf("token %s grant failed with status %d: %s", e.Grant, e.Status, truncate(string(e.Body), 200))
}

func (e *UpstreamAuthError) Unwrap() error { return e.Err }

// IsUnauthenticated reports whether err means the caller has to re-authenticate.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// AsUpstream extracts an UpstreamError from err.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// AsConfig extracts a ConfigError from err.
func AsConfig(err error) (*ConfigError, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// APIError is the JSON error envelope returned by every route.
type APIError struct {
	HTTPStatus int
	Code       string
	Type       string
	Message    string
	Details    map[string]interface{}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.HTTPStatus, e.Code, e.Message)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// Is and As forward to the standard library errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
