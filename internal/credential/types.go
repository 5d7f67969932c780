package credential

import (
	"time"
)

// Grant records how a credential was obtained.
type Grant string

const (
	GrantAuthorizationCode Grant = "authorization_code"
	GrantRefresh           Grant = "refresh"
)

// Credential is the access/refresh token pair for the connected CRM account.
// It is a plain value: the store hands out copies, never references into its state.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"` // zero when the provider did not say
	AcquiredVia  Grant     `json:"acquired_via"`
	Scope        string    `json:"scope,omitempty"`
	LocationID   string    `json:"location_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
}

// IsZero reports whether the credential carries no access token.
func (c Credential) IsZero() bool {
	return c.AccessToken == ""
}

// ExpiryKnown reports whether the provider supplied an expiry.
func (c Credential) ExpiryKnown() bool {
	return !c.ExpiresAt.IsZero()
}

// IsExpired reports whether the access token is past its expiry at now.
// Unknown expiry is treated as valid; the upstream 401 path handles it.
func (c Credential) IsExpired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// TTL returns the remaining lifetime, or 0 when unknown or expired.
func (c Credential) TTL(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
