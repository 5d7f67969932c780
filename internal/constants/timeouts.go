package constants

import "time"

const (
	// DefaultTokenTimeout bounds a single call to the provider's token endpoint.
	DefaultTokenTimeout = 30 * time.Second
	// DefaultUpstreamTimeout bounds a single proxied CRM API call.
	DefaultUpstreamTimeout = 30 * time.Second
	// OAuthStateTTL is how long a consent-flow state value stays valid.
	OAuthStateTTL = 10 * time.Minute
	// SSEHeartbeatInterval keeps idle dashboard streams alive through proxies.
	SSEHeartbeatInterval = 25 * time.Second
	// WebSocketWriteTimeout bounds one frame write to a dashboard socket.
	WebSocketWriteTimeout = 10 * time.Second
	// ReadHeaderTimeout bounds reading inbound request headers.
	ReadHeaderTimeout = 10 * time.Second
	// ServerShutdownTimeout bounds graceful HTTP server shutdown.
	ServerShutdownTimeout = 30 * time.Second
	// CredentialTTLReportInterval is how often the token lifetime gauge is refreshed.
	CredentialTTLReportInterval = 30 * time.Second
	// ConfigReloadDebounce coalesces bursts of config file events.
	ConfigReloadDebounce = 100 * time.Millisecond
)
