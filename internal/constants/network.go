package constants

import "time"

const (
	DefaultDialTimeout           = 10 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultExpectContinueTimeout = 1 * time.Second

	BaseMaxIdleConns        = 100
	BaseMaxIdleConnsPerHost = 20

	// MaxUpstreamBodyBytes caps how much of an upstream response is buffered.
	MaxUpstreamBodyBytes = 16 << 20
	// MaxWebhookBodyBytes caps inbound webhook payloads.
	MaxWebhookBodyBytes = 1 << 20
)
