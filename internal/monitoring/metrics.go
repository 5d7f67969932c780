package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP requests served by the dashboard API
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmdash_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crmdash_http_inflight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Token endpoint calls
	TokenGrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_token_grants_total",
			Help: "Total number of token endpoint calls by grant and result",
		},
		[]string{"grant", "result"}, // grant: authorization_code|refresh_token
	)

	// Upstream CRM API calls
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_upstream_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"provider", "status_class"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmdash_upstream_request_duration_seconds",
			Help:    "Upstream API request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_upstream_errors_total",
			Help: "Total number of upstream errors by reason",
		},
		[]string{"provider", "reason"},
	)

	UpstreamRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_upstream_retry_attempts_total",
			Help: "Total number of post-refresh retries",
		},
		[]string{"provider", "outcome"}, // outcome: success|unauthenticated|error
	)

	CredentialRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_credential_refreshes_total",
			Help: "Total number of refresh decisions taken under the refresh lock",
		},
		[]string{"status"}, // status: refreshed|reused|failed|no_refresh_token
	)

	// Crawl
	CrawlPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_crawl_pages_total",
			Help: "Total number of pages fetched by the paginated crawler",
		},
		[]string{"result"}, // result: ok|error
	)

	CrawlStopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_crawl_stops_total",
			Help: "Total number of finished crawls by stop reason",
		},
		[]string{"reason"}, // reason: empty|short|ceiling|error|canceled
	)

	// Dashboard fanout
	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crmdash_broadcasts_total",
			Help: "Total number of broadcast events",
		},
	)

	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_broadcast_deliveries_total",
			Help: "Total number of per-subscriber deliveries",
		},
		[]string{"result"}, // result: delivered|dropped
	)

	DashboardSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crmdash_dashboard_subscribers",
			Help: "Current number of live dashboard subscribers",
		},
	)

	// Background workers
	WorkersRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crmdash_workers_running",
			Help: "Current number of running background workers",
		},
	)

	WorkerExitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_worker_exits_total",
			Help: "Total number of background worker exits",
		},
		[]string{"worker", "result"}, // result: stopped|canceled|failed|panic
	)

	CredentialTTLSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crmdash_credential_ttl_seconds",
			Help: "Seconds until the stored access token expires; 0 when expired, unknown or absent",
		},
	)

	SSEDisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_sse_disconnects_total",
			Help: "Total number of stream disconnects by reason",
		},
		[]string{"transport", "reason"},
	)

	// Webhooks
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_webhook_events_total",
			Help: "Total number of inbound webhook events",
		},
		[]string{"provider", "event_type", "result"},
	)

	RateLimitKeysGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crmdash_ratelimit_keys",
			Help: "Current number of per-key rate limiters",
		},
	)

	RateLimitSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crmdash_ratelimit_sweeps_total",
			Help: "Total number of rate limiter TTL cache sweeps",
		},
	)

	// Credential persistence
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmdash_storage_operations_total",
			Help: "Total number of credential storage operations",
		},
		[]string{"backend", "operation", "result"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmdash_storage_operation_duration_seconds",
			Help:    "Credential storage operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"backend", "operation"},
	)
)

// StatusClass buckets an HTTP status into "2xx", "4xx" and so on. Zero means
// the request never got a response.
func StatusClass(status int) string {
	switch {
	case status <= 0:
		return "error"
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
