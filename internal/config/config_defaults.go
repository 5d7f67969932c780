package config

import "crmdash-go/internal/constants"

// Default returns a configuration populated with the central default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             "3000",
			CORSEnabled:      true,
			RateLimitEnabled: true,
			RateLimitRPS:     10,
			RateLimitBurst:   20,
		},
		Provider: ProviderConfig{
			Name:              "leadconnector",
			APIBase:           "https://services.leadconnectorhq.com",
			APIVersion:        "2021-07-28",
			AuthURL:           "https://marketplace.gohighlevel.com/oauth/chooselocation",
			TokenURL:          "https://services.leadconnectorhq.com/oauth/token",
			RedirectURI:       "http://localhost:3000/oauth/callback",
			Scopes:            append([]string(nil), defaultScopes...),
			TokenTimeoutSec:   int(constants.DefaultTokenTimeout.Seconds()),
			RequestTimeoutSec: int(constants.DefaultUpstreamTimeout.Seconds()),
		},
		Crawl: CrawlConfig{
			PageSize: constants.DefaultPageSize,
			MaxPages: constants.DefaultMaxPages,
		},
		Cookies: CookieConfig{
			SameSite:       "lax",
			RefreshTTLDays: 30,
		},
		Storage: StorageConfig{
			RedisPrefix: "crmdash:",
		},
		Webhook: WebhookConfig{
			SignatureHeader: "X-Webhook-Signature",
		},
		Dashboard: DashboardConfig{
			SubscriberBuffer: constants.DefaultSubscriberBuffer,
			HeartbeatSec:     int(constants.SSEHeartbeatInterval.Seconds()),
		},
		Stages: StagesConfig{
			Names: map[string]string{},
			Keywords: KeywordsConfig{
				QuoteSent:    []string{"quote sent", "proposal sent", "estimate sent"},
				QuotePending: []string{"quote pending", "pending quote", "awaiting quote", "quote requested"},
				ClosedPaid:   []string{"closed won", "paid", "won"},
			},
		},
	}
}

var defaultScopes = []string{
	"contacts.readonly",
	"opportunities.readonly",
	"calendars.readonly",
	"calendars/events.readonly",
	"workflows.readonly",
	"locations.readonly",
	"users.readonly",
}
