package config

import "strings"

// applyEnv overrides file/default values with environment variables. The
// bare CLIENT_ID / CLIENT_SECRET / REDIRECT_URI names are accepted alongside
// the CRM_-prefixed ones.
func applyEnv(cfg *Config) {
	setStringFromEnv(func(v string) { cfg.Server.Port = v }, "PORT")
	setStringFromEnv(func(v string) { cfg.Server.BasePath = normalizeBasePath(v) }, "BASE_PATH")
	setStringFromEnv(func(v string) { cfg.Server.LogFile = v }, "LOG_FILE")
	cfg.Server.Debug = getenvBool("DEBUG", cfg.Server.Debug)
	cfg.Server.CORSEnabled = getenvBool("CORS_ENABLED", cfg.Server.CORSEnabled)
	setStringFromEnv(func(v string) { cfg.Server.AllowedOrigins = splitAndTrim(v, ",") }, "ALLOWED_ORIGINS")
	cfg.Server.RateLimitEnabled = getenvBool("RATE_LIMIT_ENABLED", cfg.Server.RateLimitEnabled)
	setIntFromEnv("RATE_LIMIT_RPS", func(n int) { cfg.Server.RateLimitRPS = n })
	setIntFromEnv("RATE_LIMIT_BURST", func(n int) { cfg.Server.RateLimitBurst = n })

	setStringFromEnv(func(v string) { cfg.Provider.Name = strings.ToLower(v) }, "CRM_PROVIDER")
	setStringFromEnv(func(v string) { cfg.Provider.APIBase = strings.TrimRight(v, "/") }, "CRM_API_BASE")
	setStringFromEnv(func(v string) { cfg.Provider.APIVersion = v }, "CRM_API_VERSION")
	setStringFromEnv(func(v string) { cfg.Provider.AuthURL = v }, "CRM_AUTH_URL")
	setStringFromEnv(func(v string) { cfg.Provider.TokenURL = v }, "CRM_TOKEN_URL")
	setStringFromEnv(func(v string) { cfg.Provider.ClientID = v }, "CRM_CLIENT_ID", "CLIENT_ID")
	setStringFromEnv(func(v string) { cfg.Provider.ClientSecret = v }, "CRM_CLIENT_SECRET", "CLIENT_SECRET")
	setStringFromEnv(func(v string) { cfg.Provider.RedirectURI = v }, "CRM_REDIRECT_URI", "REDIRECT_URI")
	setStringFromEnv(func(v string) { cfg.Provider.LocationID = v }, "CRM_LOCATION_ID", "LOCATION_ID")
	setStringFromEnv(func(v string) { cfg.Provider.ProxyURL = v }, "PROXY_URL")
	setStringFromEnv(func(v string) { cfg.Provider.Scopes = splitAndTrim(v, " ") }, "CRM_SCOPES")
	setIntFromEnv("CRM_TOKEN_TIMEOUT_SEC", func(n int) { cfg.Provider.TokenTimeoutSec = n })
	setIntFromEnv("CRM_REQUEST_TIMEOUT_SEC", func(n int) { cfg.Provider.RequestTimeoutSec = n })

	setIntFromEnv("CRAWL_PAGE_SIZE", func(n int) { cfg.Crawl.PageSize = n })
	setIntFromEnv("CRAWL_MAX_PAGES", func(n int) { cfg.Crawl.MaxPages = n })

	cfg.Cookies.Secure = getenvBool("COOKIE_SECURE", cfg.Cookies.Secure)
	setStringFromEnv(func(v string) { cfg.Cookies.Domain = v }, "COOKIE_DOMAIN")
	setStringFromEnv(func(v string) { cfg.Cookies.SameSite = v }, "COOKIE_SAMESITE")

	setStringFromEnv(func(v string) { cfg.Storage.RedisAddr = v }, "REDIS_ADDR")
	setStringFromEnv(func(v string) { cfg.Storage.RedisPassword = v }, "REDIS_PASSWORD")
	setStringFromEnv(func(v string) { cfg.Storage.RedisPrefix = v }, "REDIS_PREFIX")
	setIntFromEnv("REDIS_DB", func(n int) { cfg.Storage.RedisDB = n })

	setStringFromEnv(func(v string) { cfg.Webhook.Secret = v }, "WEBHOOK_SECRET")
	setStringFromEnv(func(v string) { cfg.Webhook.SignatureHeader = v }, "WEBHOOK_SIGNATURE_HEADER")

	setIntFromEnv("DASHBOARD_SUBSCRIBER_BUFFER", func(n int) { cfg.Dashboard.SubscriberBuffer = n })
	setIntFromEnv("DASHBOARD_HEARTBEAT_SEC", func(n int) { cfg.Dashboard.HeartbeatSec = n })

	setStringFromEnv(func(v string) { cfg.Stages.QuoteSentStageIDs = splitAndTrim(v, ",") }, "QUOTE_SENT_STAGE_IDS")
	setStringFromEnv(func(v string) { cfg.Stages.QuotePendingStageIDs = splitAndTrim(v, ",") }, "QUOTE_PENDING_STAGE_IDS")
	setStringFromEnv(func(v string) { cfg.Stages.ClosedPaidStageIDs = splitAndTrim(v, ",") }, "CLOSED_PAID_STAGE_IDS")
}
