package config

// Config is the runtime configuration. It is loaded from an optional YAML/JSON
// file and then overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Provider  ProviderConfig  `yaml:"provider" json:"provider"`
	Crawl     CrawlConfig     `yaml:"crawl" json:"crawl"`
	Cookies   CookieConfig    `yaml:"cookies" json:"cookies"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Webhook   WebhookConfig   `yaml:"webhook" json:"webhook"`
	Dashboard DashboardConfig `yaml:"dashboard" json:"dashboard"`
	Stages    StagesConfig    `yaml:"stages" json:"stages"`
}

// ServerConfig holds the inbound HTTP settings.
type ServerConfig struct {
	Port             string   `yaml:"port" json:"port"`
	BasePath         string   `yaml:"base_path" json:"base_path"`
	Debug            bool     `yaml:"debug" json:"debug"`
	LogFile          string   `yaml:"log_file" json:"log_file"`
	CORSEnabled      bool     `yaml:"cors_enabled" json:"cors_enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins" json:"allowed_origins"`
	RateLimitEnabled bool     `yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RateLimitRPS     int      `yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst   int      `yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// ProviderConfig describes the CRM's OAuth application and REST API.
type ProviderConfig struct {
	Name              string   `yaml:"name" json:"name"`
	APIBase           string   `yaml:"api_base" json:"api_base"`
	APIVersion        string   `yaml:"api_version" json:"api_version"`
	AuthURL           string   `yaml:"auth_url" json:"auth_url"`
	TokenURL          string   `yaml:"token_url" json:"token_url"`
	ClientID          string   `yaml:"client_id" json:"client_id"`
	ClientSecret      string   `yaml:"client_secret" json:"client_secret"`
	RedirectURI       string   `yaml:"redirect_uri" json:"redirect_uri"`
	Scopes            []string `yaml:"scopes" json:"scopes"`
	LocationID        string   `yaml:"location_id" json:"location_id"`
	ProxyURL          string   `yaml:"proxy_url" json:"proxy_url"`
	TokenTimeoutSec   int      `yaml:"token_timeout_sec" json:"token_timeout_sec"`
	RequestTimeoutSec int      `yaml:"request_timeout_sec" json:"request_timeout_sec"`
}

// CrawlConfig bounds bulk pagination.
type CrawlConfig struct {
	PageSize int `yaml:"page_size" json:"page_size"`
	// MaxPages is the hard ceiling on pages fetched by one crawl.
	MaxPages int `yaml:"max_pages" json:"max_pages"`
}

// CookieConfig controls the browser token cookies.
type CookieConfig struct {
	Secure         bool   `yaml:"secure" json:"secure"`
	Domain         string `yaml:"domain" json:"domain"`
	SameSite       string `yaml:"same_site" json:"same_site"`
	RefreshTTLDays int    `yaml:"refresh_ttl_days" json:"refresh_ttl_days"`
}

// StorageConfig enables optional credential persistence in Redis.
type StorageConfig struct {
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix" json:"redis_prefix"`
}

// WebhookConfig configures inbound webhook verification.
type WebhookConfig struct {
	Secret          string `yaml:"secret" json:"secret"`
	SignatureHeader string `yaml:"signature_header" json:"signature_header"`
}

// DashboardConfig tunes live subscriber connections.
type DashboardConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer" json:"subscriber_buffer"`
	HeartbeatSec     int `yaml:"heartbeat_sec" json:"heartbeat_sec"`
}

// StagesConfig holds the stage map and the classification tables.
type StagesConfig struct {
	Names                map[string]string `yaml:"names" json:"names"`
	QuoteSentStageIDs    []string          `yaml:"quote_sent_stage_ids" json:"quote_sent_stage_ids"`
	QuotePendingStageIDs []string          `yaml:"quote_pending_stage_ids" json:"quote_pending_stage_ids"`
	ClosedPaidStageIDs   []string          `yaml:"closed_paid_stage_ids" json:"closed_paid_stage_ids"`
	Keywords             KeywordsConfig    `yaml:"keywords" json:"keywords"`
}

// KeywordsConfig lists the case-insensitive substrings used by the heuristic classifier.
type KeywordsConfig struct {
	QuoteSent    []string `yaml:"quote_sent" json:"quote_sent"`
	QuotePending []string `yaml:"quote_pending" json:"quote_pending"`
	ClosedPaid   []string `yaml:"closed_paid" json:"closed_paid"`
}

// PersistenceEnabled reports whether a Redis persister should be built.
func (c *Config) PersistenceEnabled() bool {
	return c != nil && c.Storage.RedisAddr != ""
}
