package server

import (
	"context"
	"net/http"
	"time"

	"crmdash-go/internal/auth"
	"crmdash-go/internal/config"
	"crmdash-go/internal/crawler"
	"crmdash-go/internal/credential"
	"crmdash-go/internal/events"
	"crmdash-go/internal/handlers/connect"
	"crmdash-go/internal/handlers/crmapi"
	"crmdash-go/internal/handlers/dashboard"
	"crmdash-go/internal/handlers/webhooks"
	mw "crmdash-go/internal/middleware"
	"crmdash-go/internal/stages"
	store "crmdash-go/internal/storage"
	"crmdash-go/internal/upstream"
	"crmdash-go/internal/webhook"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Dependencies encapsulates the runtime services the routes are built on.
type Dependencies struct {
	Store       *credential.Store
	OAuth       connect.Flow
	Proxy       *upstream.Proxy
	Crawler     *crawler.Crawler
	Classifier  *stages.Classifier
	Ingestor    *webhook.Ingestor
	Broadcaster *events.Broadcaster
	// Storage is optional; when set /healthz also checks it.
	Storage store.Backend
}

// BuildEngine constructs the gin engine serving the OAuth flow, the proxied
// CRM API, the dashboard and the webhook receiver.
func BuildEngine(cfg *config.Config, deps Dependencies) *gin.Engine {
	if deps.Crawler == nil {
		deps.Crawler = crawler.New(cfg.Crawl.PageSize, cfg.Crawl.MaxPages)
	}
	if deps.Classifier == nil {
		deps.Classifier = stages.FromConfig(cfg.Stages)
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = events.NewBroadcaster()
	}
	if deps.Ingestor == nil {
		deps.Ingestor = webhook.NewIngestor(deps.Classifier, deps.Broadcaster)
	}

	engine := gin.New()
	applyStandardEngineSettings(engine, cfg)
	if cfg.Server.Debug {
		registerPprof(engine)
	}

	root := engine.Group(cfg.Server.BasePath)
	root.GET("/healthz", healthz(deps.Storage))
	root.GET("/metrics", mw.MetricsHandler)
	registerMeta(root, cfg)

	provider := cfg.Provider.Name
	connect.New(deps.OAuth, deps.Store, provider, cfg.Cookies).Register(root.Group("", noCache()))

	resolver := auth.NewResolver(provider)
	api := root.Group("/api", mw.TokenAuth(resolver, provider))
	if cfg.Server.RateLimitEnabled {
		api.Use(mw.RateLimiterAutoKey(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
	}
	api.Use(mw.RequireToken(func() bool {
		_, ok := deps.Store.Get()
		return ok
	}))
	crmapi.New(deps.Proxy, deps.Store, cfg.Provider.LocationID).Register(api)

	dash := root.Group("/dashboard", mw.TokenAuth(resolver, provider))
	dashboard.New(deps.Proxy, deps.Store, deps.Crawler, deps.Classifier, deps.Ingestor, deps.Broadcaster, dashboard.Options{
		LocationID:       cfg.Provider.LocationID,
		SubscriberBuffer: cfg.Dashboard.SubscriberBuffer,
		Heartbeat:        time.Duration(cfg.Dashboard.HeartbeatSec) * time.Second,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
	}).Register(api, dash)

	webhooks.New(deps.Ingestor, cfg.Webhook).Register(root)

	log.WithFields(log.Fields{
		"base_path":  cfg.Server.BasePath,
		"provider":   provider,
		"routes":     len(engine.Routes()),
		"rate_limit": cfg.Server.RateLimitEnabled,
	}).Info("http engine built")
	return engine
}

func healthz(backend store.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		if backend != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := backend.Health(ctx); err != nil {
				log.WithError(err).Warn("storage health check failed")
				c.String(http.StatusServiceUnavailable, "storage unavailable")
				return
			}
		}
		c.String(http.StatusOK, "ok")
	}
}
