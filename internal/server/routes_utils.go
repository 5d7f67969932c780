package server

import (
	pp "net/http/pprof"
	"strings"

	"crmdash-go/internal/config"
	"crmdash-go/internal/handlers/crmapi"
	"crmdash-go/internal/monitoring/tracing"
	"github.com/gin-gonic/gin"
)

func setNoCacheHeaders(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

func registerPprof(r *gin.Engine) {
	ppGroup := r.Group("/debug/pprof")
	ppGroup.GET("/", gin.WrapF(pp.Index))
	ppGroup.GET("/cmdline", gin.WrapF(pp.Cmdline))
	ppGroup.GET("/profile", gin.WrapF(pp.Profile))
	ppGroup.POST("/symbol", gin.WrapF(pp.Symbol))
	ppGroup.GET("/symbol", gin.WrapF(pp.Symbol))
	ppGroup.GET("/trace", gin.WrapF(pp.Trace))
	ppGroup.GET("/allocs", gin.WrapF(pp.Handler("allocs").ServeHTTP))
	ppGroup.GET("/goroutine", gin.WrapF(pp.Handler("goroutine").ServeHTTP))
	ppGroup.GET("/heap", gin.WrapF(pp.Handler("heap").ServeHTTP))
}

// buildRoutesJSON describes the mounted surface for the /meta/routes endpoint.
func buildRoutesJSON(cfg *config.Config) map[string]any {
	base := cfg.Server.BasePath
	proxied := make([]string, 0, len(crmapi.Routes)+1)
	for _, rt := range crmapi.Routes {
		proxied = append(proxied, joinBasePath(base, "/api/"+rt.Path))
	}
	proxied = append(proxied, joinBasePath(base, "/api/opportunities/all"))

	return map[string]any{
		"provider":  cfg.Provider.Name,
		"base_path": base,
		"auth": []string{
			joinBasePath(base, "/auth"),
			joinBasePath(base, "/oauth/callback"),
			joinBasePath(base, "/auth/logout"),
			joinBasePath(base, "/auth/status"),
		},
		"api": proxied,
		"dashboard": []string{
			joinBasePath(base, "/dashboard/metrics"),
			joinBasePath(base, "/dashboard/snapshot"),
			joinBasePath(base, "/dashboard/stages"),
			joinBasePath(base, "/dashboard/stream"),
			joinBasePath(base, "/dashboard/ws"),
		},
		"webhooks": joinBasePath(base, "/webhooks/"+cfg.Provider.Name),
		"features": map[string]any{
			"persistence":       cfg.PersistenceEnabled(),
			"webhook_signature": cfg.Webhook.Secret != "",
			"rate_limit":        cfg.Server.RateLimitEnabled,
			"cors":              cfg.Server.CORSEnabled,
			"tracing":           tracing.Enabled(),
		},
	}
}

func joinBasePath(basePath, suffix string) string {
	if basePath == "" {
		return suffix
	}
	if suffix == "" {
		return basePath
	}
	if suffix == "/" {
		return basePath + "/"
	}
	if strings.HasPrefix(suffix, "/") {
		return basePath + suffix
	}
	return basePath + "/" + suffix
}
