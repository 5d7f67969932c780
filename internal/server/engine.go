package server

import (
	"net/http"

	"crmdash-go/internal/config"
	mw "crmdash-go/internal/middleware"
	"crmdash-go/internal/version"
	"github.com/gin-gonic/gin"
)

// applyStandardEngineSettings applies the gin mode and the middleware chain
// shared by every route.
func applyStandardEngineSettings(engine *gin.Engine, cfg *config.Config) {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	_ = engine.SetTrustedProxies([]string{})

	engine.Use(mw.Recovery(), mw.RequestID(), mw.Metrics(), mw.RequestLogger())
	if cfg.Server.CORSEnabled {
		engine.Use(mw.CORS(cfg.Server.AllowedOrigins))
	}
}

// registerMeta exposes the effective base path and the mounted routes so a
// dashboard frontend can bootstrap itself.
func registerMeta(r gin.IRoutes, cfg *config.Config) {
	r.GET("/meta/base-path", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"base_path": cfg.Server.BasePath,
			"provider":  cfg.Provider.Name,
			"version":   version.Version,
		})
	})
	r.GET("/meta/routes", func(c *gin.Context) {
		setNoCacheHeaders(c)
		c.JSON(http.StatusOK, buildRoutesJSON(cfg))
	})
}

func noCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		setNoCacheHeaders(c)
		c.Next()
	}
}
