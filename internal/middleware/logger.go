package middleware

import (
	"time"

	"crmdash-go/internal/logging"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogger logs one line per HTTP request. Long-lived stream routes are
// logged when they close.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		extras := log.Fields{
			"status":     status,
			"latency_ms": logging.DurationMS(time.Since(start)),
			"user_agent": c.Request.UserAgent(),
			"bytes":      c.Writer.Size(),
		}
		if src, ok := c.Get(ContextTokenSource); ok {
			extras["token_source"] = src
		}
		if len(c.Errors) > 0 {
			extras["errors"] = c.Errors.String()
		}
		entry := logging.WithReq(c, extras)
		switch {
		case status >= 500:
			entry.Error("http_request")
		case status >= 400:
			entry.Warn("http_request")
		default:
			entry.Info("http_request")
		}
	}
}
