package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	apperrors "crmdash-go/internal/errors"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Recovery turns a handler panic into a 500 JSON envelope.
func Recovery() gin.HandlerFunc {
	return RecoveryWithWriter(nil)
}

// RecoveryWithWriter is Recovery with a hook that runs before the response is written.
func RecoveryWithWriter(writer gin.RecoveryFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				rid, _ := c.Get("request_id")

				log.WithFields(log.Fields{
					"error":      err,
					"stack":      string(stack),
					"request_id": rid,
					"path":       c.Request.URL.Path,
					"method":     c.Request.Method,
					"client_ip":  c.ClientIP(),
					"user_agent": c.Request.UserAgent(),
					"timestamp":  time.Now().Format(time.RFC3339),
				}).Error("Panic recovered")

				if writer != nil {
					writer(c, err)
				}
				if c.Writer.Written() {
					c.Abort()
					return
				}

				apiErr := apperrors.New(http.StatusInternalServerError, "panic_recovered", "internal_error", "Internal server error")
				payload, _ := apiErr.ToJSON()
				c.Data(http.StatusInternalServerError, "application/json", payload)
				c.Abort()
			}
		}()

		c.Next()
	}
}

// SafeGo runs fn in a goroutine and logs, rather than crashes on, a panic.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(log.Fields{
					"goroutine": name,
					"error":     err,
					"stack":     string(debug.Stack()),
					"timestamp": time.Now().Format(time.RFC3339),
				}).Error("Named goroutine panic recovered")
			}
		}()
		fn()
	}()
}
