package middleware

import (
	"time"

	"cardgen-go/internal/logging"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogger logs HTTP requests. Query strings are never logged.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		extras := log.Fields{
			"status":     c.Writer.Status(),
			"latency_ms": logging.DurationMS(time.Since(start)),
			"user_agent": c.Request.UserAgent(),
		}
		if rid, ok := c.Get("request_id"); ok {
			extras["request_id"] = rid
		}
		if op, ok := c.Get("operation"); ok {
			extras["operation"] = op
		}
		entry := logging.WithReq(c, extras)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("http_request")
		case len(c.Errors) > 0:
			entry.WithField("errors", c.Errors.String()).Warn("http_request")
		default:
			entry.Info("http_request")
		}
	}
}
