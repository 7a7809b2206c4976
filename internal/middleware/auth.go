package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// SessionCookie carries the management key for browser clients, which cannot
// set headers on a WebSocket upgrade.
const SessionCookie = "cardgen_session"

// ManagementAuth guards the management API with a shared key accepted from
// Authorization: Bearer, x-api-key or the session cookie. An empty key
// disables the check.
func ManagementAuth(key string) gin.HandlerFunc {
	want := []byte(strings.TrimSpace(key))
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got := extractToken(c)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			log.WithFields(log.Fields{
				"path":        c.Request.URL.Path,
				"method":      c.Request.Method,
				"remote_addr": c.ClientIP(),
				"provided":    got != "",
			}).Warn("management authentication failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if v := strings.TrimSpace(c.GetHeader("x-api-key")); v != "" {
		return v
	}
	if v, err := c.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(v)
	}
	return ""
}
