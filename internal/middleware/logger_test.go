package middleware

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFmt := log.StandardLogger().Out, log.StandardLogger().Formatter
	log.SetOutput(&buf)
	log.SetFormatter(&log.JSONFormatter{})
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFormatter(prevFmt)
	})
	return &buf
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Log successful request", func(t *testing.T) {
		buf := captureLogs(t)
		router := gin.New()
		router.Use(RequestID(), RequestLogger())
		router.GET("/test", func(c *gin.Context) {
			c.String(200, "OK")
		})

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", "rid-1")
		req.Header.Set("User-Agent", "Test-Agent/1.0")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, 200, w.Code)
		out := buf.String()
		assert.Contains(t, out, `"request_id":"rid-1"`)
		assert.Contains(t, out, `"status":200`)
		assert.Contains(t, out, `"path":"/test"`)
		assert.Contains(t, out, "Test-Agent/1.0")
	})

	t.Run("Query strings stay out of the log", func(t *testing.T) {
		buf := captureLogs(t)
		router := gin.New()
		router.Use(RequestLogger())
		router.GET("/test", func(c *gin.Context) {
			c.String(200, "OK")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test?key=AIzaSecretValue", nil))

		assert.NotContains(t, buf.String(), "AIzaSecretValue")
	})

	t.Run("Log failed request at error level", func(t *testing.T) {
		buf := captureLogs(t)
		router := gin.New()
		router.Use(RequestLogger())
		router.GET("/test", func(c *gin.Context) {
			c.String(500, "Error")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		require.Equal(t, 500, w.Code)
		assert.Contains(t, buf.String(), `"level":"error"`)
	})
}
