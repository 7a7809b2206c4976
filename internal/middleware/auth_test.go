package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestManagementAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(key string) *gin.Engine {
		router := gin.New()
		router.Use(ManagementAuth(key))
		router.GET("/mgmt", func(c *gin.Context) {
			c.String(200, "OK")
		})
		return router
	}

	tests := []struct {
		name   string
		key    string
		setup  func(r *http.Request)
		status int
	}{
		{"disabled without key", "", func(r *http.Request) {}, 200},
		{"missing token", "secret", func(r *http.Request) {}, 401},
		{"bearer", "secret", func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") }, 200},
		{"bearer lowercase", "secret", func(r *http.Request) { r.Header.Set("Authorization", "bearer secret") }, 200},
		{"wrong bearer", "secret", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, 401},
		{"x-api-key", "secret", func(r *http.Request) { r.Header.Set("x-api-key", "secret") }, 200},
		{"cookie", "secret", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "secret"}) }, 200},
		{"query ignored", "secret", func(r *http.Request) { r.URL.RawQuery = "key=secret" }, 401},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/mgmt", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			newRouter(tt.key).ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
