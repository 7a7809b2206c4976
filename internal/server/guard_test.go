package server

import (
	"net"
	"net/http/httptest"
	"testing"

	"cardgen-go/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParseIPNets(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected int
	}{
		{"Empty list", []string{}, 0},
		{"Single CIDR", []string{"192.168.1.0/24"}, 1},
		{"Single IP", []string{"192.168.1.1"}, 1},
		{"IPv6 CIDR", []string{"2001:db8::/32"}, 1},
		{"IPv6 address", []string{"2001:db8::1"}, 1},
		{"Mixed valid and invalid", []string{"192.168.1.0/24", "invalid", "10.0.0.1"}, 2},
		{"Empty strings", []string{"", "  ", "192.168.1.0/24"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, parseIPNets(tt.input), tt.expected)
		})
	}
}

func TestIPInNets(t *testing.T) {
	nets := parseIPNets([]string{"10.0.0.0/8", "192.168.1.7", "2001:db8::/32"})
	assert.True(t, ipInNets(net.ParseIP("10.2.3.4"), nets))
	assert.True(t, ipInNets(net.ParseIP("192.168.1.7"), nets))
	assert.False(t, ipInNets(net.ParseIP("192.168.1.8"), nets))
	assert.True(t, ipInNets(net.ParseIP("2001:db8::5"), nets))
	assert.False(t, ipInNets(nil, nets))
}

func TestManagementRemoteGuard(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(cfg config.ServerConfig, remote string) int {
		router := gin.New()
		router.Use(managementRemoteGuard(cfg))
		router.GET("/test", func(c *gin.Context) { c.Status(200) })
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("loopback always allowed", func(t *testing.T) {
		assert.Equal(t, 200, run(config.ServerConfig{}, "127.0.0.1:5555"))
		assert.Equal(t, 200, run(config.ServerConfig{}, "[::1]:5555"))
	})
	t.Run("remote denied by default", func(t *testing.T) {
		assert.Equal(t, 403, run(config.ServerConfig{}, "192.168.1.10:5555"))
	})
	t.Run("remote allowed when enabled", func(t *testing.T) {
		assert.Equal(t, 200, run(config.ServerConfig{AllowRemote: true}, "192.168.1.10:5555"))
	})
	t.Run("whitelist enforced", func(t *testing.T) {
		cfg := config.ServerConfig{AllowRemote: true, AllowedNetworks: []string{"10.0.0.0/8"}}
		assert.Equal(t, 200, run(cfg, "10.1.1.1:5555"))
		assert.Equal(t, 403, run(cfg, "192.168.1.10:5555"))
	})
	t.Run("forwarded headers are not trusted", func(t *testing.T) {
		router := gin.New()
		_ = router.SetTrustedProxies(nil)
		router.Use(managementRemoteGuard(config.ServerConfig{}))
		router.GET("/test", func(c *gin.Context) { c.Status(200) })
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set("X-Forwarded-For", "127.0.0.1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, 403, w.Code)
	})
}
