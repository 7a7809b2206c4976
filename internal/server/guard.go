package server

import (
	"net"
	"strings"

	"cardgen-go/internal/config"
	"cardgen-go/internal/netutil"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// managementRemoteGuard enforces local-only access by default; when remote is
// allowed it optionally restricts clients to an IP/CIDR whitelist.
func managementRemoteGuard(cfg config.ServerConfig) gin.HandlerFunc {
	nets := parseIPNets(cfg.AllowedNetworks)
	return func(c *gin.Context) {
		// ClientIP honours the engine's trusted proxies, which are disabled.
		ip := net.ParseIP(strings.TrimSpace(c.ClientIP()))
		src := netutil.ClassifyClientSource(ip)
		if src == "loopback" {
			c.Next()
			return
		}
		deny := func(reason string) {
			log.WithFields(log.Fields{
				"client_ip": c.ClientIP(),
				"source":    src,
				"path":      c.Request.URL.Path,
			}).Warn("management access denied: " + reason)
			c.AbortWithStatusJSON(403, gin.H{"error": reason})
		}
		if !cfg.AllowRemote {
			deny("remote management disabled")
			return
		}
		if len(nets) > 0 && !ipInNets(ip, nets) {
			deny("ip not allowed for management")
			return
		}
		c.Next()
	}
}

func parseIPNets(list []string) []*net.IPNet {
	out := make([]*net.IPNet, 0)
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ipnet, err := net.ParseCIDR(s); err == nil {
			out = append(out, ipnet)
			continue
		}
		if ip := net.ParseIP(s); ip != nil {
			bits := 128
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 32
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	return out
}

func ipInNets(ip net.IP, nets []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n != nil && n.Contains(ip) {
			return true
		}
	}
	return false
}
