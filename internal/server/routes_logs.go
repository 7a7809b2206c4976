package server

import (
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 90 * time.Second
	wsPingInterval = 30 * time.Second
)

func registerLogRoutes(mg *gin.RouterGroup, h *handlers) {
	mg.GET("/logs", h.fetchLogs)
	mg.GET("/logs/stream", h.streamLogs(newUpgrader(h.cfg.Server.AllowedNetworks)))
}

// newUpgrader accepts same-host origins plus any origin whose host is listed.
func newUpgrader(allowed []string) *ws.Upgrader {
	return &ws.Upgrader{CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := neturl.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSpace(a), u.Hostname()) {
				return true
			}
		}
		return false
	}}
}

// fetchLogs serves the stream history to polling clients.
func (h *handlers) fetchLogs(c *gin.Context) {
	cursor, _ := strconv.ParseUint(c.DefaultQuery("cursor", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	msgs, next, more := h.deps.Stream.FetchSince(cursor, limit)
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "cursor": next, "has_more": more})
}

func (h *handlers) streamLogs(upgrader *ws.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		stream := h.deps.Stream
		if err := stream.AddClient(conn); err != nil {
			_ = conn.WriteJSON(map[string]string{"error": "Maximum connections reached"})
			conn.Close()
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		})

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(wsPingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := conn.WriteControl(ws.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			if _, _, err := conn.NextReader(); err != nil {
				close(done)
				stream.RemoveClient(conn)
				return
			}
		}
	}
}
