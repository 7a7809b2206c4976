package server

import (
	"errors"
	"net/http"
	"strings"

	"cardgen-go/internal/credential"
	apperrors "cardgen-go/internal/errors"
	"cardgen-go/internal/logging"
	mw "cardgen-go/internal/middleware"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// connection tests spend real quota, so they get their own limiter.
const (
	connectionTestsPerMinute = 6
	connectionTestBurst      = 3
)

func registerCredentialRoutes(mg *gin.RouterGroup, h *handlers) {
	cg := mg.Group("/credentials")
	cg.GET("", h.listCredentials)
	cg.POST("", h.addCredential)
	cg.DELETE("", h.clearCredentials)
	cg.GET("/summary", h.credentialSummary)
	cg.GET("/stats", h.credentialStats)
	cg.POST("/reset-stats", h.resetCredentialStats)
	cg.POST("/rotate", h.rotateCredential)
	if h.deps.Gateway != nil {
		cg.POST("/test", mw.RateLimiter(connectionTestsPerMinute, connectionTestBurst), h.testCredential)
	}
	cg.DELETE("/:index", h.removeCredential)
	cg.POST("/:index/select", h.selectCredential)
	cg.POST("/:index/reset-cooldown", h.resetCooldown)
	cg.POST("/:index/activate", h.setCredentialActive(true))
	cg.POST("/:index/deactivate", h.setCredentialActive(false))
}

type credentialRequest struct {
	Key string `json:"key"`
}

func (h *handlers) listCredentials(c *gin.Context) {
	creds := h.deps.Credentials
	c.JSON(http.StatusOK, gin.H{
		"credentials": creds.Keys(),
		"current":     creds.CurrentID(),
		"total":       creds.Count(),
	})
}

func (h *handlers) addCredential(c *gin.Context) {
	var req credentialRequest
	if !bindJSON(c, &req) {
		return
	}
	key := strings.TrimSpace(req.Key)
	if err := h.deps.Credentials.Add(key); err != nil {
		respondCredentialError(c, err)
		return
	}
	logging.WithReq(c, log.Fields{"key_id": credential.Mask(key)}).Info("credential added")
	c.JSON(http.StatusCreated, gin.H{"id": credential.Mask(key), "total": h.deps.Credentials.Count()})
}

func (h *handlers) removeCredential(c *gin.Context) {
	idx, ok := indexParam(c)
	if !ok {
		return
	}
	if err := h.deps.Credentials.Remove(idx); err != nil {
		respondCredentialError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": idx, "total": h.deps.Credentials.Count()})
}

func (h *handlers) clearCredentials(c *gin.Context) {
	h.deps.Credentials.Clear()
	logging.WithReq(c, nil).Warn("credential pool cleared")
	c.JSON(http.StatusOK, gin.H{"total": 0})
}

func (h *handlers) credentialSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Credentials.Summary())
}

func (h *handlers) credentialStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stats": h.deps.Credentials.AllStats()})
}

func (h *handlers) resetCredentialStats(c *gin.Context) {
	h.deps.Credentials.ResetStats()
	c.JSON(http.StatusOK, h.deps.Credentials.Summary())
}

func (h *handlers) rotateCredential(c *gin.Context) {
	id, err := h.deps.Credentials.Advance("manual")
	if err != nil {
		respondCredentialError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"current": id})
}

func (h *handlers) selectCredential(c *gin.Context) {
	idx, ok := indexParam(c)
	if !ok {
		return
	}
	if err := h.deps.Credentials.ForceSetCurrent(idx); err != nil {
		respondCredentialError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"current": h.deps.Credentials.CurrentID()})
}

func (h *handlers) resetCooldown(c *gin.Context) {
	idx, ok := indexParam(c)
	if !ok {
		return
	}
	if err := h.deps.Credentials.ResetCooldown(idx); err != nil {
		respondCredentialError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": h.deps.Credentials.Keys()})
}

func (h *handlers) setCredentialActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		idx, ok := indexParam(c)
		if !ok {
			return
		}
		if err := h.deps.Credentials.SetActive(idx, active); err != nil {
			respondCredentialError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"credentials": h.deps.Credentials.Keys()})
	}
}

// testCredential tries a candidate key, or the current one when the body is
// empty. Statistics are left untouched.
func (h *handlers) testCredential(c *gin.Context) {
	var req credentialRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	key := strings.TrimSpace(req.Key)
	if key != "" {
		if err := credential.ValidateFormat(key); err != nil {
			respondCredentialError(c, err)
			return
		}
	}
	if err := h.deps.Gateway.TestConnection(c.Request.Context(), key); err != nil {
		kind := apperrors.KindOf(err)
		c.JSON(http.StatusBadGateway, gin.H{
			"ok":      false,
			"kind":    kind,
			"error":   apperrors.UserMessage(kind),
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func respondCredentialError(c *gin.Context, err error) {
	var ve *credential.ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(c, http.StatusBadRequest, ve.Reason, nil)
	case errors.Is(err, credential.ErrSingleCredential), errors.Is(err, apperrors.ErrExhausted):
		respondError(c, http.StatusConflict, err.Error(), nil)
	default:
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
