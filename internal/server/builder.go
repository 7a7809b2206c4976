package server

import (
	"context"
	"errors"
	"net/http"

	"cardgen-go/internal/batch"
	"cardgen-go/internal/config"
	"cardgen-go/internal/credential"
	"cardgen-go/internal/logging"
	mw "cardgen-go/internal/middleware"
	"cardgen-go/internal/runtime"
	"cardgen-go/internal/storage"
	"cardgen-go/internal/version"

	"github.com/gin-gonic/gin"
)

// ConnectionTester checks the upstream with a single cheap request.
type ConnectionTester interface {
	TestConnection(ctx context.Context, apiKey string) error
}

// Dependencies encapsulates runtime services required to build the HTTP engine.
type Dependencies struct {
	Credentials  *credential.Manager
	Gateway      ConnectionTester
	Orchestrator *batch.Orchestrator
	Tasks        *runtime.TaskManager
	Stream       *logging.Stream
	Storage      storage.DocumentStore
	// Settings returns the live configuration; the build-time one is used when nil.
	Settings     func() *config.Config
}

// BuildEngine constructs the admin engine: health, metrics and the
// management API for credentials and batches.
func BuildEngine(cfg *config.Config, deps Dependencies) *gin.Engine {
	if !cfg.Logging.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	_ = engine.SetTrustedProxies(nil)
	engine.Use(mw.Recovery(), mw.RequestID(), mw.Metrics(), mw.RequestLogger())

	engine.GET("/healthz", healthHandler(deps.Storage))
	engine.GET("/metrics", mw.MetricsHandler)

	guards := []gin.HandlerFunc{managementRemoteGuard(cfg.Server), mw.ManagementAuth(cfg.Server.ManagementKey)}
	mg := engine.Group("/api/management", guards...)
	setNoCacheHeadersGroup(mg)

	h := &handlers{cfg: cfg, deps: deps}
	mg.GET("/config", h.getSettings)
	if deps.Credentials != nil {
		registerCredentialRoutes(mg, h)
	}
	if deps.Orchestrator != nil {
		registerBatchRoutes(mg, h)
	}
	if deps.Tasks != nil {
		mg.GET("/tasks", h.listTasks)
		mg.GET("/tasks/:name", h.getTask)
		mg.POST("/tasks/:name/stop", h.stopTask)
	}
	if deps.Stream != nil {
		registerLogRoutes(mg, h)
	}
	if cfg.Logging.Debug {
		registerPprof(engine.Group("/", guards...))
	}
	return engine
}

type handlers struct {
	cfg  *config.Config
	deps Dependencies
}

func healthHandler(docs storage.DocumentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok", "version": version.Version}
		if docs != nil {
			ctx, cancel := storage.WithStorageTimeout(c.Request.Context(), 0)
			defer cancel()
			if err := docs.Health(ctx); err != nil {
				body["status"] = "degraded"
				body["storage"] = err.Error()
				c.JSON(http.StatusServiceUnavailable, body)
				return
			}
		}
		c.JSON(http.StatusOK, body)
	}
}

func (h *handlers) listTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tasks": h.deps.Tasks.ListTasks(),
		"stats": h.deps.Tasks.GetStats(),
	})
}

func (h *handlers) getTask(c *gin.Context) {
	task, ok := h.deps.Tasks.Get(c.Param("name"))
	if !ok {
		respondError(c, http.StatusNotFound, "task not found", nil)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *handlers) stopTask(c *gin.Context) {
	name := c.Param("name")
	if err := h.deps.Tasks.Stop(name); err != nil {
		status := http.StatusConflict
		if errors.Is(err, runtime.ErrTaskNotFound) {
			status = http.StatusNotFound
		}
		respondError(c, status, err.Error(), nil)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"stopping": name})
}
