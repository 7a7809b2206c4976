package server

import (
	"errors"
	"net/http"
	"strings"

	"cardgen-go/internal/batch"
	"cardgen-go/internal/logging"
	"cardgen-go/internal/progress"
	"cardgen-go/internal/runtime"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func registerBatchRoutes(mg *gin.RouterGroup, h *handlers) {
	bg := mg.Group("/batches")
	bg.GET("", h.listBatches)
	bg.POST("/:op", h.startBatch)
	bg.GET("/:op", h.describeBatch)
	bg.POST("/:op/pause", h.controlBatch("pause"))
	bg.POST("/:op/resume", h.controlBatch("resume"))
	bg.POST("/:op/cancel", h.controlBatch("cancel"))
	bg.GET("/:op/runs", h.listRuns)
	bg.GET("/:op/runs/:run", h.describeRun)
	bg.POST("/:op/runs/:run/resume", h.resumeRun)
	bg.POST("/:op/runs/:run/retry-failures", h.retryFailures)
}

type startBatchRequest struct {
	RunID   string   `json:"run_id"`
	Name    string   `json:"name"`
	Deck    string   `json:"deck"`
	ItemIDs []string `json:"item_ids"`
}

type jobView struct {
	Operation string              `json:"operation"`
	RunID     string              `json:"run_id"`
	Name      string              `json:"name"`
	Running   bool                `json:"running"`
	Progress  batch.ProgressEvent `json:"progress"`
	Report    *batch.Report       `json:"report,omitempty"`
}

func viewJob(j *batch.Job) jobView {
	v := jobView{
		Operation: j.Operation,
		RunID:     j.RunID,
		Name:      j.Name,
		Running:   j.Running(),
		Progress:  j.Progress(),
	}
	if r, ok := j.Report(); ok {
		v.Report = &r
	}
	return v
}

func (h *handlers) listBatches(c *gin.Context) {
	orch := h.deps.Orchestrator
	out := make([]gin.H, 0)
	for _, op := range orch.Operations() {
		entry := gin.H{"operation": op}
		if j, ok := orch.Job(op); ok {
			entry["job"] = viewJob(j)
		}
		if t, ok := orch.Tracker(op); ok {
			entry["runs"] = len(t.AllRuns())
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"operations": out})
}

func (h *handlers) startBatch(c *gin.Context) {
	op := c.Param("op")
	c.Set("operation", op)
	var req startBatchRequest
	if !bindJSON(c, &req) {
		return
	}
	var (
		job *batch.Job
		err error
	)
	switch {
	case strings.TrimSpace(req.Deck) != "":
		job, err = h.deps.Orchestrator.StartDeck(c.Request.Context(), op, strings.TrimSpace(req.Deck))
	case len(req.ItemIDs) > 0:
		job, err = h.deps.Orchestrator.Start(op, req.RunID, req.Name, req.ItemIDs)
	default:
		respondError(c, http.StatusBadRequest, "deck or item_ids required", nil)
		return
	}
	if err != nil {
		respondBatchError(c, err)
		return
	}
	logging.WithReq(c, log.Fields{"operation": op, "run_id": job.RunID}).Info("batch started")
	c.JSON(http.StatusAccepted, viewJob(job))
}

func (h *handlers) describeBatch(c *gin.Context) {
	op := c.Param("op")
	j, ok := h.deps.Orchestrator.Job(op)
	if !ok {
		if _, known := h.deps.Orchestrator.Tracker(op); !known {
			respondError(c, http.StatusNotFound, batch.ErrUnknownOperation.Error(), op)
			return
		}
		respondError(c, http.StatusNotFound, "no batch has run for this operation", op)
		return
	}
	c.JSON(http.StatusOK, viewJob(j))
}

func (h *handlers) controlBatch(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		op := c.Param("op")
		j, ok := h.deps.Orchestrator.Job(op)
		if !ok || !j.Running() {
			respondError(c, http.StatusConflict, "no running batch for this operation", op)
			return
		}
		ctrl := j.Controller()
		switch action {
		case "pause":
			ctrl.Pause()
		case "resume":
			ctrl.Resume()
		case "cancel":
			ctrl.Cancel()
		}
		logging.WithRun(op, j.RunID).WithField("action", action).Info("batch control")
		c.JSON(http.StatusOK, viewJob(j))
	}
}

func (h *handlers) tracker(c *gin.Context) (*progress.Tracker, bool) {
	op := c.Param("op")
	t, ok := h.deps.Orchestrator.Tracker(op)
	if !ok {
		respondError(c, http.StatusNotFound, batch.ErrUnknownOperation.Error(), op)
		return nil, false
	}
	return t, true
}

func (h *handlers) listRuns(c *gin.Context) {
	t, ok := h.tracker(c)
	if !ok {
		return
	}
	runs := t.AllRuns()
	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}

func (h *handlers) describeRun(c *gin.Context) {
	t, ok := h.tracker(c)
	if !ok {
		return
	}
	runID := c.Param("run")
	summary, ok := t.DescribeRun(runID)
	if !ok {
		respondError(c, http.StatusNotFound, "run not found", runID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run":      summary,
		"pending":  t.Pending(runID),
		"failures": t.FailedDetails(runID),
	})
}

func (h *handlers) resumeRun(c *gin.Context) {
	op, runID := c.Param("op"), c.Param("run")
	c.Set("operation", op)
	job, err := h.deps.Orchestrator.Resume(c.Request.Context(), op, runID)
	if err != nil {
		respondBatchError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, viewJob(job))
}

func (h *handlers) retryFailures(c *gin.Context) {
	op, runID := c.Param("op"), c.Param("run")
	c.Set("operation", op)
	job, err := h.deps.Orchestrator.RetryFailures(c.Request.Context(), op, runID)
	if err != nil {
		respondBatchError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, viewJob(job))
}

func respondBatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, batch.ErrUnknownOperation):
		respondError(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, batch.ErrNothingPending):
		respondError(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, batch.ErrBusy), errors.Is(err, runtime.ErrTaskRunning):
		respondError(c, http.StatusConflict, err.Error(), nil)
	default:
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
