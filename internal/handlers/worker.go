package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/platform/logger"
)

// WorkerHandler is the queue-facing step endpoint. Its status codes are the
// retry protocol: 2xx tells the dispatcher the delivery is handled (even
// when the job just failed permanently), 503 asks for a redelivery after
// backoff, anything else drops the message.
type WorkerHandler struct {
	log    *logger.Logger
	runner *jobs.Runner
}

func NewWorkerHandler(baseLog *logger.Logger, runner *jobs.Runner) *WorkerHandler {
	return &WorkerHandler{
		log:    baseLog.With("handler", "WorkerHandler"),
		runner: runner,
	}
}

type runStepRequest struct {
	JobID uuid.UUID `json:"job_id" binding:"required"`
	Step  int       `json:"step" binding:"required"`
}

// POST /internal/worker/run-step
func (h *WorkerHandler) RunStep(c *gin.Context) {
	var req runStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// malformed messages are never retried
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	outcome, err := h.runner.RunStep(c.Request.Context(), req.JobID, req.Step)
	if err != nil {
		if jobs.IsTransient(err) {
			h.log.Warn("Step attempt wants retry",
				"job_id", req.JobID, "step", req.Step, "error", err)
			RespondError(c, http.StatusServiceUnavailable, "retry_later", err)
			return
		}
		// permanent: the job is already recorded as failed, acknowledge the
		// delivery so the queue stops redelivering it
		h.log.Warn("Step failed permanently",
			"job_id", req.JobID, "step", req.Step, "error", err)
		RespondOK(c, gin.H{
			"job_id": req.JobID,
			"step":   req.Step,
			"failed": true,
			"error":  err.Error(),
		})
		return
	}

	resp := gin.H{
		"job_id": req.JobID,
		"step":   req.Step,
	}
	if outcome.Skipped != "" {
		resp["skipped"] = outcome.Skipped
	}
	if outcome.Advanced {
		resp["advanced"] = true
	}
	if outcome.Final {
		resp["final"] = true
	}
	RespondOK(c, resp)
}
