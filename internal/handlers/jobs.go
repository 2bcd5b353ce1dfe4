package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/peakform/peakform-backend/internal/domain"
	pkgerrors "github.com/peakform/peakform-backend/internal/pkg/errors"
	"github.com/peakform/peakform-backend/internal/services"
)

type JobsHandler struct {
	jobs services.ProgramJobService
}

func NewJobsHandler(jobs services.ProgramJobService) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

// jobStatusPayload is the polling snapshot: result only on completed, error
// only on failed.
func jobStatusPayload(job *domain.ProgramJob) gin.H {
	payload := gin.H{
		"job_id":       job.ID,
		"status":       job.Status,
		"current_step": job.CurrentStep,
		"total_steps":  job.TotalSteps,
	}
	if job.Status == domain.JobStatusCompleted {
		payload["result"] = job.Result
	}
	if job.Status == domain.JobStatusFailed {
		payload["error"] = job.Error
	}
	return payload
}

// GET /api/jobs/:id
func (h *JobsHandler) GetJobByID(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.GetForRequestUser(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		if errors.Is(err, pkgerrors.ErrUnauthorized) {
			RespondError(c, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "job_lookup_failed", err)
		return
	}
	RespondOK(c, jobStatusPayload(job))
}

// GET /api/jobs/:id/events
func (h *JobsHandler) GetJobEvents(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	events, err := h.jobs.EventsForRequestUser(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		if errors.Is(err, pkgerrors.ErrUnauthorized) {
			RespondError(c, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "job_events_failed", err)
		return
	}
	RespondOK(c, gin.H{"events": events})
}
