package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peakform/peakform-backend/internal/domain"
	pkgerrors "github.com/peakform/peakform-backend/internal/pkg/errors"
	"github.com/peakform/peakform-backend/internal/services"
)

type ProgramsHandler struct {
	jobs services.ProgramJobService
}

func NewProgramsHandler(jobs services.ProgramJobService) *ProgramsHandler {
	return &ProgramsHandler{jobs: jobs}
}

// POST /api/programs/generate
func (h *ProgramsHandler) Generate(c *gin.Context) {
	var input domain.ProgramInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	job, err := h.jobs.CreateProgramJob(c.Request.Context(), &input)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrInvalidArgument):
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
		case errors.Is(err, pkgerrors.ErrUnauthorized):
			RespondError(c, http.StatusUnauthorized, "unauthorized", err)
		default:
			RespondError(c, http.StatusInternalServerError, "job_creation_failed", err)
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}
