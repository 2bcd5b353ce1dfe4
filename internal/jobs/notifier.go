package jobs

import (
	"github.com/google/uuid"

	"github.com/peakform/peakform-backend/internal/domain"
)

// Notifier is the fire-and-forget side channel for job lifecycle events
// (client push, email, webhooks). Implementations must never block or fail
// job progression.
type Notifier interface {
	JobCreated(ownerUserID uuid.UUID, job *domain.ProgramJob)
	JobStepCompleted(ownerUserID uuid.UUID, job *domain.ProgramJob, stage string)
	JobCompleted(ownerUserID uuid.UUID, job *domain.ProgramJob)
	JobFailed(ownerUserID uuid.UUID, job *domain.ProgramJob, stage string, msg string)
}
