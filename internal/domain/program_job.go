package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Job statuses. A job only ever moves forward:
// pending -> processing -> completed | failed.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

func IsTerminalJobStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// ProgramJob is one end-to-end training-program generation request and its
// persisted progress. Input is written once at creation and never mutated;
// State accumulates intermediate stage outputs keyed by stage name; Result is
// set only on the transition to completed and Error only on the transition to
// failed.
type ProgramJob struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	CurrentStep int            `gorm:"column:current_step;not null;default:1" json:"current_step"`
	TotalSteps  int            `gorm:"column:total_steps;not null" json:"total_steps"`
	Input       datatypes.JSON `gorm:"column:input;type:jsonb" json:"input"`
	State       datatypes.JSON `gorm:"column:state;type:jsonb" json:"state,omitempty"`
	Result      datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (ProgramJob) TableName() string { return "program_job" }
