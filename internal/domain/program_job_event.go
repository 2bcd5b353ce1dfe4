package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobEventCreated       = "created"
	JobEventStepStarted   = "step_started"
	JobEventStepCompleted = "step_completed"
	JobEventCompleted     = "completed"
	JobEventFailed        = "failed"
)

// ProgramJobEvent is an append-only ledger of job transitions. It is the
// canonical timeline clients render while polling; rows are written
// best-effort and never block job progression.
type ProgramJobEvent struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	OwnerUserID uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Kind        string         `gorm:"column:kind;not null;index" json:"kind"`
	Step        int            `gorm:"column:step;not null" json:"step"`
	Message     string         `gorm:"column:message;type:text" json:"message,omitempty"`
	Data        datatypes.JSON `gorm:"column:data;type:jsonb" json:"data,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
}

func (ProgramJobEvent) TableName() string { return "program_job_event" }
