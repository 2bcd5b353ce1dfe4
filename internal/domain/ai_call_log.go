package domain

import (
	"time"

	"github.com/google/uuid"
)

// AICallLog records one outbound model call made by a pipeline stage.
// Best-effort telemetry; a failed insert must never fail the stage.
type AICallLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID      uuid.UUID `gorm:"type:uuid;index" json:"job_id"`
	Stage      string    `gorm:"column:stage;index" json:"stage"`
	Model      string    `gorm:"column:model" json:"model"`
	Status     string    `gorm:"column:status" json:"status"`
	DurationMS int64     `gorm:"column:duration_ms" json:"duration_ms"`
	Error      string    `gorm:"column:error" json:"error,omitempty"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
}

func (AICallLog) TableName() string { return "ai_call_log" }
