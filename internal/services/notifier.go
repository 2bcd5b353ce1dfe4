package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/platform/logger"
)

const (
	notifyEventJobCreated       = "job.created"
	notifyEventJobStepCompleted = "job.step_completed"
	notifyEventJobCompleted     = "job.completed"
	notifyEventJobFailed        = "job.failed"
)

// redisNotifier publishes job lifecycle events to a per-user Redis channel.
// Frontends subscribe to their own channel and fan the payloads out over SSE
// or websockets. Publishing is fire-and-forget.
type redisNotifier struct {
	log *logger.Logger
	rdb *redis.Client
}

func NewRedisNotifier(log *logger.Logger, rdb *redis.Client) jobs.Notifier {
	return &redisNotifier{
		log: log.With("service", "RedisNotifier"),
		rdb: rdb,
	}
}

func userChannel(userID uuid.UUID) string {
	return "jobs:user:" + userID.String()
}

func (n *redisNotifier) publish(userID uuid.UUID, event string, data map[string]any) {
	data["event"] = event
	payload, err := json.Marshal(data)
	if err != nil {
		n.log.Warn("Failed to marshal notify payload", "event", event, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if pErr := n.rdb.Publish(ctx, userChannel(userID), payload).Err(); pErr != nil {
		n.log.Warn("Failed to publish notify payload", "event", event, "error", pErr)
	}
}

func (n *redisNotifier) JobCreated(ownerUserID uuid.UUID, job *domain.ProgramJob) {
	n.publish(ownerUserID, notifyEventJobCreated, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (n *redisNotifier) JobStepCompleted(ownerUserID uuid.UUID, job *domain.ProgramJob, stage string) {
	n.publish(ownerUserID, notifyEventJobStepCompleted, map[string]any{
		"job_id":       job.ID,
		"status":       job.Status,
		"stage":        stage,
		"current_step": job.CurrentStep,
		"total_steps":  job.TotalSteps,
	})
}

func (n *redisNotifier) JobCompleted(ownerUserID uuid.UUID, job *domain.ProgramJob) {
	n.publish(ownerUserID, notifyEventJobCompleted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (n *redisNotifier) JobFailed(ownerUserID uuid.UUID, job *domain.ProgramJob, stage string, msg string) {
	n.publish(ownerUserID, notifyEventJobFailed, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"stage":  stage,
		"error":  msg,
	})
}

// logNotifier is the no-redis fallback used in tests and local setups.
type logNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) jobs.Notifier {
	return &logNotifier{log: log.With("service", "LogNotifier")}
}

func (n *logNotifier) JobCreated(ownerUserID uuid.UUID, job *domain.ProgramJob) {
	n.log.Info("Job created", "user_id", ownerUserID, "job_id", job.ID)
}

func (n *logNotifier) JobStepCompleted(ownerUserID uuid.UUID, job *domain.ProgramJob, stage string) {
	n.log.Info("Job step completed", "user_id", ownerUserID, "job_id", job.ID, "stage", stage)
}

func (n *logNotifier) JobCompleted(ownerUserID uuid.UUID, job *domain.ProgramJob) {
	n.log.Info("Job completed", "user_id", ownerUserID, "job_id", job.ID)
}

func (n *logNotifier) JobFailed(ownerUserID uuid.UUID, job *domain.ProgramJob, stage string, msg string) {
	n.log.Warn("Job failed", "user_id", ownerUserID, "job_id", job.ID, "stage", stage, "error", msg)
}
