package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/pkg/dbctx"
	pkgerrors "github.com/peakform/peakform-backend/internal/pkg/errors"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/repos"
	"github.com/peakform/peakform-backend/internal/requestdata"
	"github.com/peakform/peakform-backend/internal/taskqueue"
)

// ProgramJobService owns job creation and read access for the requesting
// user. Step execution lives in jobs.Runner; this service only sets jobs in
// motion and answers status queries.
type ProgramJobService interface {
	CreateProgramJob(ctx context.Context, input *domain.ProgramInput) (*domain.ProgramJob, error)
	GetForRequestUser(ctx context.Context, jobID uuid.UUID) (*domain.ProgramJob, error)
	EventsForRequestUser(ctx context.Context, jobID uuid.UUID) ([]*domain.ProgramJobEvent, error)
}

type programJobService struct {
	log      *logger.Logger
	store    jobs.Store
	events   repos.ProgramJobEventRepo
	pipeline *jobs.Pipeline
	queue    taskqueue.Queue
	notify   jobs.Notifier
}

func NewProgramJobService(
	log *logger.Logger,
	store jobs.Store,
	events repos.ProgramJobEventRepo,
	pipeline *jobs.Pipeline,
	queue taskqueue.Queue,
	notify jobs.Notifier,
) ProgramJobService {
	return &programJobService{
		log:      log.With("service", "ProgramJobService"),
		store:    store,
		events:   events,
		pipeline: pipeline,
		queue:    queue,
		notify:   notify,
	}
}

func validateProgramInput(input *domain.ProgramInput) error {
	if input == nil {
		return fmt.Errorf("%w: input required", pkgerrors.ErrInvalidArgument)
	}
	if input.Goal == "" {
		return fmt.Errorf("%w: goal required", pkgerrors.ErrInvalidArgument)
	}
	if input.Weeks < 1 || input.Weeks > 12 {
		return fmt.Errorf("%w: weeks must be between 1 and 12", pkgerrors.ErrInvalidArgument)
	}
	if input.DaysPerWeek < 1 || input.DaysPerWeek > 7 {
		return fmt.Errorf("%w: days_per_week must be between 1 and 7", pkgerrors.ErrInvalidArgument)
	}
	if !domain.IsValidExperience(input.Experience) {
		return fmt.Errorf("%w: experience must be beginner, intermediate or advanced", pkgerrors.ErrInvalidArgument)
	}
	return nil
}

func (s *programJobService) CreateProgramJob(ctx context.Context, input *domain.ProgramInput) (*domain.ProgramJob, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: no authenticated user in context", pkgerrors.ErrUnauthorized)
	}
	if vErr := validateProgramInput(input); vErr != nil {
		return nil, vErr
	}

	rawInput, mErr := json.Marshal(input)
	if mErr != nil {
		return nil, fmt.Errorf("failed to encode input: %w", mErr)
	}

	now := time.Now()
	job := &domain.ProgramJob{
		ID:          uuid.New(),
		OwnerUserID: rd.UserID,
		Status:      domain.JobStatusPending,
		CurrentStep: 1,
		TotalSteps:  s.pipeline.TotalSteps(),
		Input:       datatypes.JSON(rawInput),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, cErr := s.store.Create(dbctx.Context{Ctx: ctx}, job)
	if cErr != nil {
		return nil, fmt.Errorf("failed to create job: %w", cErr)
	}

	s.appendEvent(ctx, created, domain.JobEventCreated, "job created", map[string]any{
		"total_steps": created.TotalSteps,
	})
	s.notify.JobCreated(created.OwnerUserID, created)

	if qErr := s.queue.Enqueue(ctx, taskqueue.Invocation{JobID: created.ID, Step: 1}); qErr != nil {
		// the job would otherwise sit pending forever with nothing scheduled
		s.log.Error("Failed to enqueue first step", "job_id", created.ID, "error", qErr)
		msg := "failed to schedule job"
		if ok, mtErr := s.store.MarkTerminal(dbctx.Context{Ctx: ctx}, created.ID, map[string]interface{}{
			"status":     domain.JobStatusFailed,
			"error":      msg,
			"updated_at": time.Now(),
		}); mtErr != nil || !ok {
			s.log.Error("Failed to mark unscheduled job failed", "job_id", created.ID, "error", mtErr)
		}
		s.appendEvent(ctx, created, domain.JobEventFailed, msg, map[string]any{"stage": "enqueue"})
		s.notify.JobFailed(created.OwnerUserID, created, "enqueue", msg)
		return nil, fmt.Errorf("failed to enqueue job: %w", qErr)
	}

	return created, nil
}

func (s *programJobService) GetForRequestUser(ctx context.Context, jobID uuid.UUID) (*domain.ProgramJob, error) {
	job, err := s.ownedJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *programJobService) EventsForRequestUser(ctx context.Context, jobID uuid.UUID) ([]*domain.ProgramJobEvent, error) {
	if _, err := s.ownedJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.events.ListByJob(dbctx.Context{Ctx: ctx}, jobID, 200)
}

// ownedJob loads the job and hides other users' jobs behind not-found, so a
// caller cannot distinguish foreign jobs from nonexistent ones.
func (s *programJobService) ownedJob(ctx context.Context, jobID uuid.UUID) (*domain.ProgramJob, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: no authenticated user in context", pkgerrors.ErrUnauthorized)
	}
	job, err := s.store.GetByID(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerUserID != rd.UserID {
		return nil, fmt.Errorf("%w: job %s", pkgerrors.ErrNotFound, jobID)
	}
	return job, nil
}

func (s *programJobService) appendEvent(ctx context.Context, job *domain.ProgramJob, kind string, message string, data map[string]any) {
	raw, _ := json.Marshal(data)
	ev := &domain.ProgramJobEvent{
		ID:          uuid.New(),
		JobID:       job.ID,
		OwnerUserID: job.OwnerUserID,
		Kind:        kind,
		Step:        job.CurrentStep,
		Message:     message,
		Data:        datatypes.JSON(raw),
		CreatedAt:   time.Now(),
	}
	if err := s.events.Append(dbctx.Context{Ctx: ctx}, ev); err != nil {
		s.log.Warn("Failed to append job event", "job_id", job.ID, "kind", kind, "error", err)
	}
}
