package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/pkg/dbctx"
	pkgerrors "github.com/peakform/peakform-backend/internal/pkg/errors"
	"github.com/peakform/peakform-backend/internal/platform/ctxutil"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/taskqueue"
)

// Outcome describes what one delivery of a step invocation did. Skipped is
// set on idempotent no-ops (duplicate deliveries, terminal jobs); Advanced is
// true only for the single delivery that won the step's compare-and-swap.
type Outcome struct {
	Job      *domain.ProgramJob
	Stage    string
	Ran      bool
	Advanced bool
	Final    bool
	NextStep int
	Skipped  string
}

// Runner executes exactly one numbered stage of a job's pipeline and applies
// the resulting state transition. All writes go through the store's guarded
// updates, so a duplicate delivery racing this one resolves to exactly one
// winner no matter the arrival order.
//
// Errors returned to the caller keep their classification: transient errors
// left the job record untouched and want a queue-level retry; permanent
// errors were already recorded on the job as status=failed.
type Runner struct {
	log      *logger.Logger
	store    Store
	pipeline *Pipeline
	registry *Registry
	queue    taskqueue.Queue
	events   EventRecorder
	notify   Notifier
}

func NewRunner(baseLog *logger.Logger, store Store, pipeline *Pipeline, registry *Registry, queue taskqueue.Queue, events EventRecorder, notify Notifier) *Runner {
	return &Runner{
		log:      baseLog.With("component", "StepRunner"),
		store:    store,
		pipeline: pipeline,
		registry: registry,
		queue:    queue,
		events:   events,
		notify:   notify,
	}
}

func (r *Runner) Pipeline() *Pipeline { return r.pipeline }

func (r *Runner) RunStep(ctx context.Context, jobID uuid.UUID, step int) (*Outcome, error) {
	tracer := otel.Tracer("jobs")
	ctx, span := tracer.Start(ctx, "RunStep", trace.WithAttributes(
		attribute.String("job_id", jobID.String()),
		attribute.Int("step", step),
	))
	defer span.End()

	dbc := dbctx.Context{Ctx: ctx}

	job, err := r.store.GetByID(dbc, jobID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			// Nothing to record on a job that does not exist; treat the
			// delivery as handled so the queue drops it.
			r.log.Warn("Step invocation for unknown job", "job_id", jobID, "step", step)
			return &Outcome{Skipped: "job_not_found"}, nil
		}
		return nil, Transient("load", err)
	}

	if domain.IsTerminalJobStatus(job.Status) {
		return &Outcome{Job: job, Skipped: "terminal"}, nil
	}
	if step < job.CurrentStep {
		return &Outcome{Job: job, Skipped: "already_completed"}, nil
	}
	if step > job.CurrentStep {
		// Queue disorder: a later step arrived before its predecessor
		// finished. The authoritative delivery will advance the job; ask the
		// queue to redeliver this one after backoff.
		return nil, Transientf("order", "step %d delivered while job at step %d", step, job.CurrentStep)
	}

	stage, ok := r.pipeline.StageName(step)
	if !ok {
		return r.failJob(dbc, job, "dispatch", Permanentf("dispatch", "step %d out of range (total_steps=%d)", step, job.TotalSteps))
	}
	stepImpl, ok := r.registry.Get(stage)
	if !ok {
		return r.failJob(dbc, job, stage, Permanentf(stage, "no step registered for stage %s", stage))
	}

	if job.Status == domain.JobStatusPending {
		if _, err := r.store.AdvanceStep(dbc, job.ID, step, map[string]interface{}{
			"status": domain.JobStatusProcessing,
		}); err != nil {
			return nil, Transient("claim", err)
		}
		job.Status = domain.JobStatusProcessing
	}

	r.appendEvent(dbc, job, domain.JobEventStepStarted, step, stage, "")

	stageCtx := ctxutil.WithJobData(ctx, &ctxutil.JobData{JobID: job.ID, Stage: stage})
	sc := newStepContext(stageCtx, r.log.With("job_id", job.ID, "stage", stage), job)
	runErr := r.runStage(stepImpl, sc)
	if runErr != nil {
		if IsTransient(runErr) {
			// No job mutation: the queue redelivers this invocation later.
			r.log.Warn("Stage failed (transient)", "job_id", job.ID, "stage", stage, "error", runErr)
			return nil, runErr
		}
		return r.failJob(dbc, job, stage, runErr)
	}

	if step >= r.pipeline.TotalSteps() {
		return r.completeJob(dbc, job, stage, step, sc)
	}
	return r.advanceJob(ctx, dbc, job, stage, step, sc)
}

// runStage invokes the stage with panic containment; a panicking stage is a
// permanent failure.
func (r *Runner) runStage(step Step, sc *StepContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Stage panic", "job_id", sc.Job.ID, "stage", step.Name(), "panic", rec)
			err = Permanentf(step.Name(), "stage panic: %v", rec)
		}
	}()
	return step.Run(sc)
}

func (r *Runner) advanceJob(ctx context.Context, dbc dbctx.Context, job *domain.ProgramJob, stage string, step int, sc *StepContext) (*Outcome, error) {
	stateJSON, err := mergeStageState(job.State, stage, sc.output)
	if err != nil {
		return r.failJob(dbc, job, stage, Permanent(stage, fmt.Errorf("encode stage state: %w", err)))
	}

	next := step + 1
	ok, err := r.store.AdvanceStep(dbc, job.ID, step, map[string]interface{}{
		"status":       domain.JobStatusProcessing,
		"current_step": next,
		"state":        stateJSON,
		"updated_at":   time.Now(),
	})
	if err != nil {
		return nil, Transient("advance", err)
	}
	if !ok {
		// A duplicate delivery advanced the job first; it also owns the next
		// enqueue.
		return &Outcome{Job: job, Stage: stage, Ran: true, Skipped: "lost_race"}, nil
	}

	job.CurrentStep = next
	job.State = stateJSON

	if err := r.queue.Enqueue(ctx, taskqueue.Invocation{JobID: job.ID, Step: next}); err != nil {
		// The job cannot progress without its next invocation; a silent stall
		// is worse than a visible failure.
		return r.failJob(dbc, job, "enqueue", Permanent("enqueue", fmt.Errorf("enqueue step %d: %w", next, err)))
	}

	r.appendEvent(dbc, job, domain.JobEventStepCompleted, step, stage, "")
	if r.notify != nil {
		r.notify.JobStepCompleted(job.OwnerUserID, job, stage)
	}
	r.log.Info("Stage complete", "job_id", job.ID, "stage", stage, "next_step", next)
	return &Outcome{Job: job, Stage: stage, Ran: true, Advanced: true, NextStep: next}, nil
}

func (r *Runner) completeJob(dbc dbctx.Context, job *domain.ProgramJob, stage string, step int, sc *StepContext) (*Outcome, error) {
	if sc.result == nil {
		return r.failJob(dbc, job, stage, Permanentf(stage, "final stage produced no result"))
	}
	resultJSON, err := json.Marshal(sc.result)
	if err != nil {
		return r.failJob(dbc, job, stage, Permanent(stage, fmt.Errorf("encode result: %w", err)))
	}

	now := time.Now()
	ok, err := r.store.MarkTerminal(dbc, job.ID, map[string]interface{}{
		"status":     domain.JobStatusCompleted,
		"result":     datatypes.JSON(resultJSON),
		"error":      "",
		"updated_at": now,
	})
	if err != nil {
		return nil, Transient("complete", err)
	}
	if !ok {
		return &Outcome{Job: job, Stage: stage, Ran: true, Skipped: "terminal"}, nil
	}

	job.Status = domain.JobStatusCompleted
	job.Result = datatypes.JSON(resultJSON)
	job.Error = ""
	job.UpdatedAt = now

	r.appendEvent(dbc, job, domain.JobEventCompleted, step, stage, "")
	if r.notify != nil {
		r.notify.JobCompleted(job.OwnerUserID, job)
	}
	r.log.Info("Job complete", "job_id", job.ID, "stage", stage)
	return &Outcome{Job: job, Stage: stage, Ran: true, Advanced: true, Final: true}, nil
}

// failJob records a permanent failure on the job and returns the original
// classified error so the caller can signal "handled, do not retry".
func (r *Runner) failJob(dbc dbctx.Context, job *domain.ProgramJob, stage string, cause error) (*Outcome, error) {
	msg := cause.Error()
	now := time.Now()
	ok, err := r.store.MarkTerminal(dbc, job.ID, map[string]interface{}{
		"status":     domain.JobStatusFailed,
		"error":      msg,
		"updated_at": now,
	})
	if err != nil {
		return nil, Transient("fail", err)
	}
	if !ok {
		return &Outcome{Job: job, Stage: stage, Skipped: "terminal"}, nil
	}

	job.Status = domain.JobStatusFailed
	job.Error = msg
	job.UpdatedAt = now

	r.appendEvent(dbc, job, domain.JobEventFailed, job.CurrentStep, stage, msg)
	if r.notify != nil {
		r.notify.JobFailed(job.OwnerUserID, job, stage, msg)
	}
	r.log.Warn("Job failed", "job_id", job.ID, "stage", stage, "error", msg)
	return &Outcome{Job: job, Stage: stage}, cause
}

func (r *Runner) appendEvent(dbc dbctx.Context, job *domain.ProgramJob, kind string, step int, stage string, msg string) {
	if r.events == nil {
		return
	}
	ev := &domain.ProgramJobEvent{
		ID:          uuid.New(),
		JobID:       job.ID,
		OwnerUserID: job.OwnerUserID,
		Kind:        kind,
		Step:        step,
		Message:     msg,
		CreatedAt:   time.Now(),
	}
	if stage != "" {
		if data, err := json.Marshal(map[string]string{"stage": stage}); err == nil {
			ev.Data = datatypes.JSON(data)
		}
	}
	if err := r.events.Append(dbc, ev); err != nil {
		r.log.Warn("Append job event failed", "job_id", job.ID, "kind", kind, "error", err)
	}
}

func mergeStageState(prev datatypes.JSON, stage string, output map[string]any) (datatypes.JSON, error) {
	state := decodeJSONMap(prev)
	if output != nil {
		state[stage] = output
	}
	b, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
