package steps

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/services"
)

// fakeAI replays a scripted sequence of responses; one entry per expected
// GenerateJSON call.
type fakeAI struct {
	script  []fakeAIReply
	calls   int
	prompts []string
}

type fakeAIReply struct {
	out map[string]any
	err error
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.prompts = append(f.prompts, user)
	if f.calls >= len(f.script) {
		return nil, fmt.Errorf("unexpected GenerateJSON call %d", f.calls+1)
	}
	reply := f.script[f.calls]
	f.calls++
	return reply.out, reply.err
}

func (f *fakeAI) Model() string { return "test-model" }

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func newStepCtx(t *testing.T, input map[string]any, state map[string]any) *jobs.StepContext {
	t.Helper()
	if input == nil {
		input = map[string]any{}
	}
	if state == nil {
		state = map[string]any{}
	}
	return &jobs.StepContext{
		Ctx:   context.Background(),
		Log:   testLog(t),
		Job:   &domain.ProgramJob{ID: uuid.New(), Status: domain.JobStatusProcessing},
		Input: input,
		State: state,
	}
}

func validSkeleton(weeks, days int) map[string]any {
	ws := make([]any, 0, weeks)
	for w := 1; w <= weeks; w++ {
		ds := make([]any, 0, days)
		for d := 1; d <= days; d++ {
			ds = append(ds, map[string]any{"day": float64(d), "emphasis": "push"})
		}
		ws = append(ws, map[string]any{"week": float64(w), "focus": "base", "days": ds})
	}
	return map[string]any{"weeks": ws}
}

func validAssignments(weeks, days int) map[string]any {
	ws := make([]any, 0, weeks)
	for w := 1; w <= weeks; w++ {
		ds := make([]any, 0, days)
		for d := 1; d <= days; d++ {
			ds = append(ds, map[string]any{
				"day": float64(d),
				"exercises": []any{
					map[string]any{"name": "Back Squat", "sets": float64(4), "reps": float64(5), "rest_seconds": float64(180)},
					map[string]any{"name": "Bench Press", "sets": float64(3), "reps": float64(8), "rest_seconds": float64(120)},
					map[string]any{"name": "Plank", "sets": float64(3), "reps": float64(1), "rest_seconds": float64(60)},
				},
			})
		}
		ws = append(ws, map[string]any{"week": float64(w), "days": ds})
	}
	return map[string]any{"weeks": ws}
}

func profileState() map[string]any {
	return map[string]any{
		"profile_summary": "intermediate lifter",
		"training_age":    "developing",
		"focus_areas":     []any{"strength"},
		"weekly_capacity": map[string]any{"sessions": float64(3), "minutes_per_session": float64(60)},
	}
}

func TestAnalyzeProfileSetsOutput(t *testing.T) {
	ai := &fakeAI{script: []fakeAIReply{{out: profileState()}}}
	step := NewAnalyzeProfileStep(testLog(t), ai)
	sc := newStepCtx(t, map[string]any{"goal": "strength", "weeks": float64(4)}, nil)

	if err := step.Run(sc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := sc.Output()
	if out == nil || out["profile_summary"] != "intermediate lifter" {
		t.Fatalf("output: want profile got=%v", out)
	}
}

func TestAnalyzeProfileTransientAIFailure(t *testing.T) {
	ai := &fakeAI{script: []fakeAIReply{
		{err: &services.AIError{Retryable: true, Err: errors.New("openai http 503")}},
	}}
	step := NewAnalyzeProfileStep(testLog(t), ai)
	sc := newStepCtx(t, map[string]any{"goal": "strength"}, nil)

	err := step.Run(sc)
	if !jobs.IsTransient(err) {
		t.Fatalf("classification: want transient got=%v", err)
	}
}

func TestAnalyzeProfileRefusalIsPermanent(t *testing.T) {
	ai := &fakeAI{script: []fakeAIReply{
		{err: &services.AIError{Retryable: false, Err: errors.New("model refused")}},
	}}
	step := NewAnalyzeProfileStep(testLog(t), ai)
	sc := newStepCtx(t, map[string]any{"goal": "strength"}, nil)

	err := step.Run(sc)
	if err == nil || jobs.IsTransient(err) {
		t.Fatalf("classification: want permanent got=%v", err)
	}
}

func TestPlanSkeletonAcceptsValidFirstAttempt(t *testing.T) {
	ai := &fakeAI{script: []fakeAIReply{{out: validSkeleton(4, 3)}}}
	step := NewPlanSkeletonStep(testLog(t), ai)
	sc := newStepCtx(t,
		map[string]any{"weeks": float64(4), "days_per_week": float64(3)},
		map[string]any{StageAnalyzeProfile: profileState()},
	)

	if err := step.Run(sc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ai.calls != 1 {
		t.Fatalf("AI calls: want=1 got=%d", ai.calls)
	}
	if sc.Output() == nil {
		t.Fatalf("output not set")
	}
}

func TestPlanSkeletonRepromptsOnceThenAccepts(t *testing.T) {
	ai := &fakeAI{script: []fakeAIReply{
		{out: validSkeleton(2, 3)}, // wrong week count
		{out: validSkeleton(4, 3)},
	}}
	step := NewPlanSkeletonStep(testLog(t), ai)
	sc := newStepCtx(t,
		map[string]any{"weeks": float64(4), "days_per_week": float64(3)},
		map[string]any{StageAnalyzeProfile: profileState()},
	)

	if err := step.Run(sc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ai.calls != 2 {
		t.Fatalf("AI calls: want=2 got=%d", ai.calls)
	}
	if len(ai.prompts) != 2 || ai.prompts[1] == ai.prompts[0] {
		t.Fatalf("corrective prompt should carry the violations")
	}
}

func TestPlanSkeletonFailsPermanentlyAfterSecondBadAttempt(t *testing.T) {
	ai := &fakeAI{script: []fakeAIReply{
		{out: validSkeleton(2, 3)},
		{out: validSkeleton(3, 3)},
	}}
	step := NewPlanSkeletonStep(testLog(t), ai)
	sc := newStepCtx(t,
		map[string]any{"weeks": float64(4), "days_per_week": float64(3)},
		map[string]any{StageAnalyzeProfile: profileState()},
	)

	err := step.Run(sc)
	if err == nil || jobs.IsTransient(err) {
		t.Fatalf("classification: want permanent got=%v", err)
	}
	if ai.calls != 2 {
		t.Fatalf("AI calls: want=2 got=%d", ai.calls)
	}
}

func TestPlanSkeletonRequiresProfileState(t *testing.T) {
	ai := &fakeAI{}
	step := NewPlanSkeletonStep(testLog(t), ai)
	sc := newStepCtx(t, map[string]any{"weeks": float64(4), "days_per_week": float64(3)}, nil)

	err := step.Run(sc)
	if err == nil || jobs.IsTransient(err) {
		t.Fatalf("missing profile: want permanent got=%v", err)
	}
	if ai.calls != 0 {
		t.Fatalf("AI calls: want=0 got=%d", ai.calls)
	}
}

func TestAssignExercisesValidatesSetsAndReps(t *testing.T) {
	bad := validAssignments(2, 2)
	weeks := bad["weeks"].([]any)
	day := weeks[0].(map[string]any)["days"].([]any)[0].(map[string]any)
	day["exercises"] = []any{
		map[string]any{"name": "Back Squat", "sets": float64(50), "reps": float64(5), "rest_seconds": float64(180)},
	}

	ai := &fakeAI{script: []fakeAIReply{
		{out: bad},
		{out: validAssignments(2, 2)},
	}}
	step := NewAssignExercisesStep(testLog(t), ai)
	sc := newStepCtx(t,
		map[string]any{"weeks": float64(2), "days_per_week": float64(2)},
		map[string]any{
			StageAnalyzeProfile: profileState(),
			StagePlanSkeleton:   validSkeleton(2, 2),
		},
	)

	if err := step.Run(sc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ai.calls != 2 {
		t.Fatalf("AI calls: want=2 got=%d", ai.calls)
	}
}

func TestValidateProgramEmitsResult(t *testing.T) {
	step := NewValidateProgramStep(testLog(t), "test-model")
	sc := newStepCtx(t,
		map[string]any{"weeks": float64(2), "days_per_week": float64(2)},
		map[string]any{
			StageAnalyzeProfile:  profileState(),
			StagePlanSkeleton:    validSkeleton(2, 2),
			StageAssignExercises: validAssignments(2, 2),
		},
	)

	if err := step.Run(sc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := sc.Result()
	if res == nil {
		t.Fatalf("result not set")
	}
	if res["model"] != "test-model" {
		t.Fatalf("result model: want=test-model got=%v", res["model"])
	}
	if res["program"] == nil {
		t.Fatalf("result missing program")
	}
	if res["generated_at"] == "" {
		t.Fatalf("result missing generated_at")
	}
}

func TestValidateProgramRejectsShortProgram(t *testing.T) {
	step := NewValidateProgramStep(testLog(t), "test-model")
	sc := newStepCtx(t,
		map[string]any{"weeks": float64(4), "days_per_week": float64(2)},
		map[string]any{
			StageAnalyzeProfile:  profileState(),
			StagePlanSkeleton:    validSkeleton(2, 2),
			StageAssignExercises: validAssignments(2, 2),
		},
	)

	err := step.Run(sc)
	if err == nil || jobs.IsTransient(err) {
		t.Fatalf("short program: want permanent got=%v", err)
	}
	if sc.Result() != nil {
		t.Fatalf("result set despite validation failure")
	}
}
