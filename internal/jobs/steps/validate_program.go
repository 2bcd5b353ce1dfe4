package steps

import (
	"fmt"
	"time"

	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/platform/logger"
)

// validateProgramStep is the deterministic final gate: it re-checks the
// assembled program against the original request without calling the model,
// then emits the job's terminal result. Anything wrong here is permanent by
// definition; the earlier stages already spent their correction attempts.
type validateProgramStep struct {
	log   *logger.Logger
	model string
}

func NewValidateProgramStep(baseLog *logger.Logger, model string) jobs.Step {
	return &validateProgramStep{
		log:   baseLog.With("stage", StageValidateProgram),
		model: model,
	}
}

func (s *validateProgramStep) Name() string { return StageValidateProgram }

func (s *validateProgramStep) Run(sc *jobs.StepContext) error {
	program, err := requireStageState(sc, StageAssignExercises, StageValidateProgram)
	if err != nil {
		return err
	}
	skeleton, err := requireStageState(sc, StagePlanSkeleton, StageValidateProgram)
	if err != nil {
		return err
	}

	wantWeeks, ok := intField(sc.Input, "weeks")
	if !ok || wantWeeks < 1 {
		return jobs.Permanentf(StageValidateProgram, "job input has no usable weeks value")
	}

	var errs []string
	if skelErrs := validateSkeleton(skeleton, wantWeeks, daysPerWeekOr(sc.Input, skeleton)); len(skelErrs) > 0 {
		errs = append(errs, skelErrs...)
	}
	if progErrs := validateAssignments(program); len(progErrs) > 0 {
		errs = append(errs, progErrs...)
	}
	if weeks, ok := sliceField(program, "weeks"); !ok || len(weeks) != wantWeeks {
		errs = append(errs, fmt.Sprintf("assembled program does not cover %d weeks", wantWeeks))
	}
	if len(errs) > 0 {
		return jobs.Permanentf(StageValidateProgram, "assembled program failed validation: %s", fmtErrs(errs))
	}

	sc.SetResult(map[string]any{
		"program":      program,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"model":        s.model,
	})
	return nil
}

func daysPerWeekOr(input map[string]any, skeleton map[string]any) int {
	if d, ok := intField(input, "days_per_week"); ok && d > 0 {
		return d
	}
	// fall back to whatever the skeleton's first week carries
	if weeks, ok := sliceField(skeleton, "weeks"); ok && len(weeks) > 0 {
		if wm, ok := weeks[0].(map[string]any); ok {
			if days, ok := sliceField(wm, "days"); ok {
				return len(days)
			}
		}
	}
	return 0
}
