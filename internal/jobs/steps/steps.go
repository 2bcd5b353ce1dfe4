package steps

import (
	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/services"
)

// Stage names, in pipeline order. These are the keys stage outputs are merged
// under in the job's state document.
const (
	StageAnalyzeProfile  = "analyze_profile"
	StagePlanSkeleton    = "plan_skeleton"
	StageAssignExercises = "assign_exercises"
	StageValidateProgram = "validate_program"
)

// RegisterAll wires every stage into the registry. The registry and the
// pipeline spec must agree on names; a stage missing from the registry fails
// the job at dispatch.
func RegisterAll(reg *jobs.Registry, baseLog *logger.Logger, ai services.OpenAIClient) error {
	all := []jobs.Step{
		NewAnalyzeProfileStep(baseLog, ai),
		NewPlanSkeletonStep(baseLog, ai),
		NewAssignExercisesStep(baseLog, ai),
		NewValidateProgramStep(baseLog, ai.Model()),
	}
	for _, s := range all {
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// classifyAIErr maps a model-call failure onto the pipeline's error model.
// Retryability was decided inside the client where the transport facts live.
func classifyAIErr(stage string, err error) error {
	if services.IsRetryableAI(err) {
		return jobs.Transient(stage, err)
	}
	return jobs.Permanent(stage, err)
}

func intField(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func strField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func sliceField(m map[string]any, key string) ([]any, bool) {
	v, ok := m[key].([]any)
	return v, ok
}

func requireStageState(sc *jobs.StepContext, stage string, dependent string) (map[string]any, error) {
	st := sc.StageState(stage)
	if st == nil {
		return nil, jobs.Permanentf(dependent, "missing %s output in job state", stage)
	}
	return st, nil
}

func fmtErrs(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}
