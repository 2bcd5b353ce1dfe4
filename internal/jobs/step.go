package jobs

import (
	"context"
	"encoding/json"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/platform/logger"
)

// Step is one numbered stage of the program build pipeline. A stage may
// assume every prior stage's output is present in State; it validates only
// its own inputs. Stages never touch the job store: the runner persists
// whatever the stage leaves behind via SetOutput/SetResult.
type Step interface {
	Name() string
	Run(sc *StepContext) error
}

// StepContext is the execution handle handed to a stage. Input is the
// immutable generation request; State holds prior stage outputs keyed by
// stage name.
type StepContext struct {
	Ctx   context.Context
	Log   *logger.Logger
	Job   *domain.ProgramJob
	Input map[string]any
	State map[string]any

	output map[string]any
	result map[string]any
}

func newStepContext(ctx context.Context, log *logger.Logger, job *domain.ProgramJob) *StepContext {
	return &StepContext{
		Ctx:   ctx,
		Log:   log,
		Job:   job,
		Input: decodeJSONMap(job.Input),
		State: decodeJSONMap(job.State),
	}
}

// SetOutput records this stage's intermediate output; the runner merges it
// into the job's state under the stage name.
func (sc *StepContext) SetOutput(out map[string]any) {
	sc.output = out
}

// SetResult records the job's terminal result. Only meaningful on the final
// stage; the runner rejects a final stage that leaves no result.
func (sc *StepContext) SetResult(res map[string]any) {
	sc.result = res
}

// Output returns what the stage recorded via SetOutput.
func (sc *StepContext) Output() map[string]any { return sc.output }

// Result returns what the stage recorded via SetResult.
func (sc *StepContext) Result() map[string]any { return sc.result }

// StageState returns a prior stage's output map, or nil when absent.
func (sc *StepContext) StageState(stage string) map[string]any {
	v, ok := sc.State[stage]
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m
}

func decodeJSONMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}
