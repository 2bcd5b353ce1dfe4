package steps

import (
	"encoding/json"
	"fmt"

	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/services"
)

var planSkeletonSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"weeks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"week":  map[string]any{"type": "integer"},
					"focus": map[string]any{"type": "string"},
					"days": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"day":      map[string]any{"type": "integer"},
								"emphasis": map[string]any{"type": "string"},
							},
							"required":             []string{"day", "emphasis"},
							"additionalProperties": false,
						},
					},
				},
				"required":             []string{"week", "focus", "days"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"weeks"},
	"additionalProperties": false,
}

// planSkeletonStep lays out the week-by-week structure of the program from
// the analyzed profile. Output is checked against the requested shape and
// re-prompted once with the concrete violations before failing for good.
type planSkeletonStep struct {
	log *logger.Logger
	ai  services.OpenAIClient
}

func NewPlanSkeletonStep(baseLog *logger.Logger, ai services.OpenAIClient) jobs.Step {
	return &planSkeletonStep{
		log: baseLog.With("stage", StagePlanSkeleton),
		ai:  ai,
	}
}

func (s *planSkeletonStep) Name() string { return StagePlanSkeleton }

func (s *planSkeletonStep) Run(sc *jobs.StepContext) error {
	profile, err := requireStageState(sc, StageAnalyzeProfile, StagePlanSkeleton)
	if err != nil {
		return err
	}

	wantWeeks, ok := intField(sc.Input, "weeks")
	if !ok || wantWeeks < 1 {
		return jobs.Permanentf(StagePlanSkeleton, "job input has no usable weeks value")
	}
	wantDays, ok := intField(sc.Input, "days_per_week")
	if !ok || wantDays < 1 {
		return jobs.Permanentf(StagePlanSkeleton, "job input has no usable days_per_week value")
	}

	rawProfile, _ := json.Marshal(profile)
	rawInput, _ := json.Marshal(sc.Input)

	system := "You are a strength and conditioning coach designing the skeleton of a " +
		"multi-week training program. Produce exactly the requested number of weeks, " +
		"each with exactly the requested number of training days. Do not assign " +
		"exercises yet, only per-day emphases."
	user := fmt.Sprintf("Generation request:\n%s\n\nAthlete profile:\n%s\n\nProduce %d weeks with %d training days each.",
		rawInput, rawProfile, wantWeeks, wantDays)

	out, err := s.ai.GenerateJSON(sc.Ctx, system, user, StagePlanSkeleton, planSkeletonSchema)
	if err != nil {
		return classifyAIErr(StagePlanSkeleton, err)
	}

	if errs := validateSkeleton(out, wantWeeks, wantDays); len(errs) > 0 {
		s.log.Warn("Skeleton failed validation, re-prompting once",
			"job_id", sc.Job.ID, "violations", fmtErrs(errs))
		corrective := user + fmt.Sprintf("\n\nYour previous attempt was structurally invalid: %s. Produce a corrected skeleton.", fmtErrs(errs))
		out, err = s.ai.GenerateJSON(sc.Ctx, system, corrective, StagePlanSkeleton, planSkeletonSchema)
		if err != nil {
			return classifyAIErr(StagePlanSkeleton, err)
		}
		if errs := validateSkeleton(out, wantWeeks, wantDays); len(errs) > 0 {
			return jobs.Permanentf(StagePlanSkeleton, "skeleton still invalid after correction: %s", fmtErrs(errs))
		}
	}

	sc.SetOutput(out)
	return nil
}

func validateSkeleton(out map[string]any, wantWeeks, wantDays int) []string {
	var errs []string
	weeks, ok := sliceField(out, "weeks")
	if !ok {
		return []string{"missing weeks array"}
	}
	if len(weeks) != wantWeeks {
		errs = append(errs, fmt.Sprintf("expected %d weeks, got %d", wantWeeks, len(weeks)))
	}
	for i, w := range weeks {
		wm, ok := w.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("week %d is not an object", i+1))
			continue
		}
		days, ok := sliceField(wm, "days")
		if !ok || len(days) == 0 {
			errs = append(errs, fmt.Sprintf("week %d has no days", i+1))
			continue
		}
		if len(days) != wantDays {
			errs = append(errs, fmt.Sprintf("week %d has %d days, expected %d", i+1, len(days), wantDays))
		}
	}
	return errs
}
