package steps

import (
	"encoding/json"
	"fmt"

	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/services"
)

const (
	maxExercisesPerDay = 8
	maxSets            = 10
	maxReps            = 30
)

var assignExercisesSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"weeks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"week": map[string]any{"type": "integer"},
					"days": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"day": map[string]any{"type": "integer"},
								"exercises": map[string]any{
									"type": "array",
									"items": map[string]any{
										"type": "object",
										"properties": map[string]any{
											"name": map[string]any{"type": "string"},
											"sets": map[string]any{"type": "integer"},
											"reps": map[string]any{"type": "integer"},
											"rest_seconds": map[string]any{"type": "integer"},
										},
										"required":             []string{"name", "sets", "reps", "rest_seconds"},
										"additionalProperties": false,
									},
								},
							},
							"required":             []string{"day", "exercises"},
							"additionalProperties": false,
						},
					},
				},
				"required":             []string{"week", "days"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"weeks"},
	"additionalProperties": false,
}

// assignExercisesStep fills the skeleton's days with concrete exercise
// prescriptions, constrained to the athlete's stated equipment.
type assignExercisesStep struct {
	log *logger.Logger
	ai  services.OpenAIClient
}

func NewAssignExercisesStep(baseLog *logger.Logger, ai services.OpenAIClient) jobs.Step {
	return &assignExercisesStep{
		log: baseLog.With("stage", StageAssignExercises),
		ai:  ai,
	}
}

func (s *assignExercisesStep) Name() string { return StageAssignExercises }

func (s *assignExercisesStep) Run(sc *jobs.StepContext) error {
	skeleton, err := requireStageState(sc, StagePlanSkeleton, StageAssignExercises)
	if err != nil {
		return err
	}
	profile, err := requireStageState(sc, StageAnalyzeProfile, StageAssignExercises)
	if err != nil {
		return err
	}

	rawSkeleton, _ := json.Marshal(skeleton)
	rawProfile, _ := json.Marshal(profile)
	rawInput, _ := json.Marshal(sc.Input)

	system := "You are a strength and conditioning coach. Fill every day of the given " +
		"program skeleton with concrete exercises. Respect the athlete's equipment and " +
		"experience level. Keep each day between 3 and 8 exercises with realistic set " +
		"and rep prescriptions."
	user := fmt.Sprintf("Generation request:\n%s\n\nAthlete profile:\n%s\n\nProgram skeleton:\n%s",
		rawInput, rawProfile, rawSkeleton)

	out, err := s.ai.GenerateJSON(sc.Ctx, system, user, StageAssignExercises, assignExercisesSchema)
	if err != nil {
		return classifyAIErr(StageAssignExercises, err)
	}

	if errs := validateAssignments(out); len(errs) > 0 {
		s.log.Warn("Exercise assignment failed validation, re-prompting once",
			"job_id", sc.Job.ID, "violations", fmtErrs(errs))
		corrective := user + fmt.Sprintf("\n\nYour previous attempt was invalid: %s. Produce a corrected program.", fmtErrs(errs))
		out, err = s.ai.GenerateJSON(sc.Ctx, system, corrective, StageAssignExercises, assignExercisesSchema)
		if err != nil {
			return classifyAIErr(StageAssignExercises, err)
		}
		if errs := validateAssignments(out); len(errs) > 0 {
			return jobs.Permanentf(StageAssignExercises, "exercise assignment still invalid after correction: %s", fmtErrs(errs))
		}
	}

	sc.SetOutput(out)
	return nil
}

func validateAssignments(out map[string]any) []string {
	var errs []string
	weeks, ok := sliceField(out, "weeks")
	if !ok || len(weeks) == 0 {
		return []string{"missing weeks array"}
	}
	for wi, w := range weeks {
		wm, ok := w.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("week %d is not an object", wi+1))
			continue
		}
		days, ok := sliceField(wm, "days")
		if !ok || len(days) == 0 {
			errs = append(errs, fmt.Sprintf("week %d has no days", wi+1))
			continue
		}
		for di, d := range days {
			dm, ok := d.(map[string]any)
			if !ok {
				errs = append(errs, fmt.Sprintf("week %d day %d is not an object", wi+1, di+1))
				continue
			}
			exercises, ok := sliceField(dm, "exercises")
			if !ok || len(exercises) == 0 {
				errs = append(errs, fmt.Sprintf("week %d day %d has no exercises", wi+1, di+1))
				continue
			}
			if len(exercises) > maxExercisesPerDay {
				errs = append(errs, fmt.Sprintf("week %d day %d has %d exercises, max %d", wi+1, di+1, len(exercises), maxExercisesPerDay))
			}
			for ei, e := range exercises {
				em, ok := e.(map[string]any)
				if !ok {
					errs = append(errs, fmt.Sprintf("week %d day %d exercise %d is not an object", wi+1, di+1, ei+1))
					continue
				}
				if strField(em, "name") == "" {
					errs = append(errs, fmt.Sprintf("week %d day %d exercise %d has no name", wi+1, di+1, ei+1))
				}
				if sets, ok := intField(em, "sets"); !ok || sets < 1 || sets > maxSets {
					errs = append(errs, fmt.Sprintf("week %d day %d exercise %d has invalid sets", wi+1, di+1, ei+1))
				}
				if reps, ok := intField(em, "reps"); !ok || reps < 1 || reps > maxReps {
					errs = append(errs, fmt.Sprintf("week %d day %d exercise %d has invalid reps", wi+1, di+1, ei+1))
				}
			}
		}
	}
	return errs
}
