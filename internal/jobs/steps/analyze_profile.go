package steps

import (
	"encoding/json"
	"fmt"

	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/services"
)

var analyzeProfileSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"profile_summary": map[string]any{"type": "string"},
		"training_age":    map[string]any{"type": "string", "enum": []string{"novice", "developing", "experienced"}},
		"focus_areas": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"weekly_capacity": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sessions":            map[string]any{"type": "integer"},
				"minutes_per_session": map[string]any{"type": "integer"},
			},
			"required":             []string{"sessions", "minutes_per_session"},
			"additionalProperties": false,
		},
	},
	"required":             []string{"profile_summary", "training_age", "focus_areas", "weekly_capacity"},
	"additionalProperties": false,
}

// analyzeProfileStep turns the raw generation request into a structured
// athlete profile for downstream stages.
type analyzeProfileStep struct {
	log *logger.Logger
	ai  services.OpenAIClient
}

func NewAnalyzeProfileStep(baseLog *logger.Logger, ai services.OpenAIClient) jobs.Step {
	return &analyzeProfileStep{
		log: baseLog.With("stage", StageAnalyzeProfile),
		ai:  ai,
	}
}

func (s *analyzeProfileStep) Name() string { return StageAnalyzeProfile }

func (s *analyzeProfileStep) Run(sc *jobs.StepContext) error {
	rawInput, err := json.Marshal(sc.Input)
	if err != nil {
		return jobs.Permanent(StageAnalyzeProfile, fmt.Errorf("encode input: %w", err))
	}

	system := "You are a strength and conditioning coach. Analyze the athlete's " +
		"generation request and produce a concise structured profile. Be realistic " +
		"about capacity given the stated experience level."
	user := fmt.Sprintf("Generation request:\n%s", rawInput)

	out, err := s.ai.GenerateJSON(sc.Ctx, system, user, StageAnalyzeProfile, analyzeProfileSchema)
	if err != nil {
		return classifyAIErr(StageAnalyzeProfile, err)
	}
	if strField(out, "profile_summary") == "" {
		return jobs.Permanentf(StageAnalyzeProfile, "model returned empty profile_summary")
	}

	sc.SetOutput(out)
	return nil
}
