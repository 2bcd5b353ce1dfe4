package jobs

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/peakform/peakform-backend/internal/platform/logger"
)

const pipelineSpecEnv = "PROGRAM_BUILD_PIPELINE_YAML"

//go:embed pipeline.yaml
var pipelineSpecFS embed.FS

// fallback stage order used when the YAML is missing or invalid
var fallbackStageOrder = []string{
	"analyze_profile",
	"plan_skeleton",
	"assign_exercises",
	"validate_program",
}

type yamlPipelineSpec struct {
	Pipeline string          `yaml:"pipeline"`
	Version  int             `yaml:"version"`
	Stages   []yamlStageSpec `yaml:"stages"`
}

type yamlStageSpec struct {
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled"`
}

// Pipeline is the ordered stage list for one program build. Steps are
// numbered 1..TotalSteps; numbering is fixed for the life of a job, so the
// spec is loaded once at boot and never reloaded.
type Pipeline struct {
	stages []string
}

func LoadPipeline(log *logger.Logger) *Pipeline {
	stages, err := loadPipelineStages()
	if err != nil {
		if log != nil {
			log.Warn("program_build: pipeline spec load failed; using fallback", "error", err)
		}
		stages = fallbackStageOrder
	}
	return &Pipeline{stages: stages}
}

// NewPipeline builds a pipeline from an explicit stage list. Tests use this
// to run shorter pipelines.
func NewPipeline(stages ...string) *Pipeline {
	return &Pipeline{stages: stages}
}

func (p *Pipeline) TotalSteps() int { return len(p.stages) }

// StageName maps a 1-based step number to its stage name.
func (p *Pipeline) StageName(step int) (string, bool) {
	if step < 1 || step > len(p.stages) {
		return "", false
	}
	return p.stages[step-1], true
}

func (p *Pipeline) Stages() []string {
	out := make([]string, len(p.stages))
	copy(out, p.stages)
	return out
}

func loadPipelineStages() ([]string, error) {
	data, err := readPipelineSpec()
	if err != nil {
		return nil, err
	}
	var spec yamlPipelineSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	stages := make([]string, 0, len(spec.Stages))
	for _, stage := range spec.Stages {
		name := strings.TrimSpace(stage.Name)
		if name == "" {
			continue
		}
		if stage.Enabled != nil && !*stage.Enabled {
			continue
		}
		stages = append(stages, name)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline spec has no enabled stages")
	}
	return stages, nil
}

func readPipelineSpec() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(pipelineSpecEnv)); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, nil
	}
	return pipelineSpecFS.ReadFile("pipeline.yaml")
}
