package jobs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPipelineStageNumbering(t *testing.T) {
	p := NewPipeline("a", "b", "c")
	if got := p.TotalSteps(); got != 3 {
		t.Fatalf("TotalSteps: want=3 got=%d", got)
	}
	name, ok := p.StageName(1)
	if !ok || name != "a" {
		t.Fatalf("StageName(1): want=a,true got=%s,%v", name, ok)
	}
	name, ok = p.StageName(3)
	if !ok || name != "c" {
		t.Fatalf("StageName(3): want=c,true got=%s,%v", name, ok)
	}
	if _, ok := p.StageName(0); ok {
		t.Fatalf("StageName(0): want=false got=true")
	}
	if _, ok := p.StageName(4); ok {
		t.Fatalf("StageName(4): want=false got=true")
	}
}

func TestLoadPipelineEmbeddedSpec(t *testing.T) {
	os.Unsetenv(pipelineSpecEnv)
	p := LoadPipeline(nil)
	want := []string{"analyze_profile", "plan_skeleton", "assign_exercises", "validate_program"}
	got := p.Stages()
	if len(got) != len(want) {
		t.Fatalf("stage count: want=%d got=%d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stage %d: want=%q got=%q", i, want[i], got[i])
		}
	}
}

func TestLoadPipelineEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	spec := `pipeline: program_build
version: 1
stages:
  - name: analyze_profile
  - name: plan_skeleton
    enabled: false
  - name: validate_program
`
	if err := os.WriteFile(path, []byte(spec), 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	t.Setenv(pipelineSpecEnv, path)

	p := LoadPipeline(nil)
	want := []string{"analyze_profile", "validate_program"}
	got := p.Stages()
	if len(got) != len(want) {
		t.Fatalf("stage count: want=%d got=%d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stage %d: want=%q got=%q", i, want[i], got[i])
		}
	}
}

func TestLoadPipelineInvalidSpecFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	t.Setenv(pipelineSpecEnv, path)

	p := LoadPipeline(nil)
	if got := p.TotalSteps(); got != len(fallbackStageOrder) {
		t.Fatalf("fallback stage count: want=%d got=%d", len(fallbackStageOrder), got)
	}
	if name, _ := p.StageName(1); name != fallbackStageOrder[0] {
		t.Fatalf("fallback first stage: want=%q got=%q", fallbackStageOrder[0], name)
	}
}
