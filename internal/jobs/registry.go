package jobs

import (
	"fmt"
	"sync"
)

type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]Step)}
}

func (r *Registry) Register(s Step) error {
	if s == nil {
		return fmt.Errorf("nil step")
	}
	name := s.Name()
	if name == "" {
		return fmt.Errorf("step Name() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[name]; exists {
		return fmt.Errorf("step already registered for stage=%s", name)
	}
	r.steps[name] = s
	return nil
}

func (r *Registry) Get(stage string) (Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.steps[stage]
	return s, ok
}
