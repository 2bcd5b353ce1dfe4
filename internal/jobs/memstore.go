package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/pkg/dbctx"
	pkgerrors "github.com/peakform/peakform-backend/internal/pkg/errors"
)

// MemStore is the reference in-memory Store. It backs single-process dev
// runs and tests; the gorm-backed store in internal/repos must match its
// guarded-update semantics exactly.
type MemStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.ProgramJob
}

func NewMemStore() *MemStore {
	return &MemStore{jobs: map[uuid.UUID]*domain.ProgramJob{}}
}

func (s *MemStore) Create(dbc dbctx.Context, job *domain.ProgramJob) (*domain.ProgramJob, error) {
	if job == nil {
		return nil, fmt.Errorf("nil job")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if _, exists := s.jobs[job.ID]; exists {
		return nil, fmt.Errorf("job %s already exists", job.ID)
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return job, nil
}

func (s *MemStore) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ProgramJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, pkgerrors.ErrNotFound)
	}
	cp := *job
	return &cp, nil
}

func (s *MemStore) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, pkgerrors.ErrNotFound)
	}
	applyJobUpdates(job, updates)
	return nil
}

func (s *MemStore) AdvanceStep(dbc dbctx.Context, id uuid.UUID, fromStep int, updates map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, fmt.Errorf("job %s: %w", id, pkgerrors.ErrNotFound)
	}
	if domain.IsTerminalJobStatus(job.Status) || job.CurrentStep != fromStep {
		return false, nil
	}
	applyJobUpdates(job, updates)
	return true, nil
}

func (s *MemStore) MarkTerminal(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, fmt.Errorf("job %s: %w", id, pkgerrors.ErrNotFound)
	}
	if domain.IsTerminalJobStatus(job.Status) {
		return false, nil
	}
	applyJobUpdates(job, updates)
	return true, nil
}

func applyJobUpdates(job *domain.ProgramJob, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			job.Status, _ = v.(string)
		case "current_step":
			if i, ok := v.(int); ok {
				job.CurrentStep = i
			}
		case "state":
			job.State = toJSON(v)
		case "result":
			job.Result = toJSON(v)
		case "error":
			job.Error, _ = v.(string)
		case "updated_at":
			if t, ok := v.(time.Time); ok {
				job.UpdatedAt = t
			}
		}
	}
	if _, ok := updates["updated_at"]; !ok {
		job.UpdatedAt = time.Now()
	}
}

func toJSON(v interface{}) datatypes.JSON {
	switch j := v.(type) {
	case datatypes.JSON:
		return j
	case []byte:
		return datatypes.JSON(j)
	case nil:
		return nil
	}
	return nil
}
