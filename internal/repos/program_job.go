package repos

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/pkg/dbctx"
	pkgerrors "github.com/peakform/peakform-backend/internal/pkg/errors"
	"github.com/peakform/peakform-backend/internal/platform/logger"
)

// programJobRepo is the gorm-backed jobs.Store. Guarded updates are single
// conditional UPDATE statements; RowsAffected decides the winner, so the
// guarantees hold across processes without explicit locking.
type programJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgramJobRepo(db *gorm.DB, baseLog *logger.Logger) jobs.Store {
	return &programJobRepo{
		db:  db,
		log: baseLog.With("repo", "ProgramJobRepo"),
	}
}

func (r *programJobRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if dbc.Ctx != nil {
		transaction = transaction.WithContext(dbc.Ctx)
	}
	return transaction
}

func (r *programJobRepo) Create(dbc dbctx.Context, job *domain.ProgramJob) (*domain.ProgramJob, error) {
	if job == nil {
		return nil, fmt.Errorf("nil job")
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if err := r.conn(dbc).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *programJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ProgramJob, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("job %s: %w", id, pkgerrors.ErrNotFound)
	}
	var job domain.ProgramJob
	err := r.conn(dbc).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("job %s: %w", id, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *programJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.conn(dbc).
		Model(&domain.ProgramJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *programJobRepo) AdvanceStep(dbc dbctx.Context, id uuid.UUID, fromStep int, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := r.conn(dbc).
		Model(&domain.ProgramJob{}).
		Where("id = ? AND current_step = ? AND status NOT IN ?", id, fromStep,
			[]string{domain.JobStatusCompleted, domain.JobStatusFailed}).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *programJobRepo) MarkTerminal(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := r.conn(dbc).
		Model(&domain.ProgramJob{}).
		Where("id = ? AND status NOT IN ?", id,
			[]string{domain.JobStatusCompleted, domain.JobStatusFailed}).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
