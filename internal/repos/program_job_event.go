package repos

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/pkg/dbctx"
	"github.com/peakform/peakform-backend/internal/platform/logger"
)

type ProgramJobEventRepo interface {
	Append(dbc dbctx.Context, ev *domain.ProgramJobEvent) error
	ListByJob(dbc dbctx.Context, jobID uuid.UUID, limit int) ([]*domain.ProgramJobEvent, error)
}

type programJobEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgramJobEventRepo(db *gorm.DB, baseLog *logger.Logger) ProgramJobEventRepo {
	return &programJobEventRepo{
		db:  db,
		log: baseLog.With("repo", "ProgramJobEventRepo"),
	}
}

func (r *programJobEventRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if dbc.Ctx != nil {
		transaction = transaction.WithContext(dbc.Ctx)
	}
	return transaction
}

func (r *programJobEventRepo) Append(dbc dbctx.Context, ev *domain.ProgramJobEvent) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	return r.conn(dbc).Create(ev).Error
}

func (r *programJobEventRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID, limit int) ([]*domain.ProgramJobEvent, error) {
	var out []*domain.ProgramJobEvent
	if jobID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 100
	}
	err := r.conn(dbc).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
