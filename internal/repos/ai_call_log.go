package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/pkg/dbctx"
	"github.com/peakform/peakform-backend/internal/platform/logger"
)

type AICallLogRepo interface {
	Append(dbc dbctx.Context, row *domain.AICallLog) error
}

type aiCallLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAICallLogRepo(db *gorm.DB, baseLog *logger.Logger) AICallLogRepo {
	return &aiCallLogRepo{
		db:  db,
		log: baseLog.With("repo", "AICallLogRepo"),
	}
}

func (r *aiCallLogRepo) Append(dbc dbctx.Context, row *domain.AICallLog) error {
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if dbc.Ctx != nil {
		transaction = transaction.WithContext(dbc.Ctx)
	}
	return transaction.Create(row).Error
}
