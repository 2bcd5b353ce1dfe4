package jobs

import (
	"github.com/google/uuid"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/pkg/dbctx"
)

// Store is the narrow persistence interface the pipeline core consumes.
// Updates are column-name keyed partial merges; every write that can race a
// duplicate delivery goes through one of the two guarded forms so concurrent
// retries can never half-overwrite each other.
type Store interface {
	Create(dbc dbctx.Context, job *domain.ProgramJob) (*domain.ProgramJob, error)
	// GetByID returns pkg/errors.ErrNotFound (wrapped) for missing jobs,
	// never an empty record.
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ProgramJob, error)
	// UpdateFields applies an unconditional atomic partial merge.
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// AdvanceStep applies updates only while the job is non-terminal and
	// still sitting at fromStep. Exactly one of any set of concurrent
	// duplicate deliveries observes ok=true.
	AdvanceStep(dbc dbctx.Context, id uuid.UUID, fromStep int, updates map[string]interface{}) (bool, error)
	// MarkTerminal applies updates only while the job is non-terminal, so a
	// late duplicate can never clobber a completed/failed record.
	MarkTerminal(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error)
}
