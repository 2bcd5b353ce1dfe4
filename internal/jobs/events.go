package jobs

import (
	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/pkg/dbctx"
)

// EventRecorder appends rows to the job timeline ledger. Writes are
// best-effort; the runner logs and continues on failure.
type EventRecorder interface {
	Append(dbc dbctx.Context, ev *domain.ProgramJobEvent) error
}
