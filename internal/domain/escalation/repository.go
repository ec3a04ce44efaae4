package escalation

import (
	"context"
	"time"

	"github.com/caselight/caselight/pkg/types/common"
)

// Record is a persisted escalation row.  The unique (deadline_id, level)
// index is what makes re-evaluation idempotent across processes.
type Record struct {
	ID          common.ID
	CaseID      common.ID
	DeadlineID  common.ID
	Level       int
	Message     string
	TriggeredAt time.Time
}

// Repository defines the persistence contract for escalation rules and
// records.
type Repository interface {
	ListRules(ctx context.Context) ([]Rule, error)

	// Insert persists a new escalation row.  On a (deadline_id, level)
	// unique violation implementations return an
	// errors.ErrCodeEscalationDuplicate AppError; the caller treats that as
	// "someone else already fired this level", not a failure.
	Insert(ctx context.Context, rec *Record) error
	ListExistingByCase(ctx context.Context, caseID common.ID) ([]Existing, error)
	ListByCase(ctx context.Context, caseID common.ID) ([]Record, error)
}
