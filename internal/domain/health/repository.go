package health

import (
	"context"
	"time"

	"github.com/caselight/caselight/pkg/types/common"
)

// Alert is a persisted health alert, day-bucketed per case by the unique
// (case_id, day) index.
type Alert struct {
	ID        common.ID
	CaseID    common.ID
	Day       string // YYYY-MM-DD, UTC
	Level     int
	Message   string
	CreatedAt time.Time
}

// AlertRepository defines the persistence contract for health alerts.
type AlertRepository interface {
	// ExistsForDay is the cheap first tier of the dedup; the unique index is
	// the backstop against races.
	ExistsForDay(ctx context.Context, caseID common.ID, day string) (bool, error)

	// Insert persists a new alert.  On a (case_id, day) unique violation
	// implementations return an errors.ErrCodeAlertDuplicate AppError; the
	// caller treats that as "already recorded", not a failure.
	Insert(ctx context.Context, alert *Alert) error
	ListByCase(ctx context.Context, caseID common.ID, limit int) ([]Alert, error)
}
