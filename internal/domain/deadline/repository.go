package deadline

import (
	"context"
	"time"

	"github.com/caselight/caselight/pkg/types/common"
)

// Reminder is one scheduled reminder instant for a deadline.
type Reminder struct {
	ID         common.ID
	CaseID     common.ID
	DeadlineID common.ID
	RemindAt   time.Time
	CreatedAt  time.Time
}

// Repository defines the persistence contract for deadlines and their
// reminders.
type Repository interface {
	Create(ctx context.Context, d *Deadline) error
	GetByID(ctx context.Context, id common.ID) (*Deadline, error)
	GetByCaseAndKey(ctx context.Context, caseID common.ID, key string) (*Deadline, error)
	ListByCase(ctx context.Context, caseID common.ID) ([]Deadline, error)
	// Upsert replaces the deadline identified by (case_id, key), preserving
	// the row identity when one already exists.
	Upsert(ctx context.Context, d *Deadline) error
	DeleteByCaseAndKey(ctx context.Context, caseID common.ID, key string) error

	// ReplaceReminders deletes every reminder attached to the deadline and
	// inserts the given set in one transaction.  Reminder recomputation is a
	// full replacement, never a merge.
	ReplaceReminders(ctx context.Context, deadlineID common.ID, reminders []Reminder) error
	ListReminders(ctx context.Context, caseID common.ID) ([]Reminder, error)
}
