package gatekeeper

import (
	"context"
	"time"

	"github.com/caselight/caselight/pkg/types/common"
)

// Repository defines the persistence contract for workflow tasks.  Tasks are
// keyed uniquely by (case_id, task_key).
type Repository interface {
	CreateAll(ctx context.Context, tasks []Task) error
	ListByCase(ctx context.Context, caseID common.ID) ([]Task, error)
	GetByCaseAndKey(ctx context.Context, caseID common.ID, taskKey string) (*Task, error)
	UpdateStatus(ctx context.Context, caseID common.ID, taskKey string, status Status, dueAt *time.Time) error
	SetMetadata(ctx context.Context, caseID common.ID, taskKey, metaKey, metaValue string) error
}
