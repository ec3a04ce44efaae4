package casefile

import (
	"context"
	"time"

	"github.com/caselight/caselight/pkg/types/common"
)

// QueryOptions defines filtering and pagination for case queries.
type QueryOptions struct {
	Limit  int
	Offset int
	Status *CaseStatus
}

// QueryOption is a functional option for case queries.
type QueryOption func(*QueryOptions)

// WithLimit sets the limit for the query.
func WithLimit(limit int) QueryOption {
	return func(o *QueryOptions) {
		o.Limit = limit
	}
}

// WithOffset sets the offset for the query.
func WithOffset(offset int) QueryOption {
	return func(o *QueryOptions) {
		o.Offset = offset
	}
}

// WithStatus restricts the query to a single case status.
func WithStatus(status CaseStatus) QueryOption {
	return func(o *QueryOptions) {
		o.Status = &status
	}
}

// ApplyOptions applies the given options and returns the final configuration.
func ApplyOptions(opts ...QueryOption) QueryOptions {
	options := QueryOptions{
		Limit:  20,
		Offset: 0,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Limit > 100 {
		options.Limit = 100
	}
	if options.Limit <= 0 {
		options.Limit = 20
	}
	if options.Offset < 0 {
		options.Offset = 0
	}
	return options
}

// CaseRepository defines the persistence contract for cases.
type CaseRepository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id common.ID) (*Case, error)
	List(ctx context.Context, opts ...QueryOption) ([]*Case, int64, error)
	UpdateServiceFacts(ctx context.Context, id common.ID, servedAt, returnFiledAt *time.Time) error
	UpdateStatus(ctx context.Context, id common.ID, status CaseStatus) error
}

// TaskEventRepository defines the persistence contract for the append-only
// activity log.  There is deliberately no update or delete.
type TaskEventRepository interface {
	Append(ctx context.Context, event *TaskEvent) error
	ListByCase(ctx context.Context, caseID common.ID) ([]TaskEvent, error)
	ListByCaseSince(ctx context.Context, caseID common.ID, since time.Time) ([]TaskEvent, error)
}
