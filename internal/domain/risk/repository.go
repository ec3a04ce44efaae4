package risk

import (
	"context"
	"time"

	"github.com/caselight/caselight/pkg/types/common"
)

// Snapshot is one persisted risk evaluation, day-bucketed per case: at most
// one row per (case_id, UTC calendar day), with re-evaluations on the same
// day overwriting the earlier result.
type Snapshot struct {
	ID           common.ID
	CaseID       common.ID
	Day          string // YYYY-MM-DD, UTC
	OverallScore int
	DeadlineRisk int
	ResponseRisk int
	EvidenceRisk int
	ActivityRisk int
	Level        Level
	Breakdown    []BreakdownItem
	EvaluatedAt  time.Time
}

// SnapshotRepository defines the persistence contract for risk snapshots.
type SnapshotRepository interface {
	// Upsert writes the snapshot keyed by (case_id, day); a same-day
	// re-evaluation replaces the existing row's scores.
	Upsert(ctx context.Context, s *Snapshot) error
	GetLatest(ctx context.Context, caseID common.ID) (*Snapshot, error)
	ListByCase(ctx context.Context, caseID common.ID, limit int) ([]Snapshot, error)
}
