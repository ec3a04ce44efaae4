package repositories

import (
	"context"
	"encoding/json"

	"github.com/caselight/caselight/internal/domain/risk"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

type riskSnapshotRepo struct {
	db  querier
	log logging.Logger
}

// NewRiskSnapshotRepository returns the pgx-backed SnapshotRepository.
func NewRiskSnapshotRepository(conn *postgres.Connection, log logging.Logger) risk.SnapshotRepository {
	return &riskSnapshotRepo{db: conn.Pool(), log: log}
}

func (r *riskSnapshotRepo) Upsert(ctx context.Context, s *risk.Snapshot) error {
	if s.ID == "" {
		s.ID = common.NewID()
	}

	breakdown, err := json.Marshal(s.Breakdown)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to encode risk breakdown")
	}

	// Day-bucketed: a re-evaluation on the same UTC day overwrites that day's
	// row instead of growing the history.
	query := `
		INSERT INTO risk_snapshots (
			id, case_id, day, overall_score, deadline_risk, response_risk,
			evidence_risk, activity_risk, level, breakdown, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (case_id, day) DO UPDATE SET
			overall_score = EXCLUDED.overall_score,
			deadline_risk = EXCLUDED.deadline_risk,
			response_risk = EXCLUDED.response_risk,
			evidence_risk = EXCLUDED.evidence_risk,
			activity_risk = EXCLUDED.activity_risk,
			level = EXCLUDED.level,
			breakdown = EXCLUDED.breakdown,
			evaluated_at = EXCLUDED.evaluated_at
		RETURNING id
	`
	err = r.db.QueryRow(ctx, query,
		s.ID, s.CaseID, s.Day, s.OverallScore, s.DeadlineRisk, s.ResponseRisk,
		s.EvidenceRisk, s.ActivityRisk, s.Level, breakdown, s.EvaluatedAt,
	).Scan(&s.ID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to upsert risk snapshot")
	}
	return nil
}

func (r *riskSnapshotRepo) GetLatest(ctx context.Context, caseID common.ID) (*risk.Snapshot, error) {
	query := `
		SELECT id, case_id, day, overall_score, deadline_risk, response_risk,
		       evidence_risk, activity_risk, level, breakdown, evaluated_at
		FROM risk_snapshots WHERE case_id = $1 ORDER BY day DESC LIMIT 1
	`
	return scanRiskSnapshot(r.db.QueryRow(ctx, query, caseID))
}

func (r *riskSnapshotRepo) ListByCase(ctx context.Context, caseID common.ID, limit int) ([]risk.Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	query := `
		SELECT id, case_id, day, overall_score, deadline_risk, response_risk,
		       evidence_risk, activity_risk, level, breakdown, evaluated_at
		FROM risk_snapshots WHERE case_id = $1 ORDER BY day DESC LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, caseID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list risk snapshots")
	}
	defer rows.Close()

	var snapshots []risk.Snapshot
	for rows.Next() {
		s, err := scanRiskSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *s)
	}
	return snapshots, rows.Err()
}

func scanRiskSnapshot(row scanner) (*risk.Snapshot, error) {
	s := &risk.Snapshot{}
	var breakdown []byte
	err := row.Scan(
		&s.ID, &s.CaseID, &s.Day, &s.OverallScore, &s.DeadlineRisk, &s.ResponseRisk,
		&s.EvidenceRisk, &s.ActivityRisk, &s.Level, &breakdown, &s.EvaluatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.New(apperrors.ErrCodeNotFound, "risk snapshot not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan risk snapshot")
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &s.Breakdown); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to decode risk breakdown")
		}
	}
	return s, nil
}
