package repositories

import (
	"context"

	"github.com/caselight/caselight/internal/domain/escalation"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

type escalationRepo struct {
	db  querier
	log logging.Logger
}

// NewEscalationRepository returns the pgx-backed escalation Repository.
func NewEscalationRepository(conn *postgres.Connection, log logging.Logger) escalation.Repository {
	return &escalationRepo{db: conn.Pool(), log: log}
}

func (r *escalationRepo) ListRules(ctx context.Context) ([]escalation.Rule, error) {
	query := `
		SELECT deadline_key, level, offset_days, condition_type, condition_key, message_template
		FROM escalation_rules ORDER BY deadline_key ASC, level ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list escalation rules")
	}
	defer rows.Close()

	var rules []escalation.Rule
	for rows.Next() {
		var rule escalation.Rule
		err := rows.Scan(&rule.DeadlineKey, &rule.Level, &rule.OffsetDays,
			&rule.ConditionType, &rule.ConditionKey, &rule.MessageTemplate)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan escalation rule")
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *escalationRepo) Insert(ctx context.Context, rec *escalation.Record) error {
	if rec.ID == "" {
		rec.ID = common.NewID()
	}

	query := `
		INSERT INTO escalations (id, case_id, deadline_id, level, message, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.CaseID, rec.DeadlineID, rec.Level, rec.Message, rec.TriggeredAt)
	if err != nil {
		// The unique (deadline_id, level) index enforces fire-once; a
		// concurrent evaluator losing the race is reported as a duplicate,
		// which callers treat as already done.
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrCodeEscalationDuplicate, "escalation level already triggered").WithCause(err)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to insert escalation")
	}
	return nil
}

func (r *escalationRepo) ListExistingByCase(ctx context.Context, caseID common.ID) ([]escalation.Existing, error) {
	query := `SELECT deadline_id, level FROM escalations WHERE case_id = $1`
	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list existing escalations")
	}
	defer rows.Close()

	var existing []escalation.Existing
	for rows.Next() {
		var ex escalation.Existing
		if err := rows.Scan(&ex.DeadlineID, &ex.Level); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan existing escalation")
		}
		existing = append(existing, ex)
	}
	return existing, rows.Err()
}

func (r *escalationRepo) ListByCase(ctx context.Context, caseID common.ID) ([]escalation.Record, error) {
	query := `
		SELECT id, case_id, deadline_id, level, message, triggered_at
		FROM escalations WHERE case_id = $1 ORDER BY triggered_at DESC
	`
	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list escalations")
	}
	defer rows.Close()

	var records []escalation.Record
	for rows.Next() {
		var rec escalation.Record
		err := rows.Scan(&rec.ID, &rec.CaseID, &rec.DeadlineID, &rec.Level, &rec.Message, &rec.TriggeredAt)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan escalation")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
