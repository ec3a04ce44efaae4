package repositories

import (
	"context"

	"github.com/caselight/caselight/internal/domain/health"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

type healthAlertRepo struct {
	db  querier
	log logging.Logger
}

// NewHealthAlertRepository returns the pgx-backed AlertRepository.
func NewHealthAlertRepository(conn *postgres.Connection, log logging.Logger) health.AlertRepository {
	return &healthAlertRepo{db: conn.Pool(), log: log}
}

func (r *healthAlertRepo) ExistsForDay(ctx context.Context, caseID common.ID, day string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM health_alerts WHERE case_id = $1 AND day = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, caseID, day).Scan(&exists); err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to check health alert existence")
	}
	return exists, nil
}

func (r *healthAlertRepo) Insert(ctx context.Context, alert *health.Alert) error {
	if alert.ID == "" {
		alert.ID = common.NewID()
	}

	query := `
		INSERT INTO health_alerts (id, case_id, day, level, message, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		alert.ID, alert.CaseID, alert.Day, alert.Level, alert.Message,
	).Scan(&alert.CreatedAt)
	if err != nil {
		// Unique (case_id, day) index backs up the ExistsForDay fast path.
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrCodeAlertDuplicate, "alert already recorded for this day").WithCause(err)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to insert health alert")
	}
	return nil
}

func (r *healthAlertRepo) ListByCase(ctx context.Context, caseID common.ID, limit int) ([]health.Alert, error) {
	if limit <= 0 {
		limit = 30
	}

	query := `
		SELECT id, case_id, day, level, message, created_at
		FROM health_alerts WHERE case_id = $1 ORDER BY day DESC LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, caseID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list health alerts")
	}
	defer rows.Close()

	var alerts []health.Alert
	for rows.Next() {
		var a health.Alert
		if err := rows.Scan(&a.ID, &a.CaseID, &a.Day, &a.Level, &a.Message, &a.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan health alert")
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
