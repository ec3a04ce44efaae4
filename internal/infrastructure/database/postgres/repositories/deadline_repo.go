package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caselight/caselight/internal/domain/deadline"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

type deadlineRepo struct {
	pool *pgxpool.Pool
	log  logging.Logger
}

// NewDeadlineRepository returns the pgx-backed deadline Repository.
func NewDeadlineRepository(conn *postgres.Connection, log logging.Logger) deadline.Repository {
	return &deadlineRepo{pool: conn.Pool(), log: log}
}

func (r *deadlineRepo) Create(ctx context.Context, d *deadline.Deadline) error {
	if d.ID == "" {
		d.ID = common.NewID()
	}

	query := `
		INSERT INTO deadlines (id, case_id, key, due_at, source, rationale, calc_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		d.ID, d.CaseID, d.Key, d.DueAt, d.Source, d.Rationale, d.CalcVersion,
	).Scan(&d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrCodeConflict, "deadline already exists for this case and key").WithCause(err)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to create deadline")
	}
	return nil
}

func (r *deadlineRepo) GetByID(ctx context.Context, id common.ID) (*deadline.Deadline, error) {
	query := `
		SELECT id, case_id, key, due_at, source, rationale, calc_version, created_at
		FROM deadlines WHERE id = $1
	`
	return scanDeadline(r.pool.QueryRow(ctx, query, id))
}

func (r *deadlineRepo) GetByCaseAndKey(ctx context.Context, caseID common.ID, key string) (*deadline.Deadline, error) {
	query := `
		SELECT id, case_id, key, due_at, source, rationale, calc_version, created_at
		FROM deadlines WHERE case_id = $1 AND key = $2
	`
	return scanDeadline(r.pool.QueryRow(ctx, query, caseID, key))
}

func (r *deadlineRepo) ListByCase(ctx context.Context, caseID common.ID) ([]deadline.Deadline, error) {
	query := `
		SELECT id, case_id, key, due_at, source, rationale, calc_version, created_at
		FROM deadlines WHERE case_id = $1 ORDER BY due_at ASC, key ASC
	`
	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list deadlines")
	}
	defer rows.Close()

	var deadlines []deadline.Deadline
	for rows.Next() {
		d, err := scanDeadline(rows)
		if err != nil {
			return nil, err
		}
		deadlines = append(deadlines, *d)
	}
	return deadlines, rows.Err()
}

func (r *deadlineRepo) Upsert(ctx context.Context, d *deadline.Deadline) error {
	if d.ID == "" {
		d.ID = common.NewID()
	}

	// The conflict target keeps row identity stable: re-deriving a deadline
	// updates the existing (case_id, key) row and the RETURNING clause hands
	// back its original id for reminder attachment.
	query := `
		INSERT INTO deadlines (id, case_id, key, due_at, source, rationale, calc_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (case_id, key) DO UPDATE SET
			due_at = EXCLUDED.due_at,
			source = EXCLUDED.source,
			rationale = EXCLUDED.rationale,
			calc_version = EXCLUDED.calc_version
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		d.ID, d.CaseID, d.Key, d.DueAt, d.Source, d.Rationale, d.CalcVersion,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to upsert deadline")
	}
	return nil
}

func (r *deadlineRepo) DeleteByCaseAndKey(ctx context.Context, caseID common.ID, key string) error {
	query := `DELETE FROM deadlines WHERE case_id = $1 AND key = $2`
	if _, err := r.pool.Exec(ctx, query, caseID, key); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to delete deadline")
	}
	return nil
}

func (r *deadlineRepo) ReplaceReminders(ctx context.Context, deadlineID common.ID, reminders []deadline.Reminder) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM reminders WHERE deadline_id = $1`, deadlineID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to clear reminders")
	}

	insert := `
		INSERT INTO reminders (id, case_id, deadline_id, remind_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	for i := range reminders {
		rem := &reminders[i]
		if rem.ID == "" {
			rem.ID = common.NewID()
		}
		rem.DeadlineID = deadlineID
		if _, err := tx.Exec(ctx, insert, rem.ID, rem.CaseID, rem.DeadlineID, rem.RemindAt); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to insert reminder")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to commit reminder replacement")
	}
	return nil
}

func (r *deadlineRepo) ListReminders(ctx context.Context, caseID common.ID) ([]deadline.Reminder, error) {
	query := `
		SELECT id, case_id, deadline_id, remind_at, created_at
		FROM reminders WHERE case_id = $1 ORDER BY remind_at ASC
	`
	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list reminders")
	}
	defer rows.Close()

	var reminders []deadline.Reminder
	for rows.Next() {
		var rem deadline.Reminder
		if err := rows.Scan(&rem.ID, &rem.CaseID, &rem.DeadlineID, &rem.RemindAt, &rem.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan reminder")
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

func scanDeadline(row scanner) (*deadline.Deadline, error) {
	d := &deadline.Deadline{}
	err := row.Scan(&d.ID, &d.CaseID, &d.Key, &d.DueAt, &d.Source, &d.Rationale, &d.CalcVersion, &d.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.New(apperrors.ErrCodeDeadlineNotFound, "deadline not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan deadline")
	}
	return d, nil
}
