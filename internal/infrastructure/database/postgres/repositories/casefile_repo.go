package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/caselight/caselight/internal/domain/casefile"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// CaseRepository
// ─────────────────────────────────────────────────────────────────────────────

type caseRepo struct {
	db  querier
	log logging.Logger
}

// NewCaseRepository returns the pgx-backed CaseRepository.
func NewCaseRepository(conn *postgres.Connection, log logging.Logger) casefile.CaseRepository {
	return &caseRepo{db: conn.Pool(), log: log}
}

func (r *caseRepo) Create(ctx context.Context, c *casefile.Case) error {
	if c.ID == "" {
		c.ID = common.NewID()
	}
	if c.Status == "" {
		c.Status = casefile.CaseStatusActive
	}

	query := `
		INSERT INTO cases (
			id, title, court_name, cause_number, status, served_at, return_filed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		c.ID, c.Title, c.CourtName, c.CauseNumber, c.Status, c.ServedAt, c.ReturnFiledAt,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrCodeCaseAlreadyExists, "case already exists").WithCause(err)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to create case")
	}
	return nil
}

func (r *caseRepo) GetByID(ctx context.Context, id common.ID) (*casefile.Case, error) {
	query := `
		SELECT id, title, court_name, cause_number, status, served_at, return_filed_at,
		       created_at, updated_at
		FROM cases WHERE id = $1
	`
	return scanCase(r.db.QueryRow(ctx, query, id))
}

func (r *caseRepo) List(ctx context.Context, opts ...casefile.QueryOption) ([]*casefile.Case, int64, error) {
	options := casefile.ApplyOptions(opts...)

	where := ""
	args := []any{}
	if options.Status != nil {
		where = "WHERE status = $1"
		args = append(args, *options.Status)
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM cases %s`, where)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to count cases")
	}

	query := fmt.Sprintf(`
		SELECT id, title, court_name, cause_number, status, served_at, return_filed_at,
		       created_at, updated_at
		FROM cases %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, options.Limit, options.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list cases")
	}
	defer rows.Close()

	var cases []*casefile.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		cases = append(cases, c)
	}
	return cases, total, rows.Err()
}

func (r *caseRepo) UpdateServiceFacts(ctx context.Context, id common.ID, servedAt, returnFiledAt *time.Time) error {
	query := `
		UPDATE cases SET served_at = $2, return_filed_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, servedAt, returnFiledAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to update service facts")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.ErrCodeCaseNotFound, "case not found")
	}
	return nil
}

func (r *caseRepo) UpdateStatus(ctx context.Context, id common.ID, status casefile.CaseStatus) error {
	query := `UPDATE cases SET status = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to update case status")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.ErrCodeCaseNotFound, "case not found")
	}
	return nil
}

func scanCase(row scanner) (*casefile.Case, error) {
	c := &casefile.Case{}
	err := row.Scan(
		&c.ID, &c.Title, &c.CourtName, &c.CauseNumber, &c.Status,
		&c.ServedAt, &c.ReturnFiledAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.New(apperrors.ErrCodeCaseNotFound, "case not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan case")
	}
	return c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// TaskEventRepository — append-only
// ─────────────────────────────────────────────────────────────────────────────

type taskEventRepo struct {
	db  querier
	log logging.Logger
}

// NewTaskEventRepository returns the pgx-backed TaskEventRepository.
func NewTaskEventRepository(conn *postgres.Connection, log logging.Logger) casefile.TaskEventRepository {
	return &taskEventRepo{db: conn.Pool(), log: log}
}

func (r *taskEventRepo) Append(ctx context.Context, event *casefile.TaskEvent) error {
	if event.ID == "" {
		event.ID = common.NewID()
	}

	query := `
		INSERT INTO task_events (id, case_id, kind, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, event.ID, event.CaseID, event.Kind).Scan(&event.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to append task event")
	}
	return nil
}

func (r *taskEventRepo) ListByCase(ctx context.Context, caseID common.ID) ([]casefile.TaskEvent, error) {
	query := `
		SELECT id, case_id, kind, created_at FROM task_events
		WHERE case_id = $1 ORDER BY created_at ASC
	`
	return r.queryEvents(ctx, query, caseID)
}

func (r *taskEventRepo) ListByCaseSince(ctx context.Context, caseID common.ID, since time.Time) ([]casefile.TaskEvent, error) {
	query := `
		SELECT id, case_id, kind, created_at FROM task_events
		WHERE case_id = $1 AND created_at >= $2 ORDER BY created_at ASC
	`
	return r.queryEvents(ctx, query, caseID, since)
}

func (r *taskEventRepo) queryEvents(ctx context.Context, query string, args ...any) ([]casefile.TaskEvent, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to query task events")
	}
	defer rows.Close()

	var events []casefile.TaskEvent
	for rows.Next() {
		var ev casefile.TaskEvent
		if err := rows.Scan(&ev.ID, &ev.CaseID, &ev.Kind, &ev.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan task event")
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
