package repositories

import (
	"context"
	"time"

	"github.com/caselight/caselight/internal/domain/gatekeeper"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

type workflowRepo struct {
	db  querier
	log logging.Logger
}

// NewWorkflowRepository returns the pgx-backed gatekeeper Repository.
func NewWorkflowRepository(conn *postgres.Connection, log logging.Logger) gatekeeper.Repository {
	return &workflowRepo{db: conn.Pool(), log: log}
}

func (r *workflowRepo) CreateAll(ctx context.Context, tasks []gatekeeper.Task) error {
	query := `
		INSERT INTO workflow_tasks (id, case_id, task_key, status, due_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, '{}'::jsonb), NOW(), NOW())
	`
	for i := range tasks {
		t := &tasks[i]
		if t.ID == "" {
			t.ID = common.NewID()
		}
		if _, err := r.db.Exec(ctx, query, t.ID, t.CaseID, t.TaskKey, t.Status, t.DueAt, t.Metadata); err != nil {
			if isUniqueViolation(err) {
				return apperrors.New(apperrors.ErrCodeConflict, "workflow task already exists").WithCause(err)
			}
			return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to create workflow task")
		}
	}
	return nil
}

func (r *workflowRepo) ListByCase(ctx context.Context, caseID common.ID) ([]gatekeeper.Task, error) {
	query := `
		SELECT id, case_id, task_key, status, due_at, metadata
		FROM workflow_tasks WHERE case_id = $1 ORDER BY task_key ASC
	`
	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list workflow tasks")
	}
	defer rows.Close()

	var tasks []gatekeeper.Task
	for rows.Next() {
		t, err := scanWorkflowTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (r *workflowRepo) GetByCaseAndKey(ctx context.Context, caseID common.ID, taskKey string) (*gatekeeper.Task, error) {
	query := `
		SELECT id, case_id, task_key, status, due_at, metadata
		FROM workflow_tasks WHERE case_id = $1 AND task_key = $2
	`
	return scanWorkflowTask(r.db.QueryRow(ctx, query, caseID, taskKey))
}

func (r *workflowRepo) UpdateStatus(ctx context.Context, caseID common.ID, taskKey string, status gatekeeper.Status, dueAt *time.Time) error {
	query := `
		UPDATE workflow_tasks
		SET status = $3, due_at = COALESCE($4, due_at), updated_at = NOW()
		WHERE case_id = $1 AND task_key = $2
	`
	tag, err := r.db.Exec(ctx, query, caseID, taskKey, status, dueAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to update workflow task status")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.ErrCodeWorkflowTaskNotFound, "workflow task not found")
	}
	return nil
}

func (r *workflowRepo) SetMetadata(ctx context.Context, caseID common.ID, taskKey, metaKey, metaValue string) error {
	// jsonb merge keeps unrelated metadata keys intact.
	query := `
		UPDATE workflow_tasks
		SET metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object($3::text, $4::text),
		    updated_at = NOW()
		WHERE case_id = $1 AND task_key = $2
	`
	tag, err := r.db.Exec(ctx, query, caseID, taskKey, metaKey, metaValue)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to set workflow task metadata")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.ErrCodeWorkflowTaskNotFound, "workflow task not found")
	}
	return nil
}

func scanWorkflowTask(row scanner) (*gatekeeper.Task, error) {
	t := &gatekeeper.Task{}
	err := row.Scan(&t.ID, &t.CaseID, &t.TaskKey, &t.Status, &t.DueAt, &t.Metadata)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.New(apperrors.ErrCodeWorkflowTaskNotFound, "workflow task not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan workflow task")
	}
	return t, nil
}
