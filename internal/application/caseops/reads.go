package caseops

import (
	"context"
	"time"

	"github.com/caselight/caselight/internal/domain/deadline"
	"github.com/caselight/caselight/internal/domain/escalation"
	"github.com/caselight/caselight/internal/domain/gatekeeper"
	"github.com/caselight/caselight/internal/domain/health"
	"github.com/caselight/caselight/internal/domain/risk"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

const riskReportTTL = 15 * time.Minute

func riskReportCacheKey(caseID common.ID) string {
	return "risk:latest:" + string(caseID)
}

// GetRiskReport returns the latest risk snapshot for the case, served from
// cache when possible.  Evaluations invalidate the key, so a stale read is
// bounded by the TTL only when invalidation itself failed.
func (s *Service) GetRiskReport(ctx context.Context, caseID common.ID) (*risk.Snapshot, error) {
	if s.cache == nil {
		snapshot, err := s.repos.Snapshots.GetLatest(ctx, caseID)
		if err != nil {
			return nil, err
		}
		return s.filterExplanations(snapshot), nil
	}

	var snapshot risk.Snapshot
	err := s.cache.GetOrSet(ctx, riskReportCacheKey(caseID), &snapshot, riskReportTTL,
		func(ctx context.Context) (interface{}, error) {
			if s.metrics != nil {
				prometheus.RecordCacheAccess(s.metrics, "risk_report", false)
			}
			return s.repos.Snapshots.GetLatest(ctx, caseID)
		})
	if err != nil {
		return nil, err
	}
	return s.filterExplanations(&snapshot), nil
}

// GetRiskHistory returns up to limit day-bucketed snapshots, newest first.
func (s *Service) GetRiskHistory(ctx context.Context, caseID common.ID, limit int) ([]risk.Snapshot, error) {
	snapshots, err := s.repos.Snapshots.ListByCase(ctx, caseID, limit)
	if err != nil {
		return nil, err
	}
	for i := range snapshots {
		snapshots[i] = *s.filterExplanations(&snapshots[i])
	}
	return snapshots, nil
}

// filterExplanations gates the breakdown detail text through the explanation
// safety filter before it reaches a reader.  An unsafe entry is withheld
// whole, never rewritten; the stored snapshot and its scores stay intact.
func (s *Service) filterExplanations(snapshot *risk.Snapshot) *risk.Snapshot {
	unsafe := 0
	for _, item := range snapshot.Breakdown {
		if !s.explanations.IsSafe(item.Detail) {
			unsafe++
		}
	}
	if unsafe == 0 {
		return snapshot
	}

	out := *snapshot
	out.Breakdown = make([]risk.BreakdownItem, 0, len(snapshot.Breakdown)-unsafe)
	for _, item := range snapshot.Breakdown {
		if s.explanations.IsSafe(item.Detail) {
			out.Breakdown = append(out.Breakdown, item)
			continue
		}
		s.logger.Warn("risk explanation suppressed by safety filter",
			logging.String("case_id", string(snapshot.CaseID)),
			logging.String("rule", item.Rule),
			logging.String("blocked_phrase", s.explanations.BlockedPhrase(item.Detail)))
		if s.metrics != nil {
			prometheus.RecordSuppression(s.metrics, "risk_explanation")
		}
	}
	return &out
}

// ListDeadlines returns the case's deadlines.
func (s *Service) ListDeadlines(ctx context.Context, caseID common.ID) ([]deadline.Deadline, error) {
	return s.repos.Deadlines.ListByCase(ctx, caseID)
}

// ListReminders returns the case's scheduled reminders.
func (s *Service) ListReminders(ctx context.Context, caseID common.ID) ([]deadline.Reminder, error) {
	return s.repos.Deadlines.ListReminders(ctx, caseID)
}

// ListEscalations returns the escalations recorded for the case.
func (s *Service) ListEscalations(ctx context.Context, caseID common.ID) ([]escalation.Record, error) {
	return s.repos.Escalations.ListByCase(ctx, caseID)
}

// ListWorkflowTasks returns the case's workflow tasks.
func (s *Service) ListWorkflowTasks(ctx context.Context, caseID common.ID) ([]gatekeeper.Task, error) {
	return s.repos.Workflow.ListByCase(ctx, caseID)
}

// ListHealthAlerts returns up to limit health alerts, newest first.
func (s *Service) ListHealthAlerts(ctx context.Context, caseID common.ID, limit int) ([]health.Alert, error) {
	return s.repos.Alerts.ListByCase(ctx, caseID, limit)
}

// CompleteWorkflowTask marks a user-actionable task completed and records the
// docket result when the completed task is the docket check, then re-evaluates
// so the gatekeeper can open the branch the result selects.
func (s *Service) CompleteWorkflowTask(ctx context.Context, caseID common.ID, taskKey, docketResult string) (*EvaluationSummary, error) {
	task, err := s.repos.Workflow.GetByCaseAndKey(ctx, caseID, taskKey)
	if err != nil {
		return nil, err
	}
	if !gatekeeper.CanTransition(task.Status, gatekeeper.StatusCompleted) {
		return nil, apperrors.New(apperrors.ErrCodeWorkflowTransition, "task cannot be completed from its current status").
			WithDetail("status=" + string(task.Status))
	}

	if err := s.repos.Workflow.UpdateStatus(ctx, caseID, taskKey, gatekeeper.StatusCompleted, nil); err != nil {
		return nil, err
	}
	if taskKey == gatekeeper.TaskCheckDocket && docketResult != "" {
		if err := s.repos.Workflow.SetMetadata(ctx, caseID, taskKey, gatekeeper.MetaDocketResult, docketResult); err != nil {
			return nil, err
		}
	}
	return s.evaluate(ctx, caseID, time.Time{}, "workflow_task")
}
