package caseops

import (
	"context"
	"time"

	"github.com/caselight/caselight/internal/domain/casefile"
	"github.com/caselight/caselight/internal/domain/dates"
	"github.com/caselight/caselight/internal/domain/deadline"
	"github.com/caselight/caselight/internal/domain/escalation"
	"github.com/caselight/caselight/internal/domain/gatekeeper"
	"github.com/caselight/caselight/internal/domain/health"
	"github.com/caselight/caselight/internal/domain/risk"
	"github.com/caselight/caselight/internal/infrastructure/messaging/kafka"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

// EvaluationSummary reports what one evaluation pass did.
type EvaluationSummary struct {
	CaseID                common.ID  `json:"case_id"`
	EvaluatedAt           time.Time  `json:"evaluated_at"`
	DeadlinesComputed     int        `json:"deadlines_computed"`
	EscalationsFired      int        `json:"escalations_fired"`
	EscalationsSuppressed int        `json:"escalations_suppressed"`
	RiskScore             int        `json:"risk_score"`
	RiskLevel             risk.Level `json:"risk_level"`
	AlertRaised           bool       `json:"alert_raised"`
	WorkflowActions       int        `json:"workflow_actions"`
}

// EvaluateCase runs the full evaluation pipeline for one case: deadline
// derivation, reminder rescheduling, escalations, risk scoring, health
// alerting, and workflow gatekeeping.  A zero now means time.Now; passing an
// explicit instant makes the whole pass reproducible.
func (s *Service) EvaluateCase(ctx context.Context, caseID common.ID, now time.Time) (*EvaluationSummary, error) {
	return s.evaluate(ctx, caseID, now, "manual")
}

func (s *Service) evaluate(ctx context.Context, caseID common.ID, now time.Time, trigger string) (*EvaluationSummary, error) {
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	started := time.Now()

	summary, err := s.runEvaluation(ctx, caseID, now)

	if s.metrics != nil {
		prometheus.RecordEvaluation(s.metrics, trigger, err, time.Since(started))
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.TopicCaseEvaluated, "case.evaluated", kafka.CaseEvaluatedPayload{
		CaseID:            string(caseID),
		Trigger:           trigger,
		DeadlinesComputed: summary.DeadlinesComputed,
		EscalationsFired:  summary.EscalationsFired,
		RiskScore:         summary.RiskScore,
		RiskLevel:         string(summary.RiskLevel),
		EvaluatedAt:       now,
	})

	s.logger.Info("case evaluated",
		logging.String("case_id", string(caseID)),
		logging.String("trigger", trigger),
		logging.Int("deadlines", summary.DeadlinesComputed),
		logging.Int("escalations", summary.EscalationsFired),
		logging.Int("risk_score", summary.RiskScore))
	return summary, nil
}

func (s *Service) runEvaluation(ctx context.Context, caseID common.ID, now time.Time) (*EvaluationSummary, error) {
	c, err := s.repos.Cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !c.IsActive() {
		return nil, apperrors.New(apperrors.ErrCodeCaseArchived, "case is not active").
			WithDetail("status=" + string(c.Status))
	}

	summary := &EvaluationSummary{CaseID: caseID, EvaluatedAt: now}

	deadlines, err := s.syncDeadlines(ctx, c, now, summary)
	if err != nil {
		return nil, err
	}

	events, err := s.repos.Events.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if err := s.runEscalations(ctx, deadlines, events, now, summary); err != nil {
		return nil, err
	}

	result, err := s.runRiskScoring(ctx, caseID, deadlines, events, now, summary)
	if err != nil {
		return nil, err
	}

	if err := s.runHealthAlert(ctx, caseID, result.OverallScore, now, summary); err != nil {
		return nil, err
	}

	if err := s.runGatekeeper(ctx, caseID, deadlines, now, summary); err != nil {
		return nil, err
	}

	return summary, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Deadlines and reminders
// ─────────────────────────────────────────────────────────────────────────────

// syncDeadlines derives the calculator's drafts from the case's service facts
// and persists the ones that are missing or whose due date moved.  A changed
// deadline gets its reminder set rebuilt wholesale.  The system estimate is
// never re-created once the user has confirmed the real date.
func (s *Service) syncDeadlines(ctx context.Context, c *casefile.Case, now time.Time, summary *EvaluationSummary) ([]deadline.Deadline, error) {
	existing, err := s.repos.Deadlines.ListByCase(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]deadline.Deadline, len(existing))
	for _, d := range existing {
		byKey[d.Key] = d
	}
	_, answerConfirmed := byKey[deadline.KeyAnswerConfirmed]

	facts := deadline.ServiceFacts{ServedAt: c.ServedAt, ReturnFiledAt: c.ReturnFiledAt}
	for _, draft := range s.calculator.Calculate(facts) {
		if draft.Key == deadline.KeyAnswerEstimated && answerConfirmed {
			continue
		}
		if prev, ok := byKey[draft.Key]; ok && prev.DueAt.Equal(draft.DueAt) {
			continue
		}

		d := &deadline.Deadline{
			ID:          common.NewID(),
			CaseID:      c.ID,
			Key:         draft.Key,
			DueAt:       draft.DueAt,
			Source:      draft.Source,
			Rationale:   draft.Rationale,
			CalcVersion: draft.CalcVersion,
		}
		if err := s.repos.Deadlines.Upsert(ctx, d); err != nil {
			return nil, err
		}
		if err := s.replaceReminders(ctx, d, now); err != nil {
			return nil, err
		}

		summary.DeadlinesComputed++
		if s.metrics != nil {
			s.metrics.DeadlinesComputedTotal.WithLabelValues(s.calculator.RuleSet(), d.Key).Inc()
		}
	}

	if summary.DeadlinesComputed == 0 {
		return existing, nil
	}
	return s.repos.Deadlines.ListByCase(ctx, c.ID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Escalations
// ─────────────────────────────────────────────────────────────────────────────

func (s *Service) runEscalations(ctx context.Context, deadlines []deadline.Deadline, events []casefile.TaskEvent, now time.Time, summary *EvaluationSummary) error {
	if len(deadlines) == 0 {
		return nil
	}

	rules, err := s.repos.Escalations.ListRules(ctx)
	if err != nil {
		return err
	}
	caseID := deadlines[0].CaseID
	existing, err := s.repos.Escalations.ListExistingByCase(ctx, caseID)
	if err != nil {
		return err
	}

	actions, suppressions := s.escalator.Evaluate(deadlines, rules, existing, events, now)

	for _, sup := range suppressions {
		summary.EscalationsSuppressed++
		s.logger.Warn("escalation message suppressed by safety filter",
			logging.String("case_id", string(sup.CaseID)),
			logging.String("deadline_id", string(sup.DeadlineID)),
			logging.Int("level", sup.Level),
			logging.String("blocked_phrase", sup.BlockedPhrase))
		if s.metrics != nil {
			prometheus.RecordSuppression(s.metrics, "escalation")
		}
	}

	for _, a := range actions {
		rec := &escalation.Record{
			ID:          common.NewID(),
			CaseID:      a.CaseID,
			DeadlineID:  a.DeadlineID,
			Level:       a.Level,
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt,
		}
		err := s.repos.Escalations.Insert(ctx, rec)
		if apperrors.IsCode(err, apperrors.ErrCodeEscalationDuplicate) {
			// Another process fired this level between our read and write.
			if s.metrics != nil {
				s.metrics.EscalationsDuplicateTotal.WithLabelValues(levelLabel(a.Level)).Inc()
			}
			continue
		}
		if err != nil {
			return err
		}

		summary.EscalationsFired++
		if s.metrics != nil {
			s.metrics.EscalationsEmittedTotal.WithLabelValues(levelLabel(a.Level)).Inc()
		}
		s.publish(ctx, kafka.TopicEscalationTriggered, "escalation.triggered", kafka.EscalationTriggeredPayload{
			CaseID:      string(a.CaseID),
			DeadlineID:  string(a.DeadlineID),
			Level:       a.Level,
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt,
		})
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Risk scoring
// ─────────────────────────────────────────────────────────────────────────────

// runRiskScoring scores the case and upserts the day-bucketed snapshot.  The
// cached latest report is dropped so the next read sees the fresh row.
func (s *Service) runRiskScoring(ctx context.Context, caseID common.ID, deadlines []deadline.Deadline, events []casefile.TaskEvent, now time.Time, summary *EvaluationSummary) (risk.Result, error) {
	input := buildRiskInput(caseID, deadlines, events)
	result := s.scorer.Score(input, now)

	snapshot := &risk.Snapshot{
		CaseID:       caseID,
		Day:          dates.DayString(now),
		OverallScore: result.OverallScore,
		DeadlineRisk: result.DeadlineRisk,
		ResponseRisk: result.ResponseRisk,
		EvidenceRisk: result.EvidenceRisk,
		ActivityRisk: result.ActivityRisk,
		Level:        result.Level,
		Breakdown:    result.Breakdown,
		EvaluatedAt:  now,
	}
	if err := s.repos.Snapshots.Upsert(ctx, snapshot); err != nil {
		return result, err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, riskReportCacheKey(caseID)); err != nil {
			s.logger.Warn("failed to invalidate risk report cache",
				logging.String("case_id", string(caseID)),
				logging.Err(err))
		}
	}

	summary.RiskScore = result.OverallScore
	summary.RiskLevel = result.Level
	if s.metrics != nil {
		prometheus.RecordRiskScore(s.metrics, string(result.Level), result.OverallScore)
	}
	s.publish(ctx, kafka.TopicRiskSnapshotRecorded, "risk.snapshot_recorded", kafka.RiskSnapshotRecordedPayload{
		CaseID:       string(caseID),
		Day:          snapshot.Day,
		OverallScore: result.OverallScore,
		Level:        string(result.Level),
		EvaluatedAt:  now,
	})
	return result, nil
}

// buildRiskInput splits deadlines into the generic and discovery sets and
// derives the evidence and preparation counts from the activity log.  A
// discovery deadline counts as answered once a response event postdates its
// creation.
func buildRiskInput(caseID common.ID, deadlines []deadline.Deadline, events []casefile.TaskEvent) risk.Input {
	input := risk.Input{CaseID: caseID, Events: events}

	for _, d := range deadlines {
		if !d.IsDiscovery() {
			input.Deadlines = append(input.Deadlines, d)
			continue
		}
		hasResponse := false
		for _, ev := range events {
			if ev.Kind == casefile.EventDiscoveryResponseReceived && !ev.CreatedAt.Before(d.CreatedAt) {
				hasResponse = true
				break
			}
		}
		input.DiscoveryDeadlines = append(input.DiscoveryDeadlines, risk.DiscoveryDeadline{
			Deadline:    d,
			HasResponse: hasResponse,
		})
	}

	for _, ev := range events {
		switch ev.Kind {
		case casefile.EventDocumentUploaded:
			input.EvidenceCount++
		case casefile.EventExhibitSetCreated:
			input.ExhibitSetCount++
		case casefile.EventExhibitAdded:
			input.ExhibitCount++
		case casefile.EventTrialBinderCreated:
			input.TrialBinderCount++
		}
	}
	return input
}

// ─────────────────────────────────────────────────────────────────────────────
// Health alert
// ─────────────────────────────────────────────────────────────────────────────

// runHealthAlert applies the two-tier per-day dedup: an existence check first,
// with the unique (case_id, day) index catching the race the check misses.
func (s *Service) runHealthAlert(ctx context.Context, caseID common.ID, overallScore int, now time.Time, summary *EvaluationSummary) error {
	action, suppression := s.healthEval.Evaluate(caseID, overallScore, now)
	if suppression != nil {
		s.logger.Warn("health alert suppressed by safety filter",
			logging.String("case_id", string(caseID)),
			logging.Int("level", suppression.Level),
			logging.String("blocked_phrase", suppression.BlockedPhrase))
		if s.metrics != nil {
			prometheus.RecordSuppression(s.metrics, "health")
		}
		return nil
	}
	if action == nil {
		return nil
	}

	day := dates.DayString(now)
	exists, err := s.repos.Alerts.ExistsForDay(ctx, caseID, day)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	alert := &health.Alert{
		ID:        common.NewID(),
		CaseID:    caseID,
		Day:       day,
		Level:     action.Level,
		Message:   action.Message,
		CreatedAt: now,
	}
	err = s.repos.Alerts.Insert(ctx, alert)
	if apperrors.IsCode(err, apperrors.ErrCodeAlertDuplicate) {
		return nil
	}
	if err != nil {
		return err
	}

	summary.AlertRaised = true
	if s.metrics != nil {
		s.metrics.HealthAlertsEmittedTotal.WithLabelValues(levelLabel(action.Level)).Inc()
	}
	s.publish(ctx, kafka.TopicHealthAlertRaised, "health.alert_raised", kafka.HealthAlertRaisedPayload{
		CaseID:  string(caseID),
		Day:     day,
		Level:   action.Level,
		Message: action.Message,
	})
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Workflow gatekeeping
// ─────────────────────────────────────────────────────────────────────────────

// runGatekeeper applies the engine's actions and re-evaluates until the
// workflow settles: an unlock this pass can enable a completion the next.
// The chain is at most as long as the workflow, so the cap is never hit in
// practice.
func (s *Service) runGatekeeper(ctx context.Context, caseID common.ID, deadlines []deadline.Deadline, now time.Time, summary *EvaluationSummary) error {
	tasks, err := s.repos.Workflow.ListByCase(ctx, caseID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		if err := s.seedWorkflow(ctx, caseID); err != nil {
			return err
		}
		if tasks, err = s.repos.Workflow.ListByCase(ctx, caseID); err != nil {
			return err
		}
	}

	for pass := 0; pass < 5; pass++ {
		actions := s.gatekeeper.Evaluate(tasks, deadlines, now)
		if len(actions) == 0 {
			return nil
		}
		if err := s.applyWorkflowActions(ctx, caseID, actions, summary); err != nil {
			return err
		}
		if tasks, err = s.repos.Workflow.ListByCase(ctx, caseID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) applyWorkflowActions(ctx context.Context, caseID common.ID, actions []gatekeeper.Action, summary *EvaluationSummary) error {
	for _, action := range actions {
		var status gatekeeper.Status
		switch action.Type {
		case gatekeeper.ActionUnlockTask:
			status = gatekeeper.StatusTodo
		case gatekeeper.ActionCompleteTask:
			status = gatekeeper.StatusCompleted
		default:
			continue
		}

		if err := s.repos.Workflow.UpdateStatus(ctx, caseID, action.TaskKey, status, action.DueAt); err != nil {
			return err
		}

		summary.WorkflowActions++
		if s.metrics != nil {
			s.metrics.WorkflowTransitionsTotal.WithLabelValues(action.TaskKey, string(action.Type)).Inc()
		}
		s.publish(ctx, kafka.TopicWorkflowAdvanced, "workflow.advanced", kafka.WorkflowAdvancedPayload{
			CaseID:  string(caseID),
			TaskKey: action.TaskKey,
			Action:  string(action.Type),
			Status:  string(status),
		})
	}
	return nil
}

func levelLabel(level int) string {
	switch level {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	case 4:
		return "4"
	default:
		return "other"
	}
}
