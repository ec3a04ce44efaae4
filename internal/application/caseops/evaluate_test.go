package caseops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caselight/caselight/internal/domain/casefile"
	"github.com/caselight/caselight/internal/domain/dates"
	"github.com/caselight/caselight/internal/domain/deadline"
	"github.com/caselight/caselight/internal/domain/escalation"
	"github.com/caselight/caselight/internal/domain/gatekeeper"
	"github.com/caselight/caselight/internal/domain/risk"
	"github.com/caselight/caselight/internal/infrastructure/messaging/kafka"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	"github.com/caselight/caselight/internal/testutil"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

type fixture struct {
	cases       *fakeCaseRepo
	events      *fakeEventRepo
	deadlines   *fakeDeadlineRepo
	escalations *fakeEscalationRepo
	snapshots   *fakeSnapshotRepo
	alerts      *fakeAlertRepo
	workflow    *fakeWorkflowRepo
	publisher   *fakePublisher
	service     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cases:       newFakeCaseRepo(),
		events:      &fakeEventRepo{},
		deadlines:   newFakeDeadlineRepo(),
		escalations: &fakeEscalationRepo{},
		snapshots:   newFakeSnapshotRepo(),
		alerts:      &fakeAlertRepo{},
		workflow:    newFakeWorkflowRepo(),
		publisher:   &fakePublisher{},
	}

	svc, err := NewService(Repositories{
		Cases:       f.cases,
		Events:      f.events,
		Deadlines:   f.deadlines,
		Escalations: f.escalations,
		Snapshots:   f.snapshots,
		Alerts:      f.alerts,
		Workflow:    f.workflow,
	}, logging.NewNopLogger(), WithPublisher(f.publisher))
	require.NoError(t, err)
	f.service = svc
	return f
}

func (f *fixture) createServedCase(t *testing.T, servedAt time.Time) *casefile.Case {
	t.Helper()
	c, err := f.service.CreateCase(context.Background(), CreateCaseInput{
		Title:       "Smith v. Acme Rentals",
		CourtName:   "Travis County JP 5",
		CauseNumber: "J5-CV-26-001234",
	})
	require.NoError(t, err)
	require.NoError(t, f.cases.UpdateServiceFacts(context.Background(), c.ID, &servedAt, nil))
	return c
}

// Monday 2026-03-02 noon UTC; served the same day the answer window of 14
// days lands on Monday 2026-03-16, which the calculator keeps.
var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func TestEvaluateCase_FullPipeline(t *testing.T) {
	f := newFixture(t)
	c := f.createServedCase(t, testNow)

	// Matches the answer estimate exactly 14 days out at evaluation time.
	f.escalations.rules = []escalation.Rule{{
		DeadlineKey:     deadline.KeyAnswerEstimated,
		Level:           1,
		OffsetDays:      14,
		ConditionType:   escalation.ConditionAlways,
		MessageTemplate: "Your answer is due {due_date}.",
	}}

	summary, err := f.service.EvaluateCase(context.Background(), c.ID, testNow)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.DeadlinesComputed) // answer estimate + docket check
	assert.Equal(t, 1, summary.EscalationsFired)
	assert.Equal(t, 0, summary.EscalationsSuppressed)

	dls, err := f.deadlines.ListByCase(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, dls, 2)

	answer, err := f.deadlines.GetByCaseAndKey(context.Background(), c.ID, deadline.KeyAnswerEstimated)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC), answer.DueAt)
	assert.Len(t, f.deadlines.reminders[answer.ID], 3) // -7d, -3d, -1d all future

	recs, err := f.escalations.ListByCase(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Message, "Monday, March 16, 2026")

	// Day-bucketed snapshot persisted under today's UTC day.
	snap, err := f.snapshots.GetLatest(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, dates.DayString(testNow), snap.Day)
	assert.Equal(t, summary.RiskScore, snap.OverallScore)

	// Nothing activity-wise on a fresh case, so the score is deep in alert
	// territory and a level-3 alert fires.
	assert.True(t, summary.AlertRaised)
	alerts, err := f.alerts.ListByCase(context.Background(), c.ID, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	tasks, err := f.workflow.ListByCase(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 5)

	assert.Contains(t, f.publisher.topics(), kafka.TopicEscalationTriggered)
	assert.Contains(t, f.publisher.topics(), kafka.TopicRiskSnapshotRecorded)
	assert.Contains(t, f.publisher.topics(), kafka.TopicHealthAlertRaised)
	assert.Contains(t, f.publisher.topics(), kafka.TopicCaseEvaluated)
}

func TestEvaluateCase_SecondPassIsIdempotent(t *testing.T) {
	f := newFixture(t)
	c := f.createServedCase(t, testNow)
	f.escalations.rules = []escalation.Rule{{
		DeadlineKey:     deadline.KeyAnswerEstimated,
		Level:           1,
		OffsetDays:      14,
		ConditionType:   escalation.ConditionAlways,
		MessageTemplate: "Your answer is due {due_date}.",
	}}

	_, err := f.service.EvaluateCase(context.Background(), c.ID, testNow)
	require.NoError(t, err)

	second, err := f.service.EvaluateCase(context.Background(), c.ID, testNow.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 0, second.DeadlinesComputed)
	assert.Equal(t, 0, second.EscalationsFired)
	assert.False(t, second.AlertRaised) // same UTC day, deduped

	recs, err := f.escalations.ListByCase(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	// Same UTC day, so the second snapshot overwrote the first row.
	assert.Equal(t, 2, f.snapshots.upserts)
	assert.Len(t, f.snapshots.snapshots, 1)
}

func TestEvaluateCase_InactiveCase(t *testing.T) {
	f := newFixture(t)
	c := f.createServedCase(t, testNow)
	require.NoError(t, f.cases.UpdateStatus(context.Background(), c.ID, casefile.CaseStatusClosed))

	_, err := f.service.EvaluateCase(context.Background(), c.ID, testNow)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCaseArchived, apperrors.GetCode(err))
}

func TestEvaluateCase_UnknownCase(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.EvaluateCase(context.Background(), common.NewID(), testNow)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCaseNotFound, apperrors.GetCode(err))
}

func TestEvaluateCase_NoServiceFactsMeansNoDeadlines(t *testing.T) {
	f := newFixture(t)
	c, err := f.service.CreateCase(context.Background(), CreateCaseInput{Title: "Doe v. Roe"})
	require.NoError(t, err)

	summary, err := f.service.EvaluateCase(context.Background(), c.ID, testNow)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.DeadlinesComputed)
	assert.Equal(t, 0, summary.EscalationsFired)
	// Risk is still scored; a bare case sits in alert territory.
	assert.Equal(t, risk.LevelHigh, summary.RiskLevel)
	assert.True(t, summary.AlertRaised)
}

func TestEvaluateCase_DuplicateEscalationIsBenign(t *testing.T) {
	f := newFixture(t)
	c := f.createServedCase(t, testNow)
	f.escalations.rules = []escalation.Rule{{
		DeadlineKey:     deadline.KeyAnswerEstimated,
		Level:           1,
		OffsetDays:      14,
		ConditionType:   escalation.ConditionAlways,
		MessageTemplate: "Your answer is due {due_date}.",
	}}

	// First pass records the escalation.
	_, err := f.service.EvaluateCase(context.Background(), c.ID, testNow)
	require.NoError(t, err)

	answer, err := f.deadlines.GetByCaseAndKey(context.Background(), c.ID, deadline.KeyAnswerEstimated)
	require.NoError(t, err)
	err = f.escalations.Insert(context.Background(), &escalation.Record{
		CaseID:     c.ID,
		DeadlineID: answer.ID,
		Level:      1,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeEscalationDuplicate, apperrors.GetCode(err))

	// The orchestrator swallows the duplicate and keeps evaluating.
	summary, err := f.service.EvaluateCase(context.Background(), c.ID, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.EscalationsFired)
}

func TestEvaluateCase_UnsafeEscalationMessageIsSuppressed(t *testing.T) {
	f := newFixture(t)
	mock := testutil.NewMockLogger()
	svc, err := NewService(Repositories{
		Cases:       f.cases,
		Events:      f.events,
		Deadlines:   f.deadlines,
		Escalations: f.escalations,
		Snapshots:   f.snapshots,
		Alerts:      f.alerts,
		Workflow:    f.workflow,
	}, mock)
	require.NoError(t, err)
	f.service = svc

	c := f.createServedCase(t, testNow)
	f.escalations.rules = []escalation.Rule{{
		DeadlineKey:     deadline.KeyAnswerEstimated,
		Level:           1,
		OffsetDays:      14,
		ConditionType:   escalation.ConditionAlways,
		MessageTemplate: "Urgent: your answer is due {due_date}.",
	}}

	summary, err := f.service.EvaluateCase(context.Background(), c.ID, testNow)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.EscalationsFired)
	assert.Equal(t, 1, summary.EscalationsSuppressed)
	assert.Equal(t, 1, mock.CountContaining("warn", "suppressed"))

	records, err := f.escalations.ListByCase(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEvaluateCase_PreparedCaseScoresFullMarks(t *testing.T) {
	f := newFixture(t)
	c, err := f.service.CreateCase(context.Background(), CreateCaseInput{Title: "Doe v. Roe"})
	require.NoError(t, err)

	addEvent := func(kind string) {
		require.NoError(t, f.events.Append(context.Background(), &casefile.TaskEvent{
			ID:        common.NewID(),
			CaseID:    c.ID,
			Kind:      kind,
			CreatedAt: testNow.Add(-2 * time.Hour),
		}))
	}
	// Full preparation: enough evidence, an exhibit set with two exhibits,
	// and a trial binder, all recent.
	addEvent(casefile.EventDocumentUploaded)
	addEvent(casefile.EventDocumentUploaded)
	addEvent(casefile.EventDocumentUploaded)
	addEvent(casefile.EventExhibitSetCreated)
	addEvent(casefile.EventExhibitAdded)
	addEvent(casefile.EventExhibitAdded)
	addEvent(casefile.EventTrialBinderCreated)

	summary, err := f.service.EvaluateCase(context.Background(), c.ID, testNow)
	require.NoError(t, err)

	assert.Equal(t, 100, summary.RiskScore)
	assert.Equal(t, risk.LevelLow, summary.RiskLevel)
	assert.False(t, summary.AlertRaised)

	snap := mustLatest(t, f, c.ID)
	assert.Equal(t, 0, snap.EvidenceRisk)
	assert.Equal(t, 0, snap.ActivityRisk)
}

func TestEvaluateCase_MissingTrialBinderCostsItsPoints(t *testing.T) {
	f := newFixture(t)
	c, err := f.service.CreateCase(context.Background(), CreateCaseInput{Title: "Doe v. Roe"})
	require.NoError(t, err)

	for _, kind := range []string{
		casefile.EventDocumentUploaded,
		casefile.EventDocumentUploaded,
		casefile.EventDocumentUploaded,
		casefile.EventExhibitSetCreated,
		casefile.EventExhibitAdded,
		casefile.EventExhibitAdded,
	} {
		require.NoError(t, f.events.Append(context.Background(), &casefile.TaskEvent{
			ID:        common.NewID(),
			CaseID:    c.ID,
			Kind:      kind,
			CreatedAt: testNow.Add(-time.Hour),
		}))
	}

	summary, err := f.service.EvaluateCase(context.Background(), c.ID, testNow)
	require.NoError(t, err)

	assert.Equal(t, 95, summary.RiskScore)
	assert.Equal(t, 5, mustLatest(t, f, c.ID).EvidenceRisk)
}

func TestConfirmAnswerDeadline_SupersedesEstimate(t *testing.T) {
	f := newFixture(t)
	c := f.createServedCase(t, testNow)

	_, err := f.service.EvaluateCase(context.Background(), c.ID, testNow)
	require.NoError(t, err)
	_, err = f.deadlines.GetByCaseAndKey(context.Background(), c.ID, deadline.KeyAnswerEstimated)
	require.NoError(t, err)

	confirmedDue := time.Now().UTC().AddDate(0, 0, 10)
	summary, err := f.service.ConfirmAnswerDeadline(context.Background(), c.ID, confirmedDue)
	require.NoError(t, err)
	require.NotNil(t, summary)

	// Estimate gone, confirmed present, and it does not come back on the
	// next evaluation.
	_, err = f.deadlines.GetByCaseAndKey(context.Background(), c.ID, deadline.KeyAnswerEstimated)
	assert.Equal(t, apperrors.ErrCodeDeadlineNotFound, apperrors.GetCode(err))

	confirmed, err := f.deadlines.GetByCaseAndKey(context.Background(), c.ID, deadline.KeyAnswerConfirmed)
	require.NoError(t, err)
	assert.Equal(t, deadline.SourceUserConfirmed, confirmed.Source)

	// The gatekeeper unlocked the waiting task with the confirmed due date.
	wait, err := f.workflow.GetByCaseAndKey(context.Background(), c.ID, gatekeeper.TaskWaitForAnswer)
	require.NoError(t, err)
	assert.Equal(t, gatekeeper.StatusTodo, wait.Status)
	require.NotNil(t, wait.DueAt)
	assert.True(t, wait.DueAt.Equal(confirmed.DueAt))

	assert.Contains(t, f.publisher.topics(), kafka.TopicDeadlineConfirmed)

	_, err = f.service.EvaluateCase(context.Background(), c.ID, time.Now().UTC())
	require.NoError(t, err)
	_, err = f.deadlines.GetByCaseAndKey(context.Background(), c.ID, deadline.KeyAnswerEstimated)
	assert.Equal(t, apperrors.ErrCodeDeadlineNotFound, apperrors.GetCode(err))
}

func TestConfirmAnswerDeadline_Validation(t *testing.T) {
	f := newFixture(t)
	c := f.createServedCase(t, testNow)

	_, err := f.service.ConfirmAnswerDeadline(context.Background(), c.ID, time.Time{})
	assert.Equal(t, apperrors.ErrCodeDeadlineDateInvalid, apperrors.GetCode(err))

	_, err = f.service.ConfirmAnswerDeadline(context.Background(), common.NewID(), time.Now())
	assert.Equal(t, apperrors.ErrCodeCaseNotFound, apperrors.GetCode(err))
}

func TestRecordDiscoveryRequest_OverdueResponseDrivesResponseRisk(t *testing.T) {
	f := newFixture(t)
	c, err := f.service.CreateCase(context.Background(), CreateCaseInput{Title: "Doe v. Roe"})
	require.NoError(t, err)

	due := time.Now().UTC().AddDate(0, 0, -2)
	_, err = f.service.RecordDiscoveryRequest(context.Background(), c.ID, "rog_set_1", due)
	require.NoError(t, err)

	d, err := f.deadlines.GetByCaseAndKey(context.Background(), c.ID, deadline.DiscoveryKeyPrefix+"_rog_set_1")
	require.NoError(t, err)
	assert.True(t, d.IsDiscovery())
	assert.Equal(t, deadline.SourceUserConfirmed, d.Source)

	// Overdue and unanswered puts the response sub-score at its ceiling; the
	// generic deadline sub-score never sees the discovery deadline.
	snap := mustLatest(t, f, c.ID)
	assert.Equal(t, 50, snap.ResponseRisk)
	assert.Equal(t, 0, snap.DeadlineRisk)

	assert.Contains(t, f.publisher.topics(), kafka.TopicDeadlineConfirmed)

	// A received response clears the sub-score on the next evaluation.
	_, err = f.service.RecordTaskEvent(context.Background(), c.ID, casefile.EventDiscoveryResponseReceived)
	require.NoError(t, err)
	assert.Equal(t, 0, mustLatest(t, f, c.ID).ResponseRisk)
}

func TestRecordDiscoveryRequest_Validation(t *testing.T) {
	f := newFixture(t)
	c := f.createServedCase(t, testNow)

	_, err := f.service.RecordDiscoveryRequest(context.Background(), c.ID, "rog_set_1", time.Time{})
	assert.Equal(t, apperrors.ErrCodeDeadlineDateInvalid, apperrors.GetCode(err))

	_, err = f.service.RecordDiscoveryRequest(context.Background(), common.NewID(), "rog_set_1", time.Now())
	assert.Equal(t, apperrors.ErrCodeCaseNotFound, apperrors.GetCode(err))
}

func TestRecordTaskEvent_AppendsAndReevaluates(t *testing.T) {
	f := newFixture(t)
	c := f.createServedCase(t, testNow)

	summary, err := f.service.RecordTaskEvent(context.Background(), c.ID, casefile.EventDocketChecked)
	require.NoError(t, err)
	require.NotNil(t, summary)

	events, err := f.events.ListByCase(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, casefile.EventDocketChecked, events[0].Kind)

	// Fresh activity clears the no-activity penalty.
	assert.Equal(t, 0, mustLatest(t, f, c.ID).ActivityRisk)

	_, err = f.service.RecordTaskEvent(context.Background(), c.ID, "")
	assert.Equal(t, apperrors.ErrCodeTaskEventInvalid, apperrors.GetCode(err))
}

func TestCompleteWorkflowTask_DocketBranch(t *testing.T) {
	f := newFixture(t)
	c := f.createServedCase(t, testNow)

	// Drive the workflow to the point where the docket check is open: confirm
	// a deadline already in the past.
	past := time.Now().UTC().AddDate(0, 0, -3)
	_, err := f.service.ConfirmAnswerDeadline(context.Background(), c.ID, past)
	require.NoError(t, err)

	check, err := f.workflow.GetByCaseAndKey(context.Background(), c.ID, gatekeeper.TaskCheckDocket)
	require.NoError(t, err)
	require.Equal(t, gatekeeper.StatusTodo, check.Status)

	// The unlocked docket check carries the docket-check deadline's due date.
	checkDeadline, err := f.deadlines.GetByCaseAndKey(context.Background(), c.ID, deadline.KeyCheckDocket)
	require.NoError(t, err)
	require.NotNil(t, check.DueAt)
	assert.True(t, check.DueAt.Equal(checkDeadline.DueAt))

	_, err = f.service.CompleteWorkflowTask(context.Background(), c.ID, gatekeeper.TaskCheckDocket, gatekeeper.DocketResultNoAnswer)
	require.NoError(t, err)

	packet, err := f.workflow.GetByCaseAndKey(context.Background(), c.ID, gatekeeper.TaskDefaultPacketPrep)
	require.NoError(t, err)
	assert.Equal(t, gatekeeper.StatusTodo, packet.Status)

	// The alternative branch stays locked.
	upload, err := f.workflow.GetByCaseAndKey(context.Background(), c.ID, gatekeeper.TaskUploadAnswer)
	require.NoError(t, err)
	assert.Equal(t, gatekeeper.StatusLocked, upload.Status)
}

func TestCompleteWorkflowTask_InvalidTransition(t *testing.T) {
	f := newFixture(t)
	c := f.createServedCase(t, testNow)
	_, err := f.service.EvaluateCase(context.Background(), c.ID, testNow)
	require.NoError(t, err)

	// discovery_starter_pack is still locked; locked tasks cannot complete.
	_, err = f.service.CompleteWorkflowTask(context.Background(), c.ID, gatekeeper.TaskDiscoveryStarterPack, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeWorkflowTransition, apperrors.GetCode(err))
}

func TestGetRiskReport_WithoutCache(t *testing.T) {
	f := newFixture(t)
	c := f.createServedCase(t, testNow)

	_, err := f.service.GetRiskReport(context.Background(), c.ID)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))

	_, err = f.service.EvaluateCase(context.Background(), c.ID, testNow)
	require.NoError(t, err)

	snap, err := f.service.GetRiskReport(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, dates.DayString(testNow), snap.Day)
}

func TestGetRiskReport_UnsafeExplanationIsWithheld(t *testing.T) {
	f := newFixture(t)
	mock := testutil.NewMockLogger()
	svc, err := NewService(Repositories{
		Cases:       f.cases,
		Events:      f.events,
		Deadlines:   f.deadlines,
		Escalations: f.escalations,
		Snapshots:   f.snapshots,
		Alerts:      f.alerts,
		Workflow:    f.workflow,
	}, mock)
	require.NoError(t, err)
	f.service = svc

	c := f.createServedCase(t, testNow)
	require.NoError(t, f.snapshots.Upsert(context.Background(), &risk.Snapshot{
		CaseID:       c.ID,
		Day:          dates.DayString(testNow),
		OverallScore: 55,
		Level:        risk.LevelElevated,
		Breakdown: []risk.BreakdownItem{
			{Rule: "deadline_due_soon", Points: 20, Detail: "A deadline falls due within 3 days."},
			{Rule: "activity_stale", Points: 25, Detail: "No recent activity; you are losing ground."},
		},
		EvaluatedAt: testNow,
	}))

	snap, err := f.service.GetRiskReport(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, snap.Breakdown, 1)
	assert.Equal(t, "deadline_due_soon", snap.Breakdown[0].Rule)
	assert.Equal(t, 1, mock.CountContaining("warn", "suppressed"))

	// Only the read is gated; the stored snapshot keeps both entries.
	stored, err := f.snapshots.GetLatest(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Breakdown, 2)
}

func TestUpdateServiceFacts_TriggersEvaluation(t *testing.T) {
	f := newFixture(t)
	c, err := f.service.CreateCase(context.Background(), CreateCaseInput{Title: "Doe v. Roe"})
	require.NoError(t, err)

	servedAt := time.Now().UTC().AddDate(0, 0, -1)
	summary, err := f.service.UpdateServiceFacts(context.Background(), c.ID, &servedAt, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.DeadlinesComputed)

	_, err = f.service.UpdateServiceFacts(context.Background(), c.ID, nil, nil)
	assert.Equal(t, apperrors.ErrCodeServiceFactsMissing, apperrors.GetCode(err))
}

func mustLatest(t *testing.T, f *fixture, caseID common.ID) *risk.Snapshot {
	t.Helper()
	snap, err := f.snapshots.GetLatest(context.Background(), caseID)
	require.NoError(t, err)
	return snap
}
