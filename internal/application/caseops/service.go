// Package caseops is the application layer in front of the rule engines: it
// loads case facts, runs the pure engines, and owns everything the engines
// deliberately do not — IDs, timestamps, persistence, deduplication, event
// publishing, metrics, and suppression logging.
package caseops

import (
	"context"
	"time"

	"github.com/caselight/caselight/internal/domain/casefile"
	"github.com/caselight/caselight/internal/domain/deadline"
	"github.com/caselight/caselight/internal/domain/escalation"
	"github.com/caselight/caselight/internal/domain/gatekeeper"
	"github.com/caselight/caselight/internal/domain/health"
	"github.com/caselight/caselight/internal/domain/risk"
	"github.com/caselight/caselight/internal/domain/safety"
	"github.com/caselight/caselight/internal/infrastructure/database/redis"
	"github.com/caselight/caselight/internal/infrastructure/messaging/kafka"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

// EventPublisher is the slice of the Kafka producer the service uses.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, eventType string, payload interface{}) error
}

// Repositories bundles every persistence dependency of the service.
type Repositories struct {
	Cases       casefile.CaseRepository
	Events      casefile.TaskEventRepository
	Deadlines   deadline.Repository
	Escalations escalation.Repository
	Snapshots   risk.SnapshotRepository
	Alerts      health.AlertRepository
	Workflow    gatekeeper.Repository
}

// Option customizes optional service collaborators.
type Option func(*Service)

// WithCache attaches a cache for the risk-report read path.
func WithCache(cache redis.Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithPublisher attaches the event publisher.  Without one the service still
// evaluates; it just publishes nothing.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics attaches the application metrics.
func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service orchestrates case evaluation.
type Service struct {
	repos Repositories

	calculator *deadline.Calculator
	scheduler  *deadline.Scheduler
	escalator  *escalation.Engine
	scorer     *risk.Scorer
	healthEval *health.Evaluator
	gatekeeper *gatekeeper.Engine

	explanations *safety.Filter

	cache     redis.Cache
	publisher EventPublisher
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
}

// NewService wires the engines and repositories into an orchestrator.
func NewService(repos Repositories, logger logging.Logger, opts ...Option) (*Service, error) {
	calc, err := deadline.NewCalculator(deadline.RuleSetTXV1)
	if err != nil {
		return nil, err
	}

	s := &Service{
		repos:      repos,
		calculator: calc,
		scheduler:  deadline.NewScheduler(),
		escalator:  escalation.NewEngine(safety.ReminderFilter()),
		scorer:     risk.NewScorer(),
		healthEval: health.NewEvaluator(safety.ReminderFilter()),
		gatekeeper: gatekeeper.NewEngine(),

		explanations: safety.ExplanationFilter(),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Case lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// CreateCaseInput carries the fields a new case needs.
type CreateCaseInput struct {
	Title       string
	CourtName   string
	CauseNumber string
}

// CreateCase persists a new active case and seeds its workflow tasks, all
// locked.  The gatekeeper unlocks them as facts arrive.
func (s *Service) CreateCase(ctx context.Context, in CreateCaseInput) (*casefile.Case, error) {
	if in.Title == "" {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "case title required")
	}

	c := &casefile.Case{
		ID:          common.NewID(),
		Title:       in.Title,
		CourtName:   in.CourtName,
		CauseNumber: in.CauseNumber,
		Status:      casefile.CaseStatusActive,
	}
	if err := s.repos.Cases.Create(ctx, c); err != nil {
		return nil, err
	}

	if err := s.seedWorkflow(ctx, c.ID); err != nil {
		// The case exists; a later evaluation re-seeds missing tasks.
		s.logger.Warn("failed to seed workflow tasks",
			logging.String("case_id", string(c.ID)),
			logging.Err(err))
	}

	s.logger.Info("case created",
		logging.String("case_id", string(c.ID)),
		logging.String("title", c.Title))
	return c, nil
}

// GetCase fetches one case by ID.
func (s *Service) GetCase(ctx context.Context, caseID common.ID) (*casefile.Case, error) {
	return s.repos.Cases.GetByID(ctx, caseID)
}

// ListCases lists cases with the given query options.
func (s *Service) ListCases(ctx context.Context, opts ...casefile.QueryOption) ([]*casefile.Case, int64, error) {
	return s.repos.Cases.List(ctx, opts...)
}

// UpdateServiceFacts records the service facts and re-evaluates the case so
// the calculator can derive the answer-deadline estimates from them.
func (s *Service) UpdateServiceFacts(ctx context.Context, caseID common.ID, servedAt, returnFiledAt *time.Time) (*EvaluationSummary, error) {
	if servedAt == nil && returnFiledAt == nil {
		return nil, apperrors.New(apperrors.ErrCodeServiceFactsMissing, "at least one service fact required")
	}
	if err := s.repos.Cases.UpdateServiceFacts(ctx, caseID, servedAt, returnFiledAt); err != nil {
		return nil, err
	}
	return s.evaluate(ctx, caseID, time.Time{}, "service_facts")
}

// RecordTaskEvent appends an activity-log entry and re-evaluates: a new event
// can clear escalation conditions and shifts the activity sub-score.
func (s *Service) RecordTaskEvent(ctx context.Context, caseID common.ID, kind string) (*EvaluationSummary, error) {
	if kind == "" {
		return nil, apperrors.New(apperrors.ErrCodeTaskEventInvalid, "event kind required")
	}

	event := &casefile.TaskEvent{
		ID:        common.NewID(),
		CaseID:    caseID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repos.Events.Append(ctx, event); err != nil {
		return nil, err
	}
	return s.evaluate(ctx, caseID, time.Time{}, "task_event")
}

// ConfirmAnswerDeadline writes the user-confirmed answer deadline from court
// papers, deletes the superseded system estimate, reschedules reminders, and
// re-evaluates so the gatekeeper can unlock the waiting task.
func (s *Service) ConfirmAnswerDeadline(ctx context.Context, caseID common.ID, dueAt time.Time) (*EvaluationSummary, error) {
	if dueAt.IsZero() {
		return nil, apperrors.New(apperrors.ErrCodeDeadlineDateInvalid, "due date required")
	}
	if _, err := s.repos.Cases.GetByID(ctx, caseID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	confirmed := &deadline.Deadline{
		ID:          common.NewID(),
		CaseID:      caseID,
		Key:         deadline.KeyAnswerConfirmed,
		DueAt:       dueAt.UTC(),
		Source:      deadline.SourceUserConfirmed,
		Rationale:   "Answer deadline confirmed by the user from court papers.",
		CalcVersion: s.calculator.RuleSet(),
	}
	if err := s.repos.Deadlines.Upsert(ctx, confirmed); err != nil {
		return nil, err
	}

	// The confirmed date supersedes the estimate entirely; keeping both would
	// double every reminder and escalation.
	if err := s.repos.Deadlines.DeleteByCaseAndKey(ctx, caseID, deadline.KeyAnswerEstimated); err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}

	if err := s.replaceReminders(ctx, confirmed, now); err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.TopicDeadlineConfirmed, "deadline.confirmed", kafka.DeadlineConfirmedPayload{
		CaseID:      string(caseID),
		DeadlineKey: deadline.KeyAnswerConfirmed,
		DueAt:       confirmed.DueAt,
		ConfirmedAt: now,
	})

	return s.evaluate(ctx, caseID, now, "deadline_confirmed")
}

// RecordDiscoveryRequest records that a set of discovery requests was served
// on the user and writes the response deadline for it.  Distinct labels keep
// concurrent request sets apart; re-recording a label moves its due date.
// The deadline's key carries the discovery prefix, so the scorer tracks the
// response separately from the generic deadline risk.
func (s *Service) RecordDiscoveryRequest(ctx context.Context, caseID common.ID, label string, dueAt time.Time) (*EvaluationSummary, error) {
	if dueAt.IsZero() {
		return nil, apperrors.New(apperrors.ErrCodeDeadlineDateInvalid, "due date required")
	}
	if _, err := s.repos.Cases.GetByID(ctx, caseID); err != nil {
		return nil, err
	}

	key := deadline.DiscoveryKeyPrefix
	if label != "" {
		key += "_" + label
	}

	now := time.Now().UTC()
	d := &deadline.Deadline{
		ID:          common.NewID(),
		CaseID:      caseID,
		Key:         key,
		DueAt:       dueAt.UTC(),
		Source:      deadline.SourceUserConfirmed,
		Rationale:   "Discovery response deadline recorded from the served requests.",
		CalcVersion: s.calculator.RuleSet(),
	}
	if err := s.repos.Deadlines.Upsert(ctx, d); err != nil {
		return nil, err
	}

	if err := s.replaceReminders(ctx, d, now); err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.TopicDeadlineConfirmed, "deadline.confirmed", kafka.DeadlineConfirmedPayload{
		CaseID:      string(caseID),
		DeadlineKey: key,
		DueAt:       d.DueAt,
		ConfirmedAt: now,
	})

	return s.evaluate(ctx, caseID, now, "discovery_request")
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals shared by the write paths
// ─────────────────────────────────────────────────────────────────────────────

// seedWorkflow creates the five fixed workflow tasks, all locked.
func (s *Service) seedWorkflow(ctx context.Context, caseID common.ID) error {
	keys := []string{
		gatekeeper.TaskWaitForAnswer,
		gatekeeper.TaskCheckDocket,
		gatekeeper.TaskDefaultPacketPrep,
		gatekeeper.TaskUploadAnswer,
		gatekeeper.TaskDiscoveryStarterPack,
	}
	tasks := make([]gatekeeper.Task, 0, len(keys))
	for _, key := range keys {
		tasks = append(tasks, gatekeeper.Task{
			ID:      common.NewID(),
			CaseID:  caseID,
			TaskKey: key,
			Status:  gatekeeper.StatusLocked,
		})
	}
	err := s.repos.Workflow.CreateAll(ctx, tasks)
	if apperrors.IsCode(err, apperrors.ErrCodeConflict) {
		return nil
	}
	return err
}

// replaceReminders recomputes and rewrites the reminder set for one deadline.
func (s *Service) replaceReminders(ctx context.Context, d *deadline.Deadline, now time.Time) error {
	instants := s.scheduler.RemindersFor(d.DueAt, now)
	reminders := make([]deadline.Reminder, 0, len(instants))
	for _, at := range instants {
		reminders = append(reminders, deadline.Reminder{
			ID:         common.NewID(),
			CaseID:     d.CaseID,
			DeadlineID: d.ID,
			RemindAt:   at,
		})
	}
	if err := s.repos.Deadlines.ReplaceReminders(ctx, d.ID, reminders); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RemindersScheduledTotal.WithLabelValues(d.Key).Add(float64(len(reminders)))
	}
	return nil
}

// publish sends an event and logs failures without failing the caller: the
// database is the source of truth, events are best-effort notification.
func (s *Service) publish(ctx context.Context, topic, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishEvent(ctx, topic, eventType, payload)
	if s.metrics != nil {
		prometheus.RecordEventPublished(s.metrics, topic, err)
	}
	if err != nil {
		s.logger.Error("failed to publish event",
			logging.String("topic", topic),
			logging.String("event_type", eventType),
			logging.Err(err))
	}
}
