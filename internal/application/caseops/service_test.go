package caseops

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/caselight/caselight/internal/domain/casefile"
	"github.com/caselight/caselight/internal/domain/deadline"
	"github.com/caselight/caselight/internal/domain/escalation"
	"github.com/caselight/caselight/internal/domain/gatekeeper"
	"github.com/caselight/caselight/internal/domain/health"
	"github.com/caselight/caselight/internal/domain/risk"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeCaseRepo struct {
	mu    sync.Mutex
	cases map[common.ID]*casefile.Case
}

func newFakeCaseRepo() *fakeCaseRepo {
	return &fakeCaseRepo{cases: make(map[common.ID]*casefile.Case)}
}

func (r *fakeCaseRepo) Create(_ context.Context, c *casefile.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.cases[c.ID] = &cp
	return nil
}

func (r *fakeCaseRepo) GetByID(_ context.Context, id common.ID) (*casefile.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeCaseNotFound, "case not found")
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCaseRepo) List(_ context.Context, opts ...casefile.QueryOption) ([]*casefile.Case, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	options := casefile.ApplyOptions(opts...)
	var out []*casefile.Case
	for _, c := range r.cases {
		if options.Status != nil && c.Status != *options.Status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (r *fakeCaseRepo) UpdateServiceFacts(_ context.Context, id common.ID, servedAt, returnFiledAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return apperrors.New(apperrors.ErrCodeCaseNotFound, "case not found")
	}
	if servedAt != nil {
		c.ServedAt = servedAt
	}
	if returnFiledAt != nil {
		c.ReturnFiledAt = returnFiledAt
	}
	return nil
}

func (r *fakeCaseRepo) UpdateStatus(_ context.Context, id common.ID, status casefile.CaseStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return apperrors.New(apperrors.ErrCodeCaseNotFound, "case not found")
	}
	c.Status = status
	return nil
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []casefile.TaskEvent
}

func (r *fakeEventRepo) Append(_ context.Context, e *casefile.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *fakeEventRepo) ListByCase(_ context.Context, caseID common.ID) ([]casefile.TaskEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []casefile.TaskEvent
	for _, e := range r.events {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) ListByCaseSince(_ context.Context, caseID common.ID, since time.Time) ([]casefile.TaskEvent, error) {
	all, _ := r.ListByCase(context.Background(), caseID)
	var out []casefile.TaskEvent
	for _, e := range all {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

type deadlineKey struct {
	caseID common.ID
	key    string
}

type fakeDeadlineRepo struct {
	mu        sync.Mutex
	deadlines map[deadlineKey]deadline.Deadline
	reminders map[common.ID][]deadline.Reminder
}

func newFakeDeadlineRepo() *fakeDeadlineRepo {
	return &fakeDeadlineRepo{
		deadlines: make(map[deadlineKey]deadline.Deadline),
		reminders: make(map[common.ID][]deadline.Reminder),
	}
}

func (r *fakeDeadlineRepo) Create(_ context.Context, d *deadline.Deadline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadlines[deadlineKey{d.CaseID, d.Key}] = *d
	return nil
}

func (r *fakeDeadlineRepo) GetByID(_ context.Context, id common.ID) (*deadline.Deadline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deadlines {
		if d.ID == id {
			cp := d
			return &cp, nil
		}
	}
	return nil, apperrors.New(apperrors.ErrCodeDeadlineNotFound, "deadline not found")
}

func (r *fakeDeadlineRepo) GetByCaseAndKey(_ context.Context, caseID common.ID, key string) (*deadline.Deadline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deadlines[deadlineKey{caseID, key}]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeDeadlineNotFound, "deadline not found")
	}
	cp := d
	return &cp, nil
}

func (r *fakeDeadlineRepo) ListByCase(_ context.Context, caseID common.ID) ([]deadline.Deadline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []deadline.Deadline
	for _, d := range r.deadlines {
		if d.CaseID == caseID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *fakeDeadlineRepo) Upsert(_ context.Context, d *deadline.Deadline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := deadlineKey{d.CaseID, d.Key}
	if prev, ok := r.deadlines[k]; ok {
		d.ID = prev.ID // row identity survives an upsert
		d.CreatedAt = prev.CreatedAt
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	r.deadlines[k] = *d
	return nil
}

func (r *fakeDeadlineRepo) DeleteByCaseAndKey(_ context.Context, caseID common.ID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := deadlineKey{caseID, key}
	d, ok := r.deadlines[k]
	if !ok {
		return apperrors.New(apperrors.ErrCodeNotFound, "deadline not found")
	}
	delete(r.deadlines, k)
	delete(r.reminders, d.ID)
	return nil
}

func (r *fakeDeadlineRepo) ReplaceReminders(_ context.Context, deadlineID common.ID, reminders []deadline.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reminders[deadlineID] = reminders
	return nil
}

func (r *fakeDeadlineRepo) ListReminders(_ context.Context, caseID common.ID) ([]deadline.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []deadline.Reminder
	for _, rs := range r.reminders {
		for _, rem := range rs {
			if rem.CaseID == caseID {
				out = append(out, rem)
			}
		}
	}
	return out, nil
}

type fakeEscalationRepo struct {
	mu      sync.Mutex
	rules   []escalation.Rule
	records []escalation.Record
}

func (r *fakeEscalationRepo) ListRules(_ context.Context) ([]escalation.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]escalation.Rule(nil), r.rules...), nil
}

func (r *fakeEscalationRepo) Insert(_ context.Context, rec *escalation.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.records {
		if ex.DeadlineID == rec.DeadlineID && ex.Level == rec.Level {
			return apperrors.New(apperrors.ErrCodeEscalationDuplicate, "escalation already recorded")
		}
	}
	r.records = append(r.records, *rec)
	return nil
}

func (r *fakeEscalationRepo) ListExistingByCase(_ context.Context, caseID common.ID) ([]escalation.Existing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []escalation.Existing
	for _, rec := range r.records {
		if rec.CaseID == caseID {
			out = append(out, escalation.Existing{DeadlineID: rec.DeadlineID, Level: rec.Level})
		}
	}
	return out, nil
}

func (r *fakeEscalationRepo) ListByCase(_ context.Context, caseID common.ID) ([]escalation.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []escalation.Record
	for _, rec := range r.records {
		if rec.CaseID == caseID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type snapshotKey struct {
	caseID common.ID
	day    string
}

type fakeSnapshotRepo struct {
	mu        sync.Mutex
	snapshots map[snapshotKey]risk.Snapshot
	upserts   int
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{snapshots: make(map[snapshotKey]risk.Snapshot)}
}

func (r *fakeSnapshotRepo) Upsert(_ context.Context, s *risk.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = common.NewID()
	}
	r.snapshots[snapshotKey{s.CaseID, s.Day}] = *s
	r.upserts++
	return nil
}

func (r *fakeSnapshotRepo) GetLatest(_ context.Context, caseID common.ID) (*risk.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *risk.Snapshot
	for k, s := range r.snapshots {
		if k.caseID != caseID {
			continue
		}
		cp := s
		if latest == nil || cp.Day > latest.Day {
			latest = &cp
		}
	}
	if latest == nil {
		return nil, apperrors.New(apperrors.ErrCodeNotFound, "risk snapshot not found")
	}
	return latest, nil
}

func (r *fakeSnapshotRepo) ListByCase(_ context.Context, caseID common.ID, limit int) ([]risk.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []risk.Snapshot
	for k, s := range r.snapshots {
		if k.caseID == caseID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts []health.Alert
}

func (r *fakeAlertRepo) ExistsForDay(_ context.Context, caseID common.ID, day string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.CaseID == caseID && a.Day == day {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAlertRepo) Insert(_ context.Context, alert *health.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.CaseID == alert.CaseID && a.Day == alert.Day {
			return apperrors.New(apperrors.ErrCodeAlertDuplicate, "alert already recorded for this day")
		}
	}
	r.alerts = append(r.alerts, *alert)
	return nil
}

func (r *fakeAlertRepo) ListByCase(_ context.Context, caseID common.ID, limit int) ([]health.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []health.Alert
	for _, a := range r.alerts {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type workflowKey struct {
	caseID  common.ID
	taskKey string
}

type fakeWorkflowRepo struct {
	mu    sync.Mutex
	tasks map[workflowKey]gatekeeper.Task
}

func newFakeWorkflowRepo() *fakeWorkflowRepo {
	return &fakeWorkflowRepo{tasks: make(map[workflowKey]gatekeeper.Task)}
}

func (r *fakeWorkflowRepo) CreateAll(_ context.Context, tasks []gatekeeper.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tasks {
		k := workflowKey{t.CaseID, t.TaskKey}
		if _, ok := r.tasks[k]; ok {
			return apperrors.New(apperrors.ErrCodeConflict, "workflow task already exists")
		}
		r.tasks[k] = t
	}
	return nil
}

func (r *fakeWorkflowRepo) ListByCase(_ context.Context, caseID common.ID) ([]gatekeeper.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []gatekeeper.Task
	for _, t := range r.tasks {
		if t.CaseID == caseID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskKey < out[j].TaskKey })
	return out, nil
}

func (r *fakeWorkflowRepo) GetByCaseAndKey(_ context.Context, caseID common.ID, taskKey string) (*gatekeeper.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[workflowKey{caseID, taskKey}]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeWorkflowTaskNotFound, "workflow task not found")
	}
	cp := t
	return &cp, nil
}

func (r *fakeWorkflowRepo) UpdateStatus(_ context.Context, caseID common.ID, taskKey string, status gatekeeper.Status, dueAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := workflowKey{caseID, taskKey}
	t, ok := r.tasks[k]
	if !ok {
		return apperrors.New(apperrors.ErrCodeWorkflowTaskNotFound, "workflow task not found")
	}
	t.Status = status
	if dueAt != nil {
		t.DueAt = dueAt
	}
	r.tasks[k] = t
	return nil
}

func (r *fakeWorkflowRepo) SetMetadata(_ context.Context, caseID common.ID, taskKey, metaKey, metaValue string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := workflowKey{caseID, taskKey}
	t, ok := r.tasks[k]
	if !ok {
		return apperrors.New(apperrors.ErrCodeWorkflowTaskNotFound, "workflow task not found")
	}
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	t.Metadata[metaKey] = metaValue
	r.tasks[k] = t
	return nil
}

type publishedEvent struct {
	Topic     string
	EventType string
	Payload   interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) PublishEvent(_ context.Context, topic, eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, EventType: eventType, Payload: payload})
	return nil
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Topic)
	}
	return out
}
