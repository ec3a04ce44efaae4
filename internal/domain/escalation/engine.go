// Package escalation implements the reminder escalation engine: given the
// case's deadlines, a static rule table, the set of escalations that already
// fired, and the recent activity log, it decides which escalation messages
// are due right now.  Each rule fires on exactly one day (offset match, not a
// range), at most once per (deadline, level), and only if its rendered
// message clears the safety filter.
package escalation

import (
	"strings"
	"time"

	"github.com/caselight/caselight/internal/domain/casefile"
	"github.com/caselight/caselight/internal/domain/dates"
	"github.com/caselight/caselight/internal/domain/deadline"
	"github.com/caselight/caselight/internal/domain/safety"
	"github.com/caselight/caselight/pkg/types/common"
)

// ConditionType gates whether a matched rule fires.
type ConditionType string

const (
	// ConditionAlways fires unconditionally.
	ConditionAlways ConditionType = "always"
	// ConditionNoEvent fires only while no task event of the rule's
	// condition kind has been logged since the deadline was created.
	ConditionNoEvent ConditionType = "no_event"
	// ConditionStatusNotChanged is evaluated identically to ConditionNoEvent:
	// status changes surface as task events, so "status not changed" and "no
	// event logged" are the same observable fact.
	ConditionStatusNotChanged ConditionType = "status_not_changed"
)

// dueDatePlaceholder is the template token replaced with the deadline's
// long-form due date.
const dueDatePlaceholder = "{due_date}"

// Rule is one row of the static escalation rule table.
type Rule struct {
	DeadlineKey     string
	Level           int
	OffsetDays      int
	ConditionType   ConditionType
	ConditionKey    string
	MessageTemplate string
}

// Existing identifies an escalation level that already fired for a deadline.
// Presence alone matters; nothing else is consulted.
type Existing struct {
	DeadlineID common.ID
	Level      int
}

// Action is one escalation the orchestrator should persist and deliver.
type Action struct {
	CaseID      common.ID
	DeadlineID  common.ID
	Level       int
	Message     string
	TriggeredAt time.Time
}

// Suppression records a rule that was due to fire but whose rendered message
// failed the safety filter.  The engine stays pure; the caller logs these and
// bumps the suppression counter.
type Suppression struct {
	CaseID        common.ID
	DeadlineID    common.ID
	Level         int
	BlockedPhrase string
}

// Engine evaluates the escalation rule table.  Safe for concurrent use.
type Engine struct {
	filter *safety.Filter
}

// NewEngine returns an Engine gated by the given safety filter.
func NewEngine(filter *safety.Filter) *Engine {
	return &Engine{filter: filter}
}

// Evaluate returns the escalation actions due at now, in input deadline order
// then rule order, plus any safety suppressions.  Calling Evaluate again with
// existing extended by the first call's output yields nothing: firing is
// idempotent per (deadline, level).
func (e *Engine) Evaluate(
	deadlines []deadline.Deadline,
	rules []Rule,
	existing []Existing,
	events []casefile.TaskEvent,
	now time.Time,
) ([]Action, []Suppression) {
	fired := make(map[firedKey]bool, len(existing))
	for _, ex := range existing {
		fired[firedKey{ex.DeadlineID, ex.Level}] = true
	}

	var actions []Action
	var suppressed []Suppression

	for _, d := range deadlines {
		days := dates.DaysUntil(now, d.DueAt)
		if days < 0 {
			continue
		}
		for _, r := range rules {
			if r.DeadlineKey != d.Key || r.OffsetDays != days {
				continue
			}
			if fired[firedKey{d.ID, r.Level}] {
				continue
			}
			if !conditionPasses(r, d, events) {
				continue
			}

			message := renderMessage(r.MessageTemplate, d.DueAt)
			if !e.filter.IsSafe(message) {
				suppressed = append(suppressed, Suppression{
					CaseID:        d.CaseID,
					DeadlineID:    d.ID,
					Level:         r.Level,
					BlockedPhrase: e.filter.BlockedPhrase(message),
				})
				continue
			}

			actions = append(actions, Action{
				CaseID:      d.CaseID,
				DeadlineID:  d.ID,
				Level:       r.Level,
				Message:     message,
				TriggeredAt: now,
			})
			// Guard against duplicate rule rows in one pass.
			fired[firedKey{d.ID, r.Level}] = true
		}
	}
	return actions, suppressed
}

type firedKey struct {
	deadlineID common.ID
	level      int
}

// conditionPasses checks the rule's condition against the activity log.
// no_event and status_not_changed both pass only while no event of the
// condition kind, on the deadline's case, has been logged at or after the
// deadline's creation.  Events predating the deadline never count, and events
// from other cases never count.
func conditionPasses(r Rule, d deadline.Deadline, events []casefile.TaskEvent) bool {
	switch r.ConditionType {
	case ConditionAlways:
		return true
	case ConditionNoEvent, ConditionStatusNotChanged:
		for _, ev := range events {
			if ev.CaseID != d.CaseID || ev.Kind != r.ConditionKey {
				continue
			}
			if !ev.CreatedAt.Before(d.CreatedAt) {
				return false
			}
		}
		return true
	default:
		// Unknown condition types never fire.
		return false
	}
}

// renderMessage substitutes the {due_date} placeholder with a long-form date.
func renderMessage(template string, dueAt time.Time) string {
	long := dueAt.UTC().Format("Monday, January 2, 2006")
	return strings.ReplaceAll(template, dueDatePlaceholder, long)
}
