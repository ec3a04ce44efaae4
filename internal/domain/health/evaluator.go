// Package health turns a risk score into at most one health alert.  The two
// alert messages are static and known-safe, but they still pass through the
// safety filter: the gate is on the output path, not on trust in the input.
package health

import (
	"time"

	"github.com/caselight/caselight/internal/domain/safety"
	"github.com/caselight/caselight/pkg/types/common"
)

// Alert levels.  Lower scores produce higher (more severe) levels.
const (
	LevelAttention = 2 // score 50–69
	LevelConcern   = 3 // score ≤ 49
)

const (
	concernMessage = "Your case health score has dropped below 50. Reviewing the" +
		" upcoming deadlines and recent activity on your case page may help you" +
		" find what needs attention."
	attentionMessage = "Your case health score has dipped below 70. A look at your" +
		" deadline list and evidence checklist could help keep things on track."
)

// Action is the single alert an evaluation may produce.
type Action struct {
	CaseID    common.ID
	Level     int
	Message   string
	CreatedAt time.Time
}

// Suppression records an alert whose message failed the safety filter.
type Suppression struct {
	CaseID        common.ID
	Level         int
	BlockedPhrase string
}

// Evaluator maps an overall risk score to an alert action.
type Evaluator struct {
	filter *safety.Filter
}

// NewEvaluator returns an Evaluator gated by the given safety filter.
func NewEvaluator(filter *safety.Filter) *Evaluator {
	return &Evaluator{filter: filter}
}

// Evaluate returns the alert due for the score, or nil when the score is 70
// or above.  Deduplication per case per UTC day is the orchestrator's
// concern; the evaluator itself is stateless.
func (e *Evaluator) Evaluate(caseID common.ID, overallScore int, now time.Time) (*Action, *Suppression) {
	var level int
	var message string
	switch {
	case overallScore <= 49:
		level = LevelConcern
		message = concernMessage
	case overallScore <= 69:
		level = LevelAttention
		message = attentionMessage
	default:
		return nil, nil
	}

	if !e.filter.IsSafe(message) {
		return nil, &Suppression{
			CaseID:        caseID,
			Level:         level,
			BlockedPhrase: e.filter.BlockedPhrase(message),
		}
	}

	return &Action{
		CaseID:    caseID,
		Level:     level,
		Message:   message,
		CreatedAt: now,
	}, nil
}
