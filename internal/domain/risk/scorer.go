// Package risk implements the case health scorer.  Four independent
// sub-scores accumulate risk points; the overall score is 100 minus the
// points, clamped into [0,100], so an empty case with nothing wrong scores a
// perfect 100 and a case failing on every axis scores 0.
//
// Deadline and response risk take the worst single deadline, not a sum: one
// overdue deadline is the problem, and three slightly-late ones are not three
// times the problem.  Evidence risk is additive across independent signals.
// Preserve this asymmetry; it is a business rule, not an accident.
package risk

import (
	"fmt"
	"time"

	"github.com/caselight/caselight/internal/domain/casefile"
	"github.com/caselight/caselight/internal/domain/dates"
	"github.com/caselight/caselight/internal/domain/deadline"
	"github.com/caselight/caselight/pkg/types/common"
)

// Level is the qualitative banding of an overall score.
type Level string

const (
	LevelLow      Level = "low"      // score ≥ 80
	LevelModerate Level = "moderate" // score ≥ 60
	LevelElevated Level = "elevated" // score ≥ 40
	LevelHigh     Level = "high"     // below 40
)

// DiscoveryDeadline pairs a discovery-response deadline with whether a
// response has been received for it.
type DiscoveryDeadline struct {
	Deadline    deadline.Deadline
	HasResponse bool
}

// Input aggregates the structured case facts the scorer consumes.  Deadlines
// must be the non-discovery set; discovery-response deadlines travel
// separately with their response flags.
type Input struct {
	CaseID             common.ID
	Deadlines          []deadline.Deadline
	DiscoveryDeadlines []DiscoveryDeadline
	Events             []casefile.TaskEvent
	EvidenceCount      int
	ExhibitSetCount    int
	ExhibitCount       int
	TrialBinderCount   int
}

// BreakdownItem explains one scoring decision.
type BreakdownItem struct {
	Rule   string `json:"rule"`
	Points int    `json:"points"`
	Detail string `json:"detail"`
}

// Result is the scorer's output.
type Result struct {
	OverallScore int             `json:"overall_score"`
	DeadlineRisk int             `json:"deadline_risk"`
	ResponseRisk int             `json:"response_risk"`
	EvidenceRisk int             `json:"evidence_risk"`
	ActivityRisk int             `json:"activity_risk"`
	Level        Level           `json:"risk_level"`
	Breakdown    []BreakdownItem `json:"breakdown"`
}

const (
	deadlineRiskMax = 40
	responseRiskMax = 50
	activityRiskMax = 40
)

// Scorer computes a case health score from structured facts.  It is pure and
// total: no input combination is an error, absence of data simply drives the
// score toward risk.
type Scorer struct{}

// NewScorer returns a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score evaluates the input at the given instant.  now must be supplied by
// the caller so that identical inputs always produce identical output.
func (s *Scorer) Score(in Input, now time.Time) Result {
	var breakdown []BreakdownItem

	deadlinePts, deadlineItem := scoreDeadlines(in.Deadlines, now)
	if deadlineItem != nil {
		breakdown = append(breakdown, *deadlineItem)
	}

	responsePts, responseItem := scoreDiscoveryResponses(in.DiscoveryDeadlines, now)
	if responseItem != nil {
		breakdown = append(breakdown, *responseItem)
	}

	evidencePts, evidenceItems := scoreEvidence(in)
	breakdown = append(breakdown, evidenceItems...)

	activityPts, activityItem := scoreActivity(in.Events, now)
	if activityItem != nil {
		breakdown = append(breakdown, *activityItem)
	}

	total := deadlinePts + responsePts + evidencePts + activityPts
	overall := clamp(100-total, 0, 100)

	return Result{
		OverallScore: overall,
		DeadlineRisk: deadlinePts,
		ResponseRisk: responsePts,
		EvidenceRisk: evidencePts,
		ActivityRisk: activityPts,
		Level:        LevelForScore(overall),
		Breakdown:    breakdown,
	}
}

// LevelForScore maps an overall score to its qualitative level.
func LevelForScore(score int) Level {
	switch {
	case score >= 80:
		return LevelLow
	case score >= 60:
		return LevelModerate
	case score >= 40:
		return LevelElevated
	default:
		return LevelHigh
	}
}

// scoreDeadlines awards points for the single worst non-discovery deadline.
// Overdue → 40, due within 3 days → 20, within 7 → 10, otherwise 0.  A
// strictly-greater comparison keeps the first deadline encountered on ties.
func scoreDeadlines(dls []deadline.Deadline, now time.Time) (int, *BreakdownItem) {
	best := 0
	var item *BreakdownItem
	for _, d := range dls {
		days := dates.DaysUntil(now, d.DueAt)
		pts := 0
		var detail string
		switch {
		case days < 0:
			pts = deadlineRiskMax
			detail = fmt.Sprintf("%s is %d day(s) overdue", d.Key, -days)
		case days <= 3:
			pts = 20
			detail = fmt.Sprintf("%s is due in %d day(s)", d.Key, days)
		case days <= 7:
			pts = 10
			detail = fmt.Sprintf("%s is due in %d day(s)", d.Key, days)
		}
		if pts > best {
			best = pts
			item = &BreakdownItem{Rule: "deadline_proximity", Points: pts, Detail: detail}
		}
	}
	return best, item
}

// scoreDiscoveryResponses awards points for the single worst discovery
// deadline still lacking a response.  Overdue → 50, within 3 days → 30,
// within 7 → 10.
func scoreDiscoveryResponses(dls []DiscoveryDeadline, now time.Time) (int, *BreakdownItem) {
	best := 0
	var item *BreakdownItem
	for _, dd := range dls {
		if dd.HasResponse {
			continue
		}
		days := dates.DaysUntil(now, dd.Deadline.DueAt)
		pts := 0
		var detail string
		switch {
		case days < 0:
			pts = responseRiskMax
			detail = fmt.Sprintf("discovery response %s is %d day(s) overdue", dd.Deadline.Key, -days)
		case days <= 3:
			pts = 30
			detail = fmt.Sprintf("discovery response %s is due in %d day(s)", dd.Deadline.Key, days)
		case days <= 7:
			pts = 10
			detail = fmt.Sprintf("discovery response %s is due in %d day(s)", dd.Deadline.Key, days)
		}
		if pts > best {
			best = pts
			item = &BreakdownItem{Rule: "discovery_response", Points: pts, Detail: detail}
		}
	}
	return best, item
}

// scoreEvidence is additive: each missing preparation signal contributes its
// own points and its own breakdown item.
func scoreEvidence(in Input) (int, []BreakdownItem) {
	total := 0
	var items []BreakdownItem
	add := func(pts int, rule, detail string) {
		total += pts
		items = append(items, BreakdownItem{Rule: rule, Points: pts, Detail: detail})
	}

	if in.EvidenceCount < 3 {
		add(15, "evidence_count", fmt.Sprintf("only %d evidence item(s) collected", in.EvidenceCount))
	}
	if in.ExhibitSetCount == 0 {
		add(10, "exhibit_sets", "no exhibit sets created")
	}
	if in.ExhibitCount < 2 {
		add(10, "exhibit_count", fmt.Sprintf("only %d exhibit(s) prepared", in.ExhibitCount))
	}
	if in.TrialBinderCount == 0 {
		add(5, "trial_binder", "no trial binder assembled")
	}
	return total, items
}

// scoreActivity buckets days since the most recent task event.  No events at
// all is the worst signal.
func scoreActivity(events []casefile.TaskEvent, now time.Time) (int, *BreakdownItem) {
	if len(events) == 0 {
		return activityRiskMax, &BreakdownItem{
			Rule:   "no_activity",
			Points: activityRiskMax,
			Detail: "no activity recorded on this case",
		}
	}
	latest := events[0].CreatedAt
	for _, e := range events[1:] {
		if e.CreatedAt.After(latest) {
			latest = e.CreatedAt
		}
	}
	days := dates.DaysSince(now, latest)
	switch {
	case days >= 30:
		return activityRiskMax, &BreakdownItem{
			Rule:   "stale_activity",
			Points: activityRiskMax,
			Detail: fmt.Sprintf("last activity was %d day(s) ago", days),
		}
	case days >= 14:
		return 20, &BreakdownItem{
			Rule:   "stale_activity",
			Points: 20,
			Detail: fmt.Sprintf("last activity was %d day(s) ago", days),
		}
	default:
		return 0, nil
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
