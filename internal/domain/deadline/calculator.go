package deadline

import (
	"fmt"
	"time"

	"github.com/caselight/caselight/internal/domain/dates"
	"github.com/caselight/caselight/pkg/errors"
)

// RuleSetTXV1 is the Texas justice-court rule set, the only one currently
// shipped.  Every draft a calculator emits is stamped with its rule-set name
// so past records keep their meaning when new jurisdictions are added.
const RuleSetTXV1 = "TX_V1"

const (
	answerWindowDays    = 14
	docketCheckLagDays  = 7
	defaultInfoLagDays  = 1
	courtBusinessHour   = 10
)

// Calculator derives deadline drafts from service facts under a named,
// versioned rule set.  It is pure: same facts in, same drafts out.
type Calculator struct {
	ruleSet string
}

// NewCalculator returns a Calculator for the given rule set.
func NewCalculator(ruleSet string) (*Calculator, error) {
	if ruleSet != RuleSetTXV1 {
		return nil, errors.New(errors.ErrCodeRuleSetUnsupported, "unsupported deadline rule set").
			WithDetail("rule_set=" + ruleSet)
	}
	return &Calculator{ruleSet: ruleSet}, nil
}

// RuleSet returns the calculator's rule-set name.
func (c *Calculator) RuleSet() string {
	return c.ruleSet
}

// Calculate maps service facts to an ordered list of deadline drafts.
//
// Under TX_V1:
//  1. No served_at → no deadlines.
//  2. answer_deadline_estimated = served_at + 14 calendar days, rolled
//     forward to the next Monday at 10:00 unless the +14 date is already a
//     Monday (which is kept as-is).
//  3. check_docket_after_answer_deadline = answer estimate + 7 calendar days.
//  4. If return_filed_at is present, default_earliest_info =
//     return_filed_at + 1 calendar day.
func (c *Calculator) Calculate(facts ServiceFacts) []Draft {
	if facts.ServedAt == nil {
		return nil
	}

	servedDay := dates.StartOfDayUTC(*facts.ServedAt)
	raw := servedDay.AddDate(0, 0, answerWindowDays)

	answerDue := raw
	rolled := false
	if raw.Weekday() != time.Monday {
		answerDue = dates.NextWeekday(raw, time.Monday)
		rolled = true
	}
	answerDue = dates.AtHourUTC(answerDue, courtBusinessHour)

	rationale := fmt.Sprintf(
		"Served %s; answer period of %d calendar days ends %s.",
		servedDay.Format("January 2, 2006"), answerWindowDays, raw.Format("Monday, January 2, 2006"))
	if rolled {
		rationale += fmt.Sprintf(" Rolled forward to the next Monday, %s, at %d:00.",
			answerDue.Format("January 2, 2006"), courtBusinessHour)
	} else {
		rationale += fmt.Sprintf(" That date is already a Monday, so it is kept, at %d:00.",
			courtBusinessHour)
	}

	drafts := []Draft{
		{
			Key:         KeyAnswerEstimated,
			DueAt:       answerDue,
			Source:      SourceSystemEstimated,
			Rationale:   rationale,
			CalcVersion: c.ruleSet,
		},
		{
			Key:    KeyCheckDocket,
			DueAt:  answerDue.AddDate(0, 0, docketCheckLagDays),
			Source: SourceSystemEstimated,
			Rationale: fmt.Sprintf(
				"Check the docket %d days after the estimated answer deadline of %s.",
				docketCheckLagDays, answerDue.Format("January 2, 2006")),
			CalcVersion: c.ruleSet,
		},
	}

	if facts.ReturnFiledAt != nil {
		returnDay := dates.StartOfDayUTC(*facts.ReturnFiledAt)
		drafts = append(drafts, Draft{
			Key:    KeyDefaultEarliest,
			DueAt:  returnDay.AddDate(0, 0, defaultInfoLagDays),
			Source: SourceSystemEstimated,
			Rationale: fmt.Sprintf(
				"Return was filed %s; default information becomes relevant %d day later.",
				returnDay.Format("January 2, 2006"), defaultInfoLagDays),
			CalcVersion: c.ruleSet,
		})
	}

	return drafts
}
