package deadline

import (
	"time"
)

// reminderOffsetsDays are the lead times, in calendar days before the due
// date, at which a reminder is scheduled.
var reminderOffsetsDays = []int{7, 3, 1}

// Scheduler computes reminder timestamps for a deadline.  It is stateless:
// after a deadline edit the orchestrator deletes the old reminders and
// inserts the scheduler's fresh output wholesale.
type Scheduler struct{}

// NewScheduler returns a reminder Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// RemindersFor returns the reminder instants for a deadline due at dueAt,
// filtered to those strictly in the future relative to now.  A deadline two
// days out yields exactly one reminder (the −1d slot); a past deadline yields
// none.
func (s *Scheduler) RemindersFor(dueAt, now time.Time) []time.Time {
	var out []time.Time
	for _, days := range reminderOffsetsDays {
		at := dueAt.AddDate(0, 0, -days)
		if at.After(now) {
			out = append(out, at)
		}
	}
	return out
}
