// Package dates provides the whole-calendar-day UTC date arithmetic shared by
// every rule engine in CaseLight.  All deadline, reminder, risk, and
// escalation math counts calendar days between UTC midnights, never elapsed
// hours, so that results are stable regardless of the time of day an
// evaluation runs.
package dates

import "time"

// StartOfDayUTC truncates t to midnight UTC of the same calendar day.
func StartOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the number of whole calendar days from now to target.
// Both instants are normalized to UTC midnight before differencing, so two
// times on the same UTC day always yield 0 and the result is negative once
// target's day has passed.
func DaysUntil(now, target time.Time) int {
	nowDay := StartOfDayUTC(now)
	targetDay := StartOfDayUTC(target)
	return int(targetDay.Sub(nowDay).Hours() / 24)
}

// DaysSince returns the number of whole calendar days from past to now.
// Equivalent to DaysUntil(past, now).
func DaysSince(now, past time.Time) int {
	return DaysUntil(past, now)
}

// SameDayUTC reports whether a and b fall on the same UTC calendar day.
func SameDayUTC(a, b time.Time) bool {
	return StartOfDayUTC(a).Equal(StartOfDayUTC(b))
}

// NextWeekday returns the first instant strictly after t's calendar day that
// falls on the given weekday, preserving midnight UTC.  If t is already on
// that weekday the following week's occurrence is returned.
func NextWeekday(t time.Time, day time.Weekday) time.Time {
	d := StartOfDayUTC(t)
	offset := (int(day) - int(d.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return d.AddDate(0, 0, offset)
}

// AtHourUTC returns t's UTC calendar day at the given hour.
func AtHourUTC(t time.Time, hour int) time.Time {
	d := StartOfDayUTC(t)
	return d.Add(time.Duration(hour) * time.Hour)
}

// DayString formats t's UTC calendar day as YYYY-MM-DD, the canonical key for
// day-bucketed records.
func DayString(t time.Time) string {
	return StartOfDayUTC(t).Format("2006-01-02")
}
