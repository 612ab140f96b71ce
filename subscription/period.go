package subscription

import (
	"fmt"
	"math"
	"time"
)

// NextPeriodEnd advances end by one billing cycle using calendar arithmetic.
// The day-of-month is anchorDay (end's own day when anchorDay is 0), clamped to
// the last day of the target month: Jan 31 -> Feb 28 -> Mar 31 with anchorDay 31.
func NextPeriodEnd(end time.Time, cycle Cycle, anchorDay int) (time.Time, error) {
	var months int
	switch cycle {
	case CycleMonthly:
		months = 1
	case CycleYearly:
		months = 12
	default:
		return time.Time{}, fmt.Errorf("unknown billing cycle %q", cycle)
	}
	if anchorDay <= 0 {
		anchorDay = end.Day()
	}
	// normalize year/month through the first of the month so AddDate cannot overflow into the next one
	first := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, end.Location()).AddDate(0, months, 0)
	lastDay := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, end.Location()).Day()
	day := anchorDay
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day,
		end.Hour(), end.Minute(), end.Second(), end.Nanosecond(), end.Location()), nil
}

// Window holds the day boundaries computed once per batch run
type Window struct {
	Now           time.Time
	Today         time.Time // midnight of the run day
	Tomorrow      time.Time
	ReminderUntil time.Time // exclusive bound: today+3 is still inside the window
	Yesterday     time.Time
	Location      *time.Location
}

// NewWindow derives the run boundaries of now in loc
func NewWindow(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{
		Now:           now,
		Today:         today,
		Tomorrow:      today.AddDate(0, 0, 1),
		ReminderUntil: today.AddDate(0, 0, 4),
		Yesterday:     today.AddDate(0, 0, -1),
		Location:      loc,
	}
}

// DaysUntil counts whole calendar days from the run day to the day of t.
// A period ending any time today is 0 days away.
func (w Window) DaysUntil(t time.Time) int {
	local := t.In(w.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.Location)
	return int(math.Round(day.Sub(w.Today).Hours() / 24))
}

// GraceStart is the earliest period end still retried for payment_failed subscriptions
func (w Window) GraceStart(graceDays int) time.Time {
	return w.Today.AddDate(0, 0, -graceDays)
}

// Date formats the run day as YYYY-MM-DD
func (w Window) Date() string {
	return w.Today.Format(dateLayout)
}
