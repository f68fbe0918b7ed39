package domain

import "time"

// Policy constants. The free window is three hours per park; reminders fire
// twenty minutes before the window closes; each repark saves a fixed amount.
const (
	GraceWindow      = 3 * time.Hour
	ReminderLead     = 20 * time.Minute
	ClosingHour      = 17 // paid charges stop at 17:00 local, policy ends
	SavingsPerRepark = 3
)

// DateLayout is the civil date format used throughout storage and policy.
const DateLayout = "2006-01-02"

// Calendar answers civil-time policy questions under one fixed timezone.
// It is pure: given the same instant it always returns the same answers.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{}
}

// NewCalendar builds a Calendar for the given location and holiday dates.
// Holidays are exact YYYY-MM-DD matches; malformed entries are ignored.
func NewCalendar(loc *time.Location, holidays []string) *Calendar {
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		if _, err := time.Parse(DateLayout, h); err == nil {
			set[h] = struct{}{}
		}
	}
	return &Calendar{loc: loc, holidays: set}
}

// CivilDate returns the calendar date of t under the fixed timezone.
func (c *Calendar) CivilDate(t time.Time) string {
	return t.In(c.loc).Format(DateLayout)
}

// IsWeekend reports whether t falls on a Saturday or Sunday locally.
func (c *Calendar) IsWeekend(t time.Time) bool {
	wd := t.In(c.loc).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsHoliday reports whether the given civil date is in the holiday set.
func (c *Calendar) IsHoliday(date string) bool {
	_, ok := c.holidays[date]
	return ok
}

// IsPastClosing reports whether the local wall-clock hour of t has reached
// closing time.
func (c *Calendar) IsPastClosing(t time.Time) bool {
	return t.In(c.loc).Hour() >= ClosingHour
}

// RulesApply reports whether the free-parking policy is in effect at t.
// This is the single gate consulted by every mutating operation, evaluated
// at the moment of the action rather than at session creation.
func (c *Calendar) RulesApply(t time.Time) bool {
	return !c.IsWeekend(t) && !c.IsHoliday(c.CivilDate(t)) && !c.IsPastClosing(t)
}
