package domain

import "time"

// ComputeReminder returns the charge deadline and the reminder fire time for
// a park or repark happening at now.
func ComputeReminder(now time.Time) (deadline, reminderAt time.Time) {
	deadline = now.Add(GraceWindow)
	reminderAt = deadline.Add(-ReminderLead)
	return deadline, reminderAt
}

// ScheduleReminder decides whether a reminder should be scheduled for a park
// or repark at now, and returns its fire time (UTC) or nil when suppressed.
// A reminder is suppressed when the policy is already out of effect, when it
// would fire after closing time, or when it would fire on the next civil day.
func (c *Calendar) ScheduleReminder(now time.Time) *time.Time {
	if c.IsPastClosing(now) {
		return nil
	}
	if !c.RulesApply(now) {
		return nil
	}
	_, reminderAt := ComputeReminder(now)
	if c.IsPastClosing(reminderAt) {
		return nil
	}
	if c.CivilDate(reminderAt) != c.CivilDate(now) {
		return nil
	}
	at := reminderAt.UTC()
	return &at
}
