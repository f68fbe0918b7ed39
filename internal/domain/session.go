package domain

import "time"

// ParkingSession tracks one user's parking activity for one civil day.
// At most one session per (user, date) may be active.
type ParkingSession struct {
	ID             string
	UserID         string
	Date           string // civil date, YYYY-MM-DD
	StartAt        time.Time
	LastReparkAt   time.Time // equals StartAt until the first repark
	ReparkCount    int
	Active         bool
	ReminderAt     *time.Time // UTC, nil when no reminder is scheduled
	ReminderSentAt *time.Time // UTC, nil until sent; cleared on every repark
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Deadline is the moment paid charges begin for the current parking window.
func (s *ParkingSession) Deadline() time.Time {
	return s.LastReparkAt.Add(GraceWindow)
}

// DueReminder is a session whose scheduled reminder has come due,
// joined with its owning user for notification.
type DueReminder struct {
	Session ParkingSession
	User    User
}
