package store

import (
	"context"
	"time"

	"github.com/LingJien0709/shiny-carnival/internal/domain"
)

// Repark carries one repark mutation. ObservedAt is the last-repark timestamp
// the caller read; the update is conditional on it so two concurrent reparks
// cannot both succeed.
type Repark struct {
	SessionID  string
	UserID     string
	ObservedAt time.Time
	Now        time.Time
	ReminderAt *time.Time
	Savings    int
}

// Repo defines storage operations for users and parking sessions.
type Repo interface {
	UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error)
	GetUserByName(ctx context.Context, displayName string) (*domain.User, error)
	GetUserByChatID(ctx context.Context, chatID int64) (*domain.User, error)
	ListLeaderboard(ctx context.Context, limit int) ([]domain.User, error)

	FindActiveSession(ctx context.Context, userID, date string) (*domain.ParkingSession, error)
	CreateSession(ctx context.Context, s *domain.ParkingSession) error
	// RecordRepark applies the session update and the user's savings
	// increment in one transaction; both persist or neither does.
	RecordRepark(ctx context.Context, rep Repark) (*domain.ParkingSession, *domain.User, error)

	FindDueReminders(ctx context.Context, date string, now time.Time) ([]domain.DueReminder, error)
	// MarkReminderSent records the send time, conditional on no reminder
	// having been sent yet. Returns false when the gate was already taken.
	MarkReminderSent(ctx context.Context, sessionID string, at time.Time) (bool, error)

	DeactivateStale(ctx context.Context, today string, now time.Time) (int64, error)
	PurgeInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
