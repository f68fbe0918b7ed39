package parking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LingJien0709/shiny-carnival/internal/domain"
	"github.com/LingJien0709/shiny-carnival/internal/store"
)

// Service is the session state machine: it owns the start and repark
// transitions and gates both on the rule evaluator at the moment of the call.
type Service struct {
	repo  store.Repo
	cal   *domain.Calendar
	clock domain.Clock
	log   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // userID -> per-user lock
}

// NewService creates the parking session service.
func NewService(repo store.Repo, cal *domain.Calendar, clock domain.Clock, log *zap.Logger) *Service {
	return &Service{
		repo:  repo,
		cal:   cal,
		clock: clock,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing session mutations for one user.
// Locks are tiny and never released from the map; the user set is small.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Start opens today's parking session for the named user. Starting twice is
// a no-op: the existing active session is returned with created=false.
func (s *Service) Start(ctx context.Context, displayName string) (*domain.ParkingSession, bool, error) {
	now := s.clock.Now()
	if !s.cal.RulesApply(now) {
		return nil, false, domain.ErrRulesNotApplicable
	}

	user, err := s.repo.GetUserByName(ctx, displayName)
	if err != nil {
		return nil, false, fmt.Errorf("get user: %w", err)
	}

	lock := s.userLock(user.ID)
	lock.Lock()
	defer lock.Unlock()

	today := s.cal.CivilDate(now)
	existing, err := s.repo.FindActiveSession(ctx, user.ID, today)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("find session: %w", err)
	}

	session := &domain.ParkingSession{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Date:         today,
		StartAt:      now,
		LastReparkAt: now,
		Active:       true,
		ReminderAt:   s.cal.ScheduleReminder(now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, false, fmt.Errorf("create session: %w", err)
	}

	s.log.Info("parking session started",
		zap.String("user", displayName),
		zap.String("date", today),
		zap.Bool("reminder", session.ReminderAt != nil),
	)
	return session, true, nil
}

// ReparkResult is the outcome of a successful repark.
type ReparkResult struct {
	Session *domain.ParkingSession
	User    *domain.User
	Saved   int
}

// Repark records that the user moved their car, restarting the grace window.
// Fails with ErrNoActiveSession when nothing is active today, with
// ErrRulesNotApplicable when the policy is out of effect, and with
// ErrWindowExpired once the previous window's deadline has passed.
func (s *Service) Repark(ctx context.Context, displayName string) (*ReparkResult, error) {
	now := s.clock.Now()
	if !s.cal.RulesApply(now) {
		return nil, domain.ErrRulesNotApplicable
	}

	user, err := s.repo.GetUserByName(ctx, displayName)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	lock := s.userLock(user.ID)
	lock.Lock()
	defer lock.Unlock()

	today := s.cal.CivilDate(now)
	session, err := s.repo.FindActiveSession(ctx, user.ID, today)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoActiveSession
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	if !now.Before(session.Deadline()) {
		return nil, domain.ErrWindowExpired
	}

	updated, updatedUser, err := s.repo.RecordRepark(ctx, store.Repark{
		SessionID:  session.ID,
		UserID:     user.ID,
		ObservedAt: session.LastReparkAt,
		Now:        now,
		ReminderAt: s.cal.ScheduleReminder(now),
		Savings:    domain.SavingsPerRepark,
	})
	if err != nil {
		return nil, fmt.Errorf("record repark: %w", err)
	}

	s.log.Info("reparked",
		zap.String("user", displayName),
		zap.Int("repark_count", updated.ReparkCount),
		zap.Int("total_saved", updatedUser.TotalSaved),
	)
	return &ReparkResult{Session: updated, User: updatedUser, Saved: domain.SavingsPerRepark}, nil
}

// ActiveSession returns today's active session for the user, or ErrNotFound.
func (s *Service) ActiveSession(ctx context.Context, userID string) (*domain.ParkingSession, error) {
	return s.repo.FindActiveSession(ctx, userID, s.cal.CivilDate(s.clock.Now()))
}
