package parking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LingJien0709/shiny-carnival/internal/domain"
	"github.com/LingJien0709/shiny-carnival/internal/store"
)

// fakeRepo is an in-memory store.Repo for exercising the state machine.
type fakeRepo struct {
	mu       sync.Mutex
	users    map[string]*domain.User           // keyed by display name
	sessions map[string]*domain.ParkingSession // keyed by id
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    make(map[string]*domain.User),
		sessions: make(map[string]*domain.ParkingSession),
	}
}

func (f *fakeRepo) addUser(name string) *domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &domain.User{ID: uuid.NewString(), DisplayName: name, ChatHandle: name}
	f.users[name] = u
	return u
}

func (f *fakeRepo) UpsertUser(_ context.Context, u *domain.User) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.DisplayName] = u
	return u, nil
}

func (f *fakeRepo) GetUserByName(_ context.Context, name string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[name]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRepo) GetUserByChatID(_ context.Context, chatID int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ChatID != nil && *u.ChatID == chatID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRepo) ListLeaderboard(_ context.Context, _ int) ([]domain.User, error) {
	return nil, nil
}

func (f *fakeRepo) FindActiveSession(_ context.Context, userID, date string) (*domain.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.Date == date && s.Active {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRepo) CreateSession(_ context.Context, s *domain.ParkingSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeRepo) RecordRepark(_ context.Context, rep store.Repark) (*domain.ParkingSession, *domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[rep.SessionID]
	if !ok || !s.Active || !s.LastReparkAt.Equal(rep.ObservedAt) {
		return nil, nil, domain.ErrConflict
	}
	s.LastReparkAt = rep.Now
	s.ReparkCount++
	s.ReminderAt = rep.ReminderAt
	s.ReminderSentAt = nil
	s.UpdatedAt = rep.Now
	var owner *domain.User
	for _, u := range f.users {
		if u.ID == rep.UserID {
			u.TotalSaved += rep.Savings
			owner = u
		}
	}
	sc, uc := *s, *owner
	return &sc, &uc, nil
}

func (f *fakeRepo) FindDueReminders(_ context.Context, date string, now time.Time) ([]domain.DueReminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []domain.DueReminder
	for _, s := range f.sessions {
		if !s.Active || s.Date != date || s.ReminderAt == nil || s.ReminderAt.After(now) || s.ReminderSentAt != nil {
			continue
		}
		var owner domain.User
		for _, u := range f.users {
			if u.ID == s.UserID {
				owner = *u
			}
		}
		res = append(res, domain.DueReminder{Session: *s, User: owner})
	}
	return res, nil
}

func (f *fakeRepo) MarkReminderSent(_ context.Context, sessionID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || !s.Active || s.ReminderSentAt != nil {
		return false, nil
	}
	t := at
	s.ReminderSentAt = &t
	return true, nil
}

func (f *fakeRepo) DeactivateStale(_ context.Context, today string, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.sessions {
		if s.Active && (s.Date < today || !now.Before(s.Deadline())) {
			s.Active = false
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) PurgeInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if !s.Active && s.UpdatedAt.Before(cutoff) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) Close() error { return nil }

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func klTime(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kuala_Lumpur")
	require.NoError(t, err)
	return time.Date(y, m, d, hh, mm, 0, 0, loc).UTC()
}

func newTestService(t *testing.T, at time.Time) (*Service, *fakeRepo, *fakeClock) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kuala_Lumpur")
	require.NoError(t, err)
	repo := newFakeRepo()
	clock := &fakeClock{now: at}
	svc := NewService(repo, domain.NewCalendar(loc, nil), clock, zap.NewNop())
	return svc, repo, clock
}

func TestStart_CreatesSessionWithReminder(t *testing.T) {
	// Wednesday 14:00 local
	now := klTime(t, 2026, time.September, 2, 14, 0)
	svc, repo, _ := newTestService(t, now)
	repo.addUser("alice")

	s, created, err := svc.Start(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "2026-09-02", s.Date)
	assert.True(t, s.StartAt.Equal(now))
	assert.True(t, s.LastReparkAt.Equal(now))
	assert.Equal(t, 0, s.ReparkCount)
	require.NotNil(t, s.ReminderAt)
	assert.True(t, s.ReminderAt.Equal(klTime(t, 2026, time.September, 2, 16, 40)))
}

func TestStart_Idempotent(t *testing.T) {
	now := klTime(t, 2026, time.September, 2, 10, 0)
	svc, repo, clock := newTestService(t, now)
	repo.addUser("alice")
	ctx := context.Background()

	first, created, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	require.True(t, created)

	clock.set(now.Add(25 * time.Minute))
	second, created, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.StartAt.Equal(first.StartAt))
	assert.Len(t, repo.sessions, 1)

	u, err := repo.GetUserByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, u.TotalSaved)
}

func TestStart_RejectedOutsideRules(t *testing.T) {
	cases := map[string]time.Time{
		"saturday":     klTime(t, 2026, time.September, 5, 10, 0),
		"past closing": klTime(t, 2026, time.September, 2, 17, 30),
	}
	for name, at := range cases {
		t.Run(name, func(t *testing.T) {
			svc, repo, _ := newTestService(t, at)
			repo.addUser("alice")
			_, _, err := svc.Start(context.Background(), "alice")
			assert.ErrorIs(t, err, domain.ErrRulesNotApplicable)
		})
	}
}

func TestStart_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t, klTime(t, 2026, time.September, 2, 10, 0))
	_, _, err := svc.Start(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepark_NoActiveSession(t *testing.T) {
	svc, repo, _ := newTestService(t, klTime(t, 2026, time.September, 2, 10, 0))
	repo.addUser("alice")
	_, err := svc.Repark(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestRepark_IncrementsSavingsAndResetsReminder(t *testing.T) {
	start := klTime(t, 2026, time.September, 2, 9, 0)
	svc, repo, clock := newTestService(t, start)
	repo.addUser("alice")
	ctx := context.Background()

	_, _, err := svc.Start(ctx, "alice")
	require.NoError(t, err)

	clock.set(start.Add(2 * time.Hour))
	res, err := svc.Repark(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Session.ReparkCount)
	assert.Equal(t, domain.SavingsPerRepark, res.Saved)
	assert.Equal(t, domain.SavingsPerRepark, res.User.TotalSaved)
	assert.Nil(t, res.Session.ReminderSentAt)
	require.NotNil(t, res.Session.ReminderAt)
	// reminder anchored on the repark, not the start
	assert.True(t, res.Session.ReminderAt.Equal(klTime(t, 2026, time.September, 2, 13, 40)))

	clock.set(start.Add(4 * time.Hour))
	res, err = svc.Repark(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Session.ReparkCount)
	assert.Equal(t, 2*domain.SavingsPerRepark, res.User.TotalSaved)
}

func TestRepark_WindowExpired(t *testing.T) {
	start := klTime(t, 2026, time.September, 2, 9, 0)
	svc, repo, clock := newTestService(t, start)
	repo.addUser("alice")
	ctx := context.Background()

	_, _, err := svc.Start(ctx, "alice")
	require.NoError(t, err)

	clock.set(start.Add(domain.GraceWindow)) // exactly at the deadline
	_, err = svc.Repark(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrWindowExpired)

	u, err := repo.GetUserByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, u.TotalSaved)
}

func TestRepark_JustBeforeDeadlineAccepted(t *testing.T) {
	start := klTime(t, 2026, time.September, 2, 9, 0)
	svc, repo, clock := newTestService(t, start)
	repo.addUser("alice")
	ctx := context.Background()

	_, _, err := svc.Start(ctx, "alice")
	require.NoError(t, err)

	clock.set(start.Add(domain.GraceWindow - time.Minute))
	_, err = svc.Repark(ctx, "alice")
	assert.NoError(t, err)
}

func TestRepark_AfterClosingRejected(t *testing.T) {
	start := klTime(t, 2026, time.September, 2, 16, 50)
	svc, repo, clock := newTestService(t, start)
	repo.addUser("alice")
	ctx := context.Background()

	s, _, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	// 16:50 start: deadline 19:50 but the reminder would fire past closing
	assert.Nil(t, s.ReminderAt)

	clock.set(klTime(t, 2026, time.September, 2, 17, 5))
	_, err = svc.Repark(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrRulesNotApplicable)
}

func TestRepark_AtSixteenFiftyNine_AcceptedWithoutReminder(t *testing.T) {
	start := klTime(t, 2026, time.September, 2, 15, 0)
	svc, repo, clock := newTestService(t, start)
	repo.addUser("alice")
	ctx := context.Background()

	_, _, err := svc.Start(ctx, "alice")
	require.NoError(t, err)

	clock.set(klTime(t, 2026, time.September, 2, 16, 59))
	res, err := svc.Repark(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, res.Session.ReminderAt)
	assert.Equal(t, domain.SavingsPerRepark, res.User.TotalSaved)
}

func TestRepark_ConcurrentCallsSerialized(t *testing.T) {
	start := klTime(t, 2026, time.September, 2, 9, 0)
	svc, repo, clock := newTestService(t, start)
	repo.addUser("alice")
	ctx := context.Background()

	_, _, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	clock.set(start.Add(time.Hour))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Repark(ctx, "alice")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	u, err := repo.GetUserByName(ctx, "alice")
	require.NoError(t, err)
	// serialized: every repark observed the previous one, all increments land
	assert.Equal(t, n*domain.SavingsPerRepark, u.TotalSaved)
}
