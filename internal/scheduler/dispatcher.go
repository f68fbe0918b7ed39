package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/LingJien0709/shiny-carnival/internal/domain"
	"github.com/LingJien0709/shiny-carnival/internal/store"
)

// Notifier is the minimal interface the dispatcher needs to deliver a
// reminder. It must tolerate being called more than once for the same
// logical reminder, because a failed mark-as-sent leads to a retry.
type Notifier interface {
	Send(ctx context.Context, user domain.User) error
}

// Sessions older than this are purged once dormant.
const retention = 7 * 24 * time.Hour

// Dispatcher scans for due reminders on a recurring tick and notifies each
// owner at most once per scheduled reminder.
type Dispatcher struct {
	repo     store.Repo
	cal      *domain.Calendar
	clock    domain.Clock
	notifier Notifier
	log      *zap.Logger
}

// New creates a Dispatcher.
func New(repo store.Repo, cal *domain.Calendar, clock domain.Clock, notifier Notifier, log *zap.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, cal: cal, clock: clock, notifier: notifier, log: log}
}

// Poll runs one dispatch cycle at the clock's current instant. This is the
// cron entry point.
func (d *Dispatcher) Poll(ctx context.Context) {
	d.Tick(ctx, d.clock.Now())
}

// Tick performs one dispatch cycle at the given instant: skip the whole
// cycle when the policy is out of effect, scan today's due reminders,
// re-validate each against the current instant, notify, and mark sent.
// One candidate's failure never aborts the rest of the batch.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) {
	if !d.cal.RulesApply(now) {
		return
	}
	today := d.cal.CivilDate(now)

	due, err := d.repo.FindDueReminders(ctx, today, now)
	if err != nil {
		d.log.Error("find due reminders failed", zap.Error(err))
		return
	}

	for _, cand := range due {
		d.dispatch(ctx, now, cand)
	}
}

// dispatch re-validates and fires a single candidate. The scheduled value
// was computed back at start/repark time; conditions may have shifted since,
// so fire only while the deadline is ahead and within the reminder lead.
func (d *Dispatcher) dispatch(ctx context.Context, now time.Time, cand domain.DueReminder) {
	remaining := cand.Session.Deadline().Sub(now)
	if d.cal.IsPastClosing(now) || remaining <= 0 || remaining > domain.ReminderLead {
		d.log.Debug("due reminder no longer valid, skipping",
			zap.String("session", cand.Session.ID),
			zap.Duration("remaining", remaining),
		)
		return
	}

	if err := d.notifier.Send(ctx, cand.User); err != nil {
		// leave reminder_sent_at empty so the next tick retries
		d.log.Error("notify failed",
			zap.Error(err),
			zap.String("user", cand.User.DisplayName),
			zap.String("session", cand.Session.ID),
		)
		return
	}

	sent, err := d.repo.MarkReminderSent(ctx, cand.Session.ID, now)
	if err != nil {
		d.log.Error("mark reminder sent failed",
			zap.Error(err),
			zap.String("session", cand.Session.ID),
		)
		return
	}
	if !sent {
		// a concurrent repark or tick got there first
		d.log.Warn("reminder sent but gate already taken", zap.String("session", cand.Session.ID))
		return
	}
	d.log.Info("reminder sent",
		zap.String("user", cand.User.DisplayName),
		zap.Duration("remaining", remaining),
	)
}

// Housekeep flips stale sessions dormant and purges dormant sessions past
// retention. Run off the hot path, on its own schedule.
func (d *Dispatcher) Housekeep(ctx context.Context) {
	now := d.clock.Now()
	today := d.cal.CivilDate(now)

	deactivated, err := d.repo.DeactivateStale(ctx, today, now)
	if err != nil {
		d.log.Error("deactivate stale sessions failed", zap.Error(err))
	} else if deactivated > 0 {
		d.log.Info("sessions went dormant", zap.Int64("count", deactivated))
	}

	purged, err := d.repo.PurgeInactiveBefore(ctx, now.Add(-retention))
	if err != nil {
		d.log.Error("purge dormant sessions failed", zap.Error(err))
	} else if purged > 0 {
		d.log.Info("dormant sessions purged", zap.Int64("count", purged))
	}
}
