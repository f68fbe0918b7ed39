package domain

import (
	"testing"
	"time"
)

func TestComputeReminder(t *testing.T) {
	now := mustLocalUTC(t, "Asia/Kuala_Lumpur", 2026, time.September, 2, 14, 0)
	deadline, reminderAt := ComputeReminder(now)
	if got := deadline.Sub(now); got != 3*time.Hour {
		t.Fatalf("deadline offset: want 3h, got %v", got)
	}
	if got := deadline.Sub(reminderAt); got != 20*time.Minute {
		t.Fatalf("reminder lead: want 20m, got %v", got)
	}
}

func TestScheduleReminder_MorningStart(t *testing.T) {
	c := testCalendar(t)
	// start 14:00 → deadline 17:00 → reminder 16:40, same day, before closing
	now := mustLocalUTC(t, "Asia/Kuala_Lumpur", 2026, time.September, 2, 14, 0)
	at := c.ScheduleReminder(now)
	if at == nil {
		t.Fatalf("expected a scheduled reminder")
	}
	want := mustLocalUTC(t, "Asia/Kuala_Lumpur", 2026, time.September, 2, 16, 40)
	if !at.Equal(want) {
		t.Fatalf("want %v, got %v", want, *at)
	}
}

func TestScheduleReminder_ReminderPastClosing(t *testing.T) {
	c := testCalendar(t)
	// repark 16:50 accepted by the rules, but reminder would fire 19:30
	now := mustLocalUTC(t, "Asia/Kuala_Lumpur", 2026, time.September, 2, 16, 50)
	if at := c.ScheduleReminder(now); at != nil {
		t.Fatalf("reminder after closing must be suppressed, got %v", *at)
	}
}

func TestScheduleReminder_ReparkAtSixteenFiftyNine(t *testing.T) {
	c := testCalendar(t)
	// repark at 16:59 → deadline 19:59, reminder 19:39 → past closing
	now := mustLocalUTC(t, "Asia/Kuala_Lumpur", 2026, time.September, 2, 16, 59)
	if at := c.ScheduleReminder(now); at != nil {
		t.Fatalf("expected no reminder, got %v", *at)
	}
}

func TestScheduleReminder_AfterClosing(t *testing.T) {
	c := testCalendar(t)
	now := mustLocalUTC(t, "Asia/Kuala_Lumpur", 2026, time.September, 2, 17, 5)
	if at := c.ScheduleReminder(now); at != nil {
		t.Fatalf("expected no reminder after closing")
	}
}

func TestScheduleReminder_WeekendAndHoliday(t *testing.T) {
	c := testCalendar(t, "2026-09-02")
	sat := mustLocalUTC(t, "Asia/Kuala_Lumpur", 2026, time.September, 5, 10, 0)
	if at := c.ScheduleReminder(sat); at != nil {
		t.Fatalf("expected no reminder on weekend")
	}
	hol := mustLocalUTC(t, "Asia/Kuala_Lumpur", 2026, time.September, 2, 10, 0)
	if at := c.ScheduleReminder(hol); at != nil {
		t.Fatalf("expected no reminder on holiday")
	}
}

func TestScheduleReminder_CrossesMidnight(t *testing.T) {
	c := testCalendar(t)
	// 00:30 local → reminder 03:10 same day → schedules fine.
	now := mustLocalUTC(t, "Asia/Kuala_Lumpur", 2026, time.September, 2, 0, 30)
	if at := c.ScheduleReminder(now); at == nil {
		t.Fatalf("early-morning reminder on the same civil day must schedule")
	}
	// 22:00 local would put the reminder at 00:40 next day. Closing already
	// suppresses it, and the date guard must agree.
	late := mustLocalUTC(t, "Asia/Kuala_Lumpur", 2026, time.September, 2, 22, 0)
	_, reminderAt := ComputeReminder(late)
	if c.CivilDate(reminderAt) == c.CivilDate(late) {
		t.Fatalf("test premise broken: reminder should cross midnight")
	}
	if at := c.ScheduleReminder(late); at != nil {
		t.Fatalf("midnight-crossing reminder must be suppressed")
	}
}
