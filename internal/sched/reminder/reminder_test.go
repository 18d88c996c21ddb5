package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"todosched/internal/storage"
	"todosched/internal/task"
)

var now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func seedTask(t *testing.T, store storage.Store, title string, prio task.Priority, due *time.Time) int64 {
	t.Helper()
	tk := task.New(title, prio, "", now.AddDate(0, 0, -1))
	tk.Schedule.DueDate = due
	id, err := store.CreateTask(context.Background(), tk)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return id
}

func TestScheduleAbsolute(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	id := seedTask(t, store, "write report", task.PriorityMedium, nil)

	s := NewScheduler(store)
	r, err := s.Schedule(context.Background(), id, "tomorrow", task.ChannelConsole, false, now)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if r.ID == "" {
		t.Fatal("reminder id not assigned")
	}
	if want := time.Date(2026, 3, 5, 23, 59, 59, 0, time.UTC); !r.RemindAt.Equal(want) {
		t.Fatalf("RemindAt = %v, want %v", r.RemindAt, want)
	}

	got, err := store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(got.Schedule.Reminders) != 1 || got.Schedule.Reminders[0].ID != r.ID {
		t.Fatalf("reminder not persisted: %+v", got.Schedule.Reminders)
	}
}

func TestScheduleRelative(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	due := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)
	id := seedTask(t, store, "submit taxes", task.PriorityHigh, &due)
	s := NewScheduler(store)

	cases := []struct {
		spec string
		want time.Time
	}{
		{"2 hours before", due.Add(-2 * time.Hour)},
		{"1 day before", due.AddDate(0, 0, -1)},
		{"30m before", due.Add(-30 * time.Minute)},
		{"at due time", due},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.spec, func(t *testing.T) {
			r, err := s.Schedule(context.Background(), id, tc.spec, task.ChannelConsole, false, now)
			if err != nil {
				t.Fatalf("Schedule(%q): %v", tc.spec, err)
			}
			if !r.RemindAt.Equal(tc.want) {
				t.Fatalf("Schedule(%q) = %v, want %v", tc.spec, r.RemindAt, tc.want)
			}
		})
	}
}

func TestScheduleRelativeFrozenOnDueChange(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	due := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)
	id := seedTask(t, store, "review draft", task.PriorityMedium, &due)
	s := NewScheduler(store)

	r, err := s.Schedule(context.Background(), id, "2 hours before", task.ChannelConsole, false, now)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// Move the due date afterwards; the reminder must not follow.
	tk, _ := store.GetTask(context.Background(), id)
	moved := due.AddDate(0, 0, 7)
	meta := tk.Schedule
	meta.DueDate = &moved
	if err := store.UpdateSchedule(context.Background(), id, meta); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	tk, _ = store.GetTask(context.Background(), id)
	if !tk.Schedule.Reminders[0].RemindAt.Equal(r.RemindAt) {
		t.Fatalf("reminder moved with due date: %v", tk.Schedule.Reminders[0].RemindAt)
	}
}

func TestScheduleRejectsPast(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	due := now.Add(-time.Hour)
	id := seedTask(t, store, "late", task.PriorityLow, &due)
	s := NewScheduler(store)

	if _, err := s.Schedule(context.Background(), id, "at due time", task.ChannelConsole, false, now); !errors.Is(err, ErrReminderInPast) {
		t.Fatalf("got %v, want ErrReminderInPast", err)
	}
	if _, err := s.Schedule(context.Background(), id, "2020-01-01", task.ChannelConsole, false, now); !errors.Is(err, ErrReminderInPast) {
		t.Fatalf("got %v, want ErrReminderInPast", err)
	}
}

func TestScheduleRelativeNeedsDueDate(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	id := seedTask(t, store, "floating", task.PriorityLow, nil)
	s := NewScheduler(store)

	if _, err := s.Schedule(context.Background(), id, "1 day before", task.ChannelConsole, false, now); !errors.Is(err, ErrNoDueDate) {
		t.Fatalf("got %v, want ErrNoDueDate", err)
	}
}

func TestDueOrdering(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	s := NewScheduler(store)
	at := now.Add(-10 * time.Minute)

	lowID := seedTask(t, store, "low", task.PriorityLow, nil)
	highID := seedTask(t, store, "high", task.PriorityHigh, nil)
	earlyID := seedTask(t, store, "early", task.PriorityLow, nil)

	addReminder := func(id int64, remindAt, createdAt time.Time) {
		tk, err := store.GetTask(context.Background(), id)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		meta := tk.Schedule
		meta.Reminders = append(meta.Reminders, task.Reminder{
			ID:        tk.Title,
			RemindAt:  remindAt,
			Channel:   task.ChannelConsole,
			CreatedAt: createdAt,
		})
		if err := store.UpdateSchedule(context.Background(), id, meta); err != nil {
			t.Fatalf("UpdateSchedule: %v", err)
		}
	}

	addReminder(lowID, at, now.Add(-3*time.Hour))
	addReminder(highID, at, now.Add(-2*time.Hour))
	addReminder(earlyID, at.Add(-time.Hour), now.Add(-time.Hour))

	due, err := s.Due(context.Background(), now)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("expected 3 due reminders, got %d", len(due))
	}
	// Earliest remind_at first, then priority rank for the tied pair.
	if due[0].Title != "early" || due[1].Title != "high" || due[2].Title != "low" {
		t.Fatalf("wrong order: %s, %s, %s", due[0].Title, due[1].Title, due[2].Title)
	}
}

func TestDueSkipsSentFutureAndCompleted(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	s := NewScheduler(store)

	id := seedTask(t, store, "mixed", task.PriorityMedium, nil)
	tk, _ := store.GetTask(context.Background(), id)
	meta := tk.Schedule
	meta.Reminders = []task.Reminder{
		{ID: "sent", RemindAt: now.Add(-time.Hour), Sent: true, CreatedAt: now},
		{ID: "future", RemindAt: now.Add(time.Hour), CreatedAt: now},
		{ID: "due", RemindAt: now.Add(-time.Minute), CreatedAt: now},
	}
	if err := store.UpdateSchedule(context.Background(), id, meta); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	due, err := s.Due(context.Background(), now)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 || due[0].Reminder.ID != "due" {
		t.Fatalf("unexpected due set: %+v", due)
	}

	// Completing the task silences its reminders entirely.
	tk, _ = store.GetTask(context.Background(), id)
	tk.MarkCompleted(now)
	if err := store.UpdateTask(context.Background(), tk); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	due, err = s.Due(context.Background(), now)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("completed task still has due reminders: %+v", due)
	}
}

func TestMarkDeliveredOneShotAndRepeat(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	s := NewScheduler(store)

	id := seedTask(t, store, "standup", task.PriorityMedium, nil)
	tk, _ := store.GetTask(context.Background(), id)
	remindAt := now.Add(-time.Minute)
	meta := tk.Schedule
	meta.Reminders = []task.Reminder{
		{ID: "once", RemindAt: remindAt, CreatedAt: now},
		{ID: "nag", RemindAt: remindAt, Repeat: true, CreatedAt: now},
	}
	if err := store.UpdateSchedule(context.Background(), id, meta); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	due, err := s.Due(context.Background(), now)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if err := s.MarkDelivered(context.Background(), due, now); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	tk, _ = store.GetTask(context.Background(), id)
	for _, r := range tk.Schedule.Reminders {
		switch r.ID {
		case "once":
			if !r.Sent {
				t.Fatal("one-shot reminder not marked sent")
			}
		case "nag":
			if r.Sent {
				t.Fatal("repeat reminder must stay unsent")
			}
			if want := remindAt.Add(time.Hour); !r.RemindAt.Equal(want) {
				t.Fatalf("repeat re-enqueued at %v, want %v", r.RemindAt, want)
			}
		}
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	s := NewScheduler(store)
	id := seedTask(t, store, "cancel me", task.PriorityLow, nil)

	r, err := s.Schedule(context.Background(), id, "tomorrow", task.ChannelConsole, true, now)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Cancel(context.Background(), id, r.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	tk, _ := store.GetTask(context.Background(), id)
	if len(tk.Schedule.Reminders) != 0 {
		t.Fatalf("reminder survived cancel: %+v", tk.Schedule.Reminders)
	}
	if err := s.Cancel(context.Background(), id, r.ID); !errors.Is(err, ErrReminderNotFound) {
		t.Fatalf("got %v, want ErrReminderNotFound", err)
	}
}
