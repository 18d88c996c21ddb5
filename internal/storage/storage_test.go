package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"todosched/internal/task"
	"todosched/pkg/logx"
)

var now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

// contract runs the Store behavior shared by all drivers.
func contract(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("crud roundtrip", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		due := now.Add(24 * time.Hour)
		in := task.New("pay rent", task.PriorityHigh, "finance", now)
		in.Schedule.DueDate = &due
		in.Schedule.Reminders = []task.Reminder{{
			ID: "r1", RemindAt: due.Add(-time.Hour), Channel: task.ChannelEmail, CreatedAt: now,
		}}
		in.Schedule.Recurrence = &task.RecurrenceRule{
			Pattern:    task.Pattern{Kind: task.PatternMonthly},
			Anchor:     due,
			End:        task.End{Kind: task.EndNever},
			AutoCreate: true,
		}

		id, err := s.CreateTask(ctx, in)
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		got, err := s.GetTask(ctx, id)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.Title != "pay rent" || got.Priority != task.PriorityHigh || got.Category != "finance" {
			t.Fatalf("roundtrip lost fields: %+v", got)
		}
		if got.Schedule.DueDate == nil || !got.Schedule.DueDate.Equal(due) {
			t.Fatalf("due = %v, want %v", got.Schedule.DueDate, due)
		}
		if len(got.Schedule.Reminders) != 1 || got.Schedule.Reminders[0].Channel != task.ChannelEmail {
			t.Fatalf("reminders = %+v", got.Schedule.Reminders)
		}
		if got.Schedule.Recurrence == nil || got.Schedule.Recurrence.Pattern.Kind != task.PatternMonthly {
			t.Fatalf("recurrence = %+v", got.Schedule.Recurrence)
		}

		got.MarkCompleted(now)
		if err := s.UpdateTask(ctx, got); err != nil {
			t.Fatalf("UpdateTask: %v", err)
		}
		again, _ := s.GetTask(ctx, id)
		if !again.Completed || again.CompletedAt == nil {
			t.Fatalf("completion lost: %+v", again)
		}

		if err := s.DeleteTask(ctx, id); err != nil {
			t.Fatalf("DeleteTask: %v", err)
		}
		if _, err := s.GetTask(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("after delete: %v", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if _, err := s.GetTask(ctx, 404); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetTask: %v", err)
		}
		if err := s.UpdateSchedule(ctx, 404, task.Metadata{}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("UpdateSchedule: %v", err)
		}
		if _, err := s.ClaimMaterialization(ctx, 404); !errors.Is(err, ErrNotFound) {
			t.Fatalf("ClaimMaterialization: %v", err)
		}
	})

	t.Run("claim is single winner", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		id, err := s.CreateTask(ctx, task.New("recurring", task.PriorityMedium, "", now))
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}

		const callers = 8
		var wg sync.WaitGroup
		wins := make(chan bool, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.ClaimMaterialization(ctx, id)
				if err != nil {
					t.Errorf("ClaimMaterialization: %v", err)
					return
				}
				wins <- ok
			}()
		}
		wg.Wait()
		close(wins)

		won := 0
		for ok := range wins {
			if ok {
				won++
			}
		}
		if won != 1 {
			t.Fatalf("claim won by %d callers, want exactly 1", won)
		}
	})

	t.Run("list scheduled filters bare tasks", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if _, err := s.CreateTask(ctx, task.New("bare", task.PriorityLow, "", now)); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		due := now.Add(time.Hour)
		withDue := task.New("scheduled", task.PriorityLow, "", now)
		withDue.Schedule.DueDate = &due
		if _, err := s.CreateTask(ctx, withDue); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}

		out, err := s.ListScheduled(ctx)
		if err != nil {
			t.Fatalf("ListScheduled: %v", err)
		}
		if len(out) != 1 || out[0].Title != "scheduled" {
			t.Fatalf("ListScheduled = %+v", out)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	contract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	contract(t, func(t *testing.T) Store {
		s, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "tasks.json")}, logx.Nop())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	contract(t, func(t *testing.T) Store {
		s, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "tasks.db")}, logx.Nop())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tasks.json")
	ctx := context.Background()

	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	due := now.Add(time.Hour)
	tk := task.New("survives", task.PriorityHigh, "", now)
	tk.Schedule.DueDate = &due
	id, err := s.CreateTask(ctx, tk)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask after reopen: %v", err)
	}
	if got.Title != "survives" || got.Schedule.DueDate == nil {
		t.Fatalf("record lost on reopen: %+v", got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
