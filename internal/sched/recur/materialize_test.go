package recur

import (
	"context"
	"errors"
	"testing"
	"time"

	"todosched/internal/storage"
	"todosched/internal/task"
)

func seedRecurring(t *testing.T, store storage.Store, due time.Time, end task.End) task.Task {
	t.Helper()
	now := due.AddDate(0, 0, -1)
	tk := task.New("water plants", task.PriorityHigh, "home", now)
	tk.Schedule.DueDate = &due
	tk.Schedule.Recurrence = &task.RecurrenceRule{
		Pattern:    task.Pattern{Kind: task.PatternDaily},
		Anchor:     due,
		End:        end,
		AutoCreate: true,
	}
	id, err := store.CreateTask(context.Background(), tk)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	tk.ID = id

	tk.MarkCompleted(due)
	if err := store.UpdateTask(context.Background(), tk); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	return tk
}

func TestMaterializeCreatesSuccessor(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	due := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	completed := seedRecurring(t, store, due, task.End{Kind: task.EndNever})

	eng := NewEngine(store)
	now := due.Add(time.Hour)
	succ, err := eng.Materialize(context.Background(), completed, now)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if succ.ID == completed.ID {
		t.Fatal("successor reused the completed task's id")
	}
	if succ.Title != completed.Title || succ.Priority != completed.Priority || succ.Category != completed.Category {
		t.Fatalf("successor lost identity fields: %+v", succ)
	}
	if succ.Status != task.StatusPending || succ.Completed {
		t.Fatalf("successor not pending: %+v", succ)
	}
	wantDue := due.AddDate(0, 0, 1)
	if succ.Schedule.DueDate == nil || !succ.Schedule.DueDate.Equal(wantDue) {
		t.Fatalf("successor due = %v, want %v", succ.Schedule.DueDate, wantDue)
	}
	r := succ.Schedule.Recurrence
	if r == nil || !r.Anchor.Equal(wantDue) || r.Emitted != 1 {
		t.Fatalf("successor rule not advanced: %+v", r)
	}
	if r.Next == nil || !r.Next.Equal(wantDue.AddDate(0, 0, 1)) {
		t.Fatalf("successor cached next = %v", r.Next)
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	due := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	completed := seedRecurring(t, store, due, task.End{Kind: task.EndNever})

	eng := NewEngine(store)
	if _, err := eng.Materialize(context.Background(), completed, due); err != nil {
		t.Fatalf("first Materialize: %v", err)
	}
	if _, err := eng.Materialize(context.Background(), completed, due); !errors.Is(err, ErrAlreadyMaterialized) {
		t.Fatalf("second Materialize: got %v, want ErrAlreadyMaterialized", err)
	}

	all, err := store.ListScheduled(context.Background())
	if err != nil {
		t.Fatalf("ListScheduled: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected completed + one successor, got %d tasks", len(all))
	}
}

func TestMaterializeTerminalRule(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	due := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	completed := seedRecurring(t, store, due, task.End{Kind: task.EndAfterCount, Count: 3})
	completed.Schedule.Recurrence.Emitted = 3
	if err := store.UpdateTask(context.Background(), completed); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	eng := NewEngine(store)
	if _, err := eng.Materialize(context.Background(), completed, due); !errors.Is(err, ErrTerminal) {
		t.Fatalf("got %v, want ErrTerminal", err)
	}
}

func TestMaterializeNonRecurring(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	tk := task.New("one-off", task.PriorityLow, "", time.Now())
	if _, err := NewEngine(store).Materialize(context.Background(), tk, time.Now()); !errors.Is(err, ErrNotRecurring) {
		t.Fatalf("got %v, want ErrNotRecurring", err)
	}
}
