package storage

import (
	"context"
	"errors"
	"time"

	"todosched/internal/task"
)

var (
	// ErrNotFound is returned when the referenced task does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrConflict is returned when a single-task update lost a concurrent race
	// and should be re-read and retried by the caller.
	ErrConflict = errors.New("task update conflict")

	// ErrUnavailable wraps transient backend failures (I/O, locked database).
	ErrUnavailable = errors.New("task store unavailable")
)

// Config configures the task store.
//
// Driver values:
//   - "memory": mutex-guarded in-memory map
//   - "file":   JSON snapshot file (atomic rename on write)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the task store contract the engine depends on.
//
// All operations are atomic at the single-task granularity and complete or fail
// within the backend's own bounded timeout.
type Store interface {
	GetTask(ctx context.Context, id int64) (task.Task, error)
	CreateTask(ctx context.Context, t task.Task) (int64, error)
	UpdateTask(ctx context.Context, t task.Task) error

	// UpdateSchedule replaces the task's schedule metadata in one write.
	UpdateSchedule(ctx context.Context, id int64, meta task.Metadata) error

	// ClaimMaterialization atomically flips the task's recurrence_materialized
	// flag from false to true. It returns true only for the single caller that
	// won the claim; later callers get false. This is the idempotency guard for
	// recurrence materialization.
	ClaimMaterialization(ctx context.Context, id int64) (bool, error)

	DeleteTask(ctx context.Context, id int64) error

	// ListScheduled returns every task carrying schedule data (a due date,
	// reminders, or a recurrence rule). Used by the poll loop and the
	// overdue/upcoming queries.
	ListScheduled(ctx context.Context) ([]task.Task, error)

	Close() error
}

// HasSchedule reports whether a task carries any schedule-relevant data.
func HasSchedule(t task.Task) bool {
	m := t.Schedule
	return m.DueDate != nil || len(m.Reminders) > 0 || m.Recurrence != nil
}
