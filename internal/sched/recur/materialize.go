package recur

import (
	"context"
	"errors"
	"fmt"
	"time"

	"todosched/internal/storage"
	"todosched/internal/task"
)

var (
	// ErrNotRecurring means the task carries no auto-creating recurrence rule.
	ErrNotRecurring = errors.New("task has no auto-creating recurrence rule")

	// ErrAlreadyMaterialized means another caller already created the successor.
	ErrAlreadyMaterialized = errors.New("successor already materialized")

	// ErrMaterializationFailed wraps store failures during successor creation.
	// The claim is released before returning, so the caller may retry.
	ErrMaterializationFailed = errors.New("recurrence materialization failed")
)

// Engine materializes successor tasks when a recurring task completes.
type Engine struct {
	store storage.Store
}

func NewEngine(store storage.Store) *Engine {
	return &Engine{store: store}
}

// Materialize creates the successor of a completed recurring task. The
// completed task's materialization flag is claimed first so that concurrent
// or repeated completion handling creates exactly one successor.
//
// A terminal rule returns ErrTerminal with no successor; the claim stays set
// since there is nothing left to create.
func (e *Engine) Materialize(ctx context.Context, completed task.Task, now time.Time) (task.Task, error) {
	rule := completed.Schedule.Recurrence
	if rule == nil || !rule.AutoCreate {
		return task.Task{}, ErrNotRecurring
	}

	claimed, err := e.store.ClaimMaterialization(ctx, completed.ID)
	if err != nil {
		return task.Task{}, fmt.Errorf("%w: claim: %v", ErrMaterializationFailed, err)
	}
	if !claimed {
		return task.Task{}, ErrAlreadyMaterialized
	}

	next, err := Next(*rule, rule.Anchor)
	if err != nil {
		if errors.Is(err, ErrTerminal) {
			return task.Task{}, ErrTerminal
		}
		e.release(ctx, completed.ID)
		return task.Task{}, err
	}

	succ := task.New(completed.Title, completed.Priority, completed.Category, now)
	succ.Schedule.DueDate = &next

	succRule := *rule
	succRule.Anchor = next
	succRule.Emitted++
	succRule.Next = nil
	if nn, nerr := Next(succRule, next); nerr == nil {
		succRule.Next = &nn
	}
	succ.Schedule.Recurrence = &succRule

	id, err := e.store.CreateTask(ctx, succ)
	if err != nil {
		e.release(ctx, completed.ID)
		return task.Task{}, fmt.Errorf("%w: create successor: %v", ErrMaterializationFailed, err)
	}
	succ.ID = id
	return succ, nil
}

// release undoes the materialization claim after a failed create so a retry
// can claim again. Best effort: a task that vanished mid-flight is ignored.
func (e *Engine) release(ctx context.Context, id int64) {
	t, err := e.store.GetTask(ctx, id)
	if err != nil {
		return
	}
	t.RecurrenceMaterialized = false
	_ = e.store.UpdateTask(ctx, t)
}
