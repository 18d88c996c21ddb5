// Package reminder schedules reminders against tasks and drains the ones that
// have come due.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"todosched/internal/sched/dateparse"
	"todosched/internal/storage"
	"todosched/internal/task"
)

// repeatInterval is how far a repeating reminder is pushed after each delivery
// until its task completes or the reminder is cancelled.
const repeatInterval = time.Hour

var (
	// ErrReminderInPast rejects a reminder that would already be due.
	ErrReminderInPast = errors.New("reminder time is in the past")

	// ErrNoDueDate rejects a relative spec on a task without a due date.
	ErrNoDueDate = errors.New("task has no due date to anchor a relative reminder")

	// ErrReminderNotFound means the reminder id matched nothing on the task.
	ErrReminderNotFound = errors.New("reminder not found")
)

var reRelBefore = regexp.MustCompile(`^(\d+)\s*(day|days|hour|hours|minute|minutes|min|mins)\s+before$`)

// Scheduler owns reminder creation, due-scan and delivery bookkeeping.
type Scheduler struct {
	store storage.Store
}

func NewScheduler(store storage.Store) *Scheduler {
	return &Scheduler{store: store}
}

// Schedule attaches a reminder to a task. The spec is either an absolute date
// expression ("tomorrow", "2026-09-01 09:00", "friday at 17:00") or a
// due-date-relative one ("2 hours before", "30m before", "at due time").
//
// Relative specs are resolved against the due date once, here; a later
// due-date change does not move already-scheduled reminders.
func (s *Scheduler) Schedule(ctx context.Context, taskID int64, spec string, channel task.Channel, repeat bool, now time.Time) (task.Reminder, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return task.Reminder{}, err
	}

	remindAt, err := s.resolve(t, spec, now)
	if err != nil {
		return task.Reminder{}, err
	}
	if remindAt.Before(now) {
		return task.Reminder{}, fmt.Errorf("%w: %s", ErrReminderInPast, remindAt.Format(time.RFC3339))
	}

	r := task.Reminder{
		ID:        uuid.NewString(),
		RemindAt:  remindAt,
		Channel:   channel,
		Repeat:    repeat,
		CreatedAt: now,
	}
	meta := t.Schedule
	meta.Reminders = append(meta.Reminders, r)
	if err := s.store.UpdateSchedule(ctx, taskID, meta); err != nil {
		return task.Reminder{}, err
	}
	return r, nil
}

func (s *Scheduler) resolve(t task.Task, spec string, now time.Time) (time.Time, error) {
	norm := strings.ToLower(strings.TrimSpace(spec))

	if norm == "at due time" {
		if t.Schedule.DueDate == nil {
			return time.Time{}, ErrNoDueDate
		}
		return *t.Schedule.DueDate, nil
	}

	if before, ok := strings.CutSuffix(norm, " before"); ok {
		d, err := parseOffset(norm, before)
		if err != nil {
			return time.Time{}, err
		}
		if t.Schedule.DueDate == nil {
			return time.Time{}, ErrNoDueDate
		}
		return t.Schedule.DueDate.Add(-d), nil
	}

	res, err := dateparse.Parse(spec, now)
	if err != nil {
		return time.Time{}, err
	}
	return res.At, nil
}

// parseOffset accepts Go durations ("90m before") and spelled-out units
// ("2 hours before", "1 day before").
func parseOffset(full, head string) (time.Duration, error) {
	head = strings.TrimSpace(head)
	if m := reRelBefore.FindStringSubmatch(head + " before"); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch {
		case strings.HasPrefix(m[2], "day"):
			return time.Duration(n) * 24 * time.Hour, nil
		case strings.HasPrefix(m[2], "hour"):
			return time.Duration(n) * time.Hour, nil
		default:
			return time.Duration(n) * time.Minute, nil
		}
	}
	d, err := time.ParseDuration(head)
	if err != nil || d <= 0 {
		return 0, &dateparse.ParseError{Raw: full, Suggestion: `try "2 hours before", "30m before" or "at due time"`}
	}
	return d, nil
}

// DueReminder pairs a due reminder with its owning task, with enough context
// for delivery and ordering.
type DueReminder struct {
	TaskID   int64
	Title    string
	Priority task.Priority
	DueDate  *time.Time
	Reminder task.Reminder
}

// Due returns every unsent reminder with remind_at <= now, ordered by
// remind_at ascending, then priority rank, then reminder creation time.
// Completed tasks are skipped.
func (s *Scheduler) Due(ctx context.Context, now time.Time) ([]DueReminder, error) {
	tasks, err := s.store.ListScheduled(ctx)
	if err != nil {
		return nil, err
	}

	var due []DueReminder
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		for _, r := range t.Schedule.Reminders {
			if r.Sent || r.RemindAt.After(now) {
				continue
			}
			due = append(due, DueReminder{
				TaskID:   t.ID,
				Title:    t.Title,
				Priority: t.Priority,
				DueDate:  t.Schedule.DueDate,
				Reminder: r,
			})
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i], due[j]
		if !a.Reminder.RemindAt.Equal(b.Reminder.RemindAt) {
			return a.Reminder.RemindAt.Before(b.Reminder.RemindAt)
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return a.Reminder.CreatedAt.Before(b.Reminder.CreatedAt)
	})
	return due, nil
}

// MarkDelivered records delivery for a batch of due reminders. One-shot
// reminders flip to Sent; a repeating reminder on a still-incomplete task is
// pushed forward by an hour instead, so it fires again.
func (s *Scheduler) MarkDelivered(ctx context.Context, due []DueReminder, now time.Time) error {
	byTask := map[int64][]DueReminder{}
	for _, d := range due {
		byTask[d.TaskID] = append(byTask[d.TaskID], d)
	}

	var firstErr error
	for taskID, batch := range byTask {
		t, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		meta := t.Schedule
		for _, d := range batch {
			for i := range meta.Reminders {
				if meta.Reminders[i].ID != d.Reminder.ID {
					continue
				}
				if meta.Reminders[i].Repeat && !t.Completed {
					meta.Reminders[i].RemindAt = meta.Reminders[i].RemindAt.Add(repeatInterval)
					meta.Reminders[i].Sent = false
				} else {
					meta.Reminders[i].Sent = true
				}
				break
			}
		}
		if err := s.store.UpdateSchedule(ctx, taskID, meta); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Cancel removes a reminder from its task.
func (s *Scheduler) Cancel(ctx context.Context, taskID int64, reminderID string) error {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	meta := t.Schedule
	for i, r := range meta.Reminders {
		if r.ID == reminderID {
			meta.Reminders = append(meta.Reminders[:i:i], meta.Reminders[i+1:]...)
			return s.store.UpdateSchedule(ctx, taskID, meta)
		}
	}
	return ErrReminderNotFound
}
