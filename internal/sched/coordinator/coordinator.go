// Package coordinator is the single entry point for schedule mutation. CLI
// and web callers go through it; it owns every write to a task's schedule
// metadata and publishes engine events on the bus.
package coordinator

import (
	"context"
	"errors"
	"time"

	"todosched/internal/eventbus"
	"todosched/internal/sched/dateparse"
	"todosched/internal/sched/overdue"
	"todosched/internal/sched/recur"
	"todosched/internal/sched/reminder"
	"todosched/internal/storage"
	"todosched/internal/task"
	"todosched/pkg/logx"
)

// ErrorKind classifies a failed operation for presentation layers.
type ErrorKind string

const (
	KindParseError            ErrorKind = "parse_error"
	KindReminderInPast        ErrorKind = "reminder_in_past"
	KindInvalidRecurrence     ErrorKind = "invalid_recurrence"
	KindTaskNotFound          ErrorKind = "task_not_found"
	KindMaterializationFailed ErrorKind = "materialization_failed"
	KindStoreUnavailable      ErrorKind = "store_unavailable"
)

// Result is the uniform operation outcome handed back to callers. A failed
// Result carries a machine-readable kind and a human-readable message; a
// successful one may still carry a warning (backdated due date).
type Result struct {
	OK        bool
	Data      any
	ErrorKind ErrorKind
	Message   string
	Warning   string
}

func ok(data any) Result    { return Result{OK: true, Data: data} }
func fail(err error) Result { return Result{ErrorKind: classify(err), Message: err.Error()} }

func classify(err error) ErrorKind {
	var pe *dateparse.ParseError
	switch {
	case errors.As(err, &pe):
		return KindParseError
	case errors.Is(err, reminder.ErrReminderInPast):
		return KindReminderInPast
	case errors.Is(err, reminder.ErrNoDueDate), errors.Is(err, reminder.ErrReminderNotFound):
		return KindParseError
	case errors.Is(err, recur.ErrInvalidPattern), errors.Is(err, ErrNoDueDateForRecurrence):
		return KindInvalidRecurrence
	case errors.Is(err, recur.ErrMaterializationFailed):
		return KindMaterializationFailed
	case errors.Is(err, storage.ErrNotFound):
		return KindTaskNotFound
	default:
		return KindStoreUnavailable
	}
}

// ErrNoDueDateForRecurrence rejects rule creation on a task with no anchor.
var ErrNoDueDateForRecurrence = errors.New("task needs a due date before a recurrence rule")

// NotificationSink receives due reminders for asynchronous delivery.
type NotificationSink interface {
	EnqueueReminder(d reminder.DueReminder)
}

// Coordinator wires the parser, reminder scheduler, recurrence engine and
// overdue monitor over one store.
type Coordinator struct {
	store     storage.Store
	reminders *reminder.Scheduler
	engine    *recur.Engine
	monitor   *overdue.Monitor
	bus       eventbus.Bus
	sink      NotificationSink
	log       logx.Logger
}

type Option func(*Coordinator)

// WithSink attaches the notification pipeline. Without one, due reminders are
// still returned and published on the bus, just not delivered anywhere.
func WithSink(s NotificationSink) Option { return func(c *Coordinator) { c.sink = s } }

func WithLogger(l logx.Logger) Option { return func(c *Coordinator) { c.log = l } }

func New(store storage.Store, bus eventbus.Bus, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		reminders: reminder.NewScheduler(store),
		engine:    recur.NewEngine(store),
		monitor:   overdue.NewMonitor(store),
		bus:       bus,
		log:       logx.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DueDateData is the Data payload of SetDueDate.
type DueDateData struct {
	TaskID   int64     `json:"task_id"`
	DueDate  time.Time `json:"due_date"`
	PastDate bool      `json:"past_date"`
}

// SetDueDate parses the expression and stores the due date. Backdating is
// allowed and flagged with a warning, not rejected.
func (c *Coordinator) SetDueDate(ctx context.Context, taskID int64, expr string, now time.Time) Result {
	res, err := dateparse.Parse(expr, now)
	if err != nil {
		return fail(err)
	}
	t, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return fail(err)
	}

	meta := t.Schedule
	meta.DueDate = &res.At
	if err := c.store.UpdateSchedule(ctx, taskID, meta); err != nil {
		return fail(err)
	}

	out := ok(DueDateData{TaskID: taskID, DueDate: res.At, PastDate: res.PastDate})
	if res.PastDate {
		out.Warning = "due date is in the past"
	}
	c.log.Debug("due date set", logx.Int64("task_id", taskID), logx.Time("due", res.At))
	return out
}

// ClearDueDate removes the due date. Reminders and the recurrence rule stay;
// relative reminders were frozen at schedule time and remain valid.
func (c *Coordinator) ClearDueDate(ctx context.Context, taskID int64) Result {
	t, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return fail(err)
	}
	meta := t.Schedule
	meta.DueDate = nil
	if err := c.store.UpdateSchedule(ctx, taskID, meta); err != nil {
		return fail(err)
	}
	return ok(nil)
}

// SetReminder schedules a reminder from an absolute or due-relative spec.
func (c *Coordinator) SetReminder(ctx context.Context, taskID int64, spec, channel string, repeat bool, now time.Time) Result {
	ch, err := task.ParseChannel(channel)
	if err != nil {
		return Result{ErrorKind: KindParseError, Message: err.Error()}
	}
	r, err := c.reminders.Schedule(ctx, taskID, spec, ch, repeat, now)
	if err != nil {
		return fail(err)
	}
	c.log.Debug("reminder scheduled",
		logx.Int64("task_id", taskID),
		logx.String("reminder_id", r.ID),
		logx.Time("remind_at", r.RemindAt))
	return ok(r)
}

func (c *Coordinator) CancelReminder(ctx context.Context, taskID int64, reminderID string) Result {
	if err := c.reminders.Cancel(ctx, taskID, reminderID); err != nil {
		return fail(err)
	}
	return ok(nil)
}

// SetRecurrence validates and attaches a recurrence rule anchored at the
// task's due date, with the next occurrence precomputed.
func (c *Coordinator) SetRecurrence(ctx context.Context, taskID int64, pattern task.Pattern, end task.End, autoCreate bool) Result {
	if err := recur.Validate(pattern, end); err != nil {
		return fail(err)
	}
	t, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return fail(err)
	}
	if t.Schedule.DueDate == nil {
		return fail(ErrNoDueDateForRecurrence)
	}

	rule := task.RecurrenceRule{
		Pattern:    pattern,
		Anchor:     *t.Schedule.DueDate,
		End:        end,
		AutoCreate: autoCreate,
	}
	if next, nerr := recur.Next(rule, rule.Anchor); nerr == nil {
		rule.Next = &next
	} else if errors.Is(nerr, recur.ErrTerminal) {
		return Result{ErrorKind: KindInvalidRecurrence, Message: "rule is already terminal at its anchor"}
	}

	meta := t.Schedule
	meta.Recurrence = &rule
	if err := c.store.UpdateSchedule(ctx, taskID, meta); err != nil {
		return fail(err)
	}
	return ok(rule)
}

// StopRecurrence detaches the rule; the task itself is untouched.
func (c *Coordinator) StopRecurrence(ctx context.Context, taskID int64) Result {
	t, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return fail(err)
	}
	meta := t.Schedule
	meta.Recurrence = nil
	if err := c.store.UpdateSchedule(ctx, taskID, meta); err != nil {
		return fail(err)
	}
	return ok(nil)
}

// OnTaskCompleted marks the task completed and, for an auto-creating
// recurrence rule, materializes the successor exactly once. Completion is
// never rolled back: a failed materialization is reported and retryable.
func (c *Coordinator) OnTaskCompleted(ctx context.Context, taskID int64, now time.Time) Result {
	t, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return fail(err)
	}
	if !t.Completed {
		t.MarkCompleted(now)
		if err := c.store.UpdateTask(ctx, t); err != nil {
			return fail(err)
		}
	}

	succ, err := c.engine.Materialize(ctx, t, now)
	switch {
	case err == nil:
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskMaterialized, Time: now, Data: succ})
		c.log.Info("recurrence materialized",
			logx.Int64("completed_id", taskID),
			logx.Int64("successor_id", succ.ID))
		return ok(succ)
	case errors.Is(err, recur.ErrNotRecurring), errors.Is(err, recur.ErrAlreadyMaterialized):
		return ok(nil)
	case errors.Is(err, recur.ErrTerminal):
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeRecurrenceExhausted, Time: now, Data: taskID})
		c.log.Info("recurrence exhausted", logx.Int64("task_id", taskID))
		return ok(nil)
	default:
		c.log.Warn("materialization failed", logx.Int64("task_id", taskID), logx.Err(err))
		return fail(err)
	}
}

// OnTaskDeleted removes the task; its reminders and rule go with it.
func (c *Coordinator) OnTaskDeleted(ctx context.Context, taskID int64) Result {
	if err := c.store.DeleteTask(ctx, taskID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fail(err)
	}
	return ok(nil)
}

// PollReminders drains due reminders: publishes a reminder.due event and
// enqueues a notification per reminder, then records delivery.
func (c *Coordinator) PollReminders(ctx context.Context, now time.Time) Result {
	due, err := c.reminders.Due(ctx, now)
	if err != nil {
		return fail(err)
	}
	for _, d := range due {
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderDue, Time: now, Data: d})
		if c.sink != nil {
			c.sink.EnqueueReminder(d)
		}
	}
	if len(due) > 0 {
		if err := c.reminders.MarkDelivered(ctx, due, now); err != nil {
			return fail(err)
		}
		c.log.Info("reminders delivered", logx.Int("count", len(due)))
	}
	return ok(due)
}

func (c *Coordinator) GetOverdue(ctx context.Context, now time.Time) Result {
	entries, err := c.monitor.Overdue(ctx, now)
	if err != nil {
		return fail(err)
	}
	return ok(entries)
}

func (c *Coordinator) GetUpcoming(ctx context.Context, now time.Time, days int, priority task.Priority) Result {
	buckets, err := c.monitor.Upcoming(ctx, now, days, priority)
	if err != nil {
		return fail(err)
	}
	return ok(buckets)
}
