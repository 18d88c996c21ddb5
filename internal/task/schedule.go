package task

import (
	"fmt"
	"strings"
	"time"
)

// Metadata holds the schedule-relevant state of a single task. It is owned
// exclusively by that task and travels embedded in the task record; the engine
// mutates it only through the coordinator.
type Metadata struct {
	DueDate    *time.Time      `json:"due_date,omitempty"`
	Reminders  []Reminder      `json:"reminders,omitempty"`
	Recurrence *RecurrenceRule `json:"recurrence,omitempty"`
}

// Channel selects how a due reminder is delivered.
type Channel string

const (
	ChannelConsole      Channel = "console"
	ChannelNotification Channel = "notification"
	ChannelEmail        Channel = "email"
)

func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "console":
		return ChannelConsole, nil
	case "notification":
		return ChannelNotification, nil
	case "email":
		return ChannelEmail, nil
	default:
		return "", fmt.Errorf("invalid channel %q (use console, notification or email)", s)
	}
}

// Reminder is a single scheduled reminder.
//
// RemindAt is immutable once computed; only an explicit reschedule (which also
// resets Sent) may change it. A sent, non-repeating reminder is never
// redelivered.
type Reminder struct {
	ID       string    `json:"id"`
	RemindAt time.Time `json:"remind_at"`
	Channel  Channel   `json:"channel"`
	Repeat   bool      `json:"repeat"`
	Sent     bool      `json:"sent"`

	// CreatedAt breaks ordering ties between reminders due at the same instant
	// for tasks of equal priority.
	CreatedAt time.Time `json:"created_at"`
}

// PatternKind tags the recurrence pattern variant.
type PatternKind string

const (
	PatternDaily      PatternKind = "daily"
	PatternWeekly     PatternKind = "weekly"
	PatternMonthly    PatternKind = "monthly"
	PatternYearly     PatternKind = "yearly"
	PatternWeekdays   PatternKind = "weekdays"    // recur on a fixed set of weekdays
	PatternInterval   PatternKind = "interval"    // every N days/weeks/months/years
	PatternNthWeekday PatternKind = "nth_weekday" // Nth <weekday> of each month
)

// IntervalUnit is the step unit for PatternInterval.
type IntervalUnit string

const (
	UnitDays   IntervalUnit = "days"
	UnitWeeks  IntervalUnit = "weeks"
	UnitMonths IntervalUnit = "months"
	UnitYears  IntervalUnit = "years"
)

// Pattern describes when the next occurrence falls relative to the anchor.
type Pattern struct {
	Kind PatternKind `json:"kind"`

	// Weekdays is the weekday set for PatternWeekdays (time.Sunday == 0).
	Weekdays []time.Weekday `json:"weekdays,omitempty"`

	// Every/Unit step for PatternInterval ("every 3 days").
	Every int          `json:"every,omitempty"`
	Unit  IntervalUnit `json:"unit,omitempty"`

	// Nth/Weekday for PatternNthWeekday ("2nd tuesday of the month").
	Nth     int          `json:"nth,omitempty"`
	Weekday time.Weekday `json:"weekday,omitempty"`
}

// EndKind tags the recurrence end condition.
type EndKind string

const (
	EndNever      EndKind = "never"
	EndOnDate     EndKind = "on_date"
	EndAfterCount EndKind = "after_count"
)

type End struct {
	Kind  EndKind    `json:"kind"`
	Date  *time.Time `json:"date,omitempty"`
	Count int        `json:"count,omitempty"`
}

// RecurrenceRule drives automatic creation of the next task occurrence.
//
// Invariants:
//   - Next, when cached, is strictly later than Anchor.
//   - Once the end condition is met the rule is terminal: Next is nil and no
//     further occurrences are emitted.
type RecurrenceRule struct {
	Pattern Pattern `json:"pattern"`

	// Anchor is the due date the pattern is computed relative to. It advances
	// to the new occurrence's due date each time the rule materializes.
	Anchor time.Time  `json:"anchor"`
	Next   *time.Time `json:"next,omitempty"`

	End End `json:"end"`

	// Emitted counts occurrences materialized so far (across the whole chain;
	// the rule is copied onto each successor with this counter carried over).
	Emitted int `json:"emitted"`

	AutoCreate bool `json:"auto_create"`
}

// Terminal reports whether the rule's end condition is already met for the
// given candidate occurrence date.
func (r *RecurrenceRule) Terminal(candidate time.Time) bool {
	switch r.End.Kind {
	case EndOnDate:
		return r.End.Date != nil && candidate.After(*r.End.Date)
	case EndAfterCount:
		return r.Emitted >= r.End.Count
	default:
		return false
	}
}
