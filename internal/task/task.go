package task

import (
	"fmt"
	"strings"
	"time"
)

// Priority orders tasks in overdue/reminder output: high before medium before low.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority parses a priority string (case-insensitive).
// Empty input yields the default (medium).
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	default:
		return "", fmt.Errorf("invalid priority %q (use high, medium or low)", s)
	}
}

// Rank returns the sort rank of a priority (lower sorts first).
// Unknown values rank after low so malformed records never outrank real ones.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return StatusPending, nil
	case "pending":
		return StatusPending, nil
	case "in_progress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	default:
		return "", fmt.Errorf("invalid status %q (use pending, in_progress or completed)", s)
	}
}

// Task is the task record as persisted by the task store.
//
// The engine owns only the schedule-relevant fields (Schedule,
// RecurrenceMaterialized); everything else belongs to the CRUD layer and is
// copied verbatim when a recurring task is materialized.
type Task struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	Priority Priority `json:"priority"`
	Category string   `json:"category,omitempty"`
	Status   Status   `json:"status"`

	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// RecurrenceMaterialized guards against double materialization: it is set
	// atomically (read-check-write in the store) the moment a successor task is
	// created for this task's completion.
	RecurrenceMaterialized bool `json:"recurrence_materialized,omitempty"`

	Schedule Metadata `json:"schedule"`
}

// New returns a pending task with timestamps set.
// The store assigns the ID on create.
func New(title string, prio Priority, category string, now time.Time) Task {
	if prio == "" {
		prio = PriorityMedium
	}
	if strings.TrimSpace(category) == "" {
		category = "general"
	}
	return Task{
		Title:     strings.TrimSpace(title),
		Priority:  prio,
		Category:  category,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (t *Task) MarkCompleted(now time.Time) {
	t.Completed = true
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
}
