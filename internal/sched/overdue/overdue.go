// Package overdue provides read-only views over task due dates: the overdue
// report and the upcoming-by-day report.
package overdue

import (
	"context"
	"sort"
	"time"

	"todosched/internal/storage"
	"todosched/internal/task"
)

// Entry is one overdue task with how far past due it is.
type Entry struct {
	Task    task.Task
	Overdue time.Duration
}

// Bucket groups upcoming tasks by civil day.
type Bucket struct {
	Date  time.Time // midnight, in the due dates' location
	Tasks []task.Task
}

// Monitor computes overdue and upcoming reports. It never mutates tasks.
type Monitor struct {
	store storage.Store
}

func NewMonitor(store storage.Store) *Monitor {
	return &Monitor{store: store}
}

// Overdue returns incomplete tasks whose due date is strictly before now,
// sorted by priority rank and, within a rank, longest overdue first. A task
// due exactly at now is not overdue yet.
func (m *Monitor) Overdue(ctx context.Context, now time.Time) ([]Entry, error) {
	tasks, err := m.store.ListScheduled(ctx)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, t := range tasks {
		if t.Completed || t.Schedule.DueDate == nil {
			continue
		}
		due := *t.Schedule.DueDate
		if !due.Before(now) {
			continue
		}
		out = append(out, Entry{Task: t, Overdue: now.Sub(due)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Task.Priority.Rank() != b.Task.Priority.Rank() {
			return a.Task.Priority.Rank() < b.Task.Priority.Rank()
		}
		return a.Overdue > b.Overdue
	})
	return out, nil
}

// Upcoming returns incomplete tasks due in the window [now, now+days], grouped
// by calendar day in ascending order. An empty priority filter includes all
// priorities. A task due exactly at now counts as upcoming, not overdue.
func (m *Monitor) Upcoming(ctx context.Context, now time.Time, days int, priority task.Priority) ([]Bucket, error) {
	tasks, err := m.store.ListScheduled(ctx)
	if err != nil {
		return nil, err
	}

	limit := now.AddDate(0, 0, days)
	byDay := map[time.Time][]task.Task{}
	for _, t := range tasks {
		if t.Completed || t.Schedule.DueDate == nil {
			continue
		}
		if priority != "" && t.Priority != priority {
			continue
		}
		due := *t.Schedule.DueDate
		if due.Before(now) || due.After(limit) {
			continue
		}
		day := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, due.Location())
		byDay[day] = append(byDay[day], t)
	}

	buckets := make([]Bucket, 0, len(byDay))
	for day, ts := range byDay {
		sort.SliceStable(ts, func(i, j int) bool {
			a, b := ts[i], ts[j]
			if !a.Schedule.DueDate.Equal(*b.Schedule.DueDate) {
				return a.Schedule.DueDate.Before(*b.Schedule.DueDate)
			}
			return a.Priority.Rank() < b.Priority.Rank()
		})
		buckets = append(buckets, Bucket{Date: day, Tasks: ts})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Date.Before(buckets[j].Date) })
	return buckets, nil
}
