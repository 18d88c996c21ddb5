package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"todosched/internal/task"
)

// memoryStore keeps tasks in a mutex-guarded map. The claim primitive has the
// same semantics as the SQL drivers: exactly one caller wins.
type memoryStore struct {
	mu     sync.Mutex
	tasks  map[int64]task.Task
	nextID int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{tasks: map[int64]task.Task{}}
}

func (s *memoryStore) GetTask(ctx context.Context, id int64) (task.Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, ErrNotFound
	}
	return cloneTask(t), nil
}

func (s *memoryStore) CreateTask(ctx context.Context, t task.Task) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	s.tasks[t.ID] = cloneTask(t)
	return t.ID, nil
}

func (s *memoryStore) UpdateTask(ctx context.Context, t task.Task) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

func (s *memoryStore) UpdateSchedule(ctx context.Context, id int64, meta task.Metadata) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.Schedule = cloneMetadata(meta)
	t.UpdatedAt = time.Now()
	s.tasks[id] = t
	return nil
}

func (s *memoryStore) ClaimMaterialization(ctx context.Context, id int64) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.RecurrenceMaterialized {
		return false, nil
	}
	t.RecurrenceMaterialized = true
	t.UpdatedAt = time.Now()
	s.tasks[id] = t
	return true, nil
}

func (s *memoryStore) DeleteTask(ctx context.Context, id int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memoryStore) ListScheduled(ctx context.Context) ([]task.Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if HasSchedule(t) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) Close() error { return nil }

// cloneTask deep-copies the schedule slices/pointers so callers can't mutate
// stored state behind the store's back.
func cloneTask(t task.Task) task.Task {
	t.Schedule = cloneMetadata(t.Schedule)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		t.CompletedAt = &at
	}
	return t
}

func cloneMetadata(m task.Metadata) task.Metadata {
	if m.DueDate != nil {
		d := *m.DueDate
		m.DueDate = &d
	}
	if len(m.Reminders) > 0 {
		m.Reminders = append([]task.Reminder(nil), m.Reminders...)
	}
	if m.Recurrence != nil {
		r := *m.Recurrence
		if r.Next != nil {
			n := *r.Next
			r.Next = &n
		}
		if r.End.Date != nil {
			d := *r.End.Date
			r.End.Date = &d
		}
		if len(r.Pattern.Weekdays) > 0 {
			r.Pattern.Weekdays = append([]time.Weekday(nil), r.Pattern.Weekdays...)
		}
		m.Recurrence = &r
	}
	return m
}
