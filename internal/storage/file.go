package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"todosched/internal/task"
	logx "todosched/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// The whole task set is kept in memory and written as one JSON snapshot on
// every mutation, via a temp file + atomic rename so a crash mid-write never
// corrupts the store.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	path   string
	tasks  map[int64]task.Task
	nextID int64
}

type fileSnapshot struct {
	NextID int64       `json:"next_id"`
	Tasks  []task.Task `json:"tasks"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s := &fileStore{log: log, path: path, tasks: map[int64]task.Task{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) load() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("corrupt store file %s: %w", s.path, err)
	}
	for _, t := range snap.Tasks {
		s.tasks[t.ID] = t
		if t.ID > s.nextID {
			s.nextID = t.ID
		}
	}
	if snap.NextID > s.nextID {
		s.nextID = snap.NextID
	}
	return nil
}

// flushLocked writes the snapshot with temp file + rename.
func (s *fileStore) flushLocked() error {
	snap := fileSnapshot{NextID: s.nextID, Tasks: make([]task.Task, 0, len(s.tasks))}
	for _, t := range s.tasks {
		snap.Tasks = append(snap.Tasks, t)
	}
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].ID < snap.Tasks[j].ID })

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *fileStore) GetTask(ctx context.Context, id int64) (task.Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, ErrNotFound
	}
	return cloneTask(t), nil
}

func (s *fileStore) CreateTask(ctx context.Context, t task.Task) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	s.tasks[t.ID] = cloneTask(t)
	if err := s.flushLocked(); err != nil {
		delete(s.tasks, t.ID)
		s.nextID--
		return 0, err
	}
	return t.ID, nil
}

func (s *fileStore) UpdateTask(ctx context.Context, t task.Task) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.tasks[t.ID]
	if !ok {
		return ErrNotFound
	}
	s.tasks[t.ID] = cloneTask(t)
	if err := s.flushLocked(); err != nil {
		s.tasks[t.ID] = prev
		return err
	}
	return nil
}

func (s *fileStore) UpdateSchedule(ctx context.Context, id int64, meta task.Metadata) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t := prev
	t.Schedule = cloneMetadata(meta)
	t.UpdatedAt = time.Now()
	s.tasks[id] = t
	if err := s.flushLocked(); err != nil {
		s.tasks[id] = prev
		return err
	}
	return nil
}

func (s *fileStore) ClaimMaterialization(ctx context.Context, id int64) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if prev.RecurrenceMaterialized {
		return false, nil
	}
	t := prev
	t.RecurrenceMaterialized = true
	t.UpdatedAt = time.Now()
	s.tasks[id] = t
	if err := s.flushLocked(); err != nil {
		s.tasks[id] = prev
		return false, err
	}
	return true, nil
}

func (s *fileStore) DeleteTask(ctx context.Context, id int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	if err := s.flushLocked(); err != nil {
		s.tasks[id] = prev
		return err
	}
	return nil
}

func (s *fileStore) ListScheduled(ctx context.Context) ([]task.Task, error) {
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

func (s *fileStore) Close() error { return nil }
