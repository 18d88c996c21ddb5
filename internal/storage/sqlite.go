package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"todosched/internal/task"
	logx "todosched/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store.path is required for sqlite driver")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("%w: migrate: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const taskColumns = `id, title, priority, category, status, completed,
	created_at, updated_at, completed_at, recurrence_materialized, schedule`

func (s *sqliteStore) GetTask(ctx context.Context, id int64) (task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, ErrNotFound
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return t, nil
}

func (s *sqliteStore) CreateTask(ctx context.Context, t task.Task) (int64, error) {
	sched, err := marshalSchedule(t.Schedule)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(title, priority, category, status, completed,
		   created_at, updated_at, completed_at, recurrence_materialized, schedule)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		t.Title, string(t.Priority), t.Category, string(t.Status), boolInt(t.Completed),
		fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt), fmtTimePtr(t.CompletedAt),
		boolInt(t.RecurrenceMaterialized), sched,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return id, nil
}

func (s *sqliteStore) UpdateTask(ctx context.Context, t task.Task) error {
	sched, err := marshalSchedule(t.Schedule)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title=?, priority=?, category=?, status=?, completed=?,
		   updated_at=?, completed_at=?, recurrence_materialized=?, schedule=?
		 WHERE id=?`,
		t.Title, string(t.Priority), t.Category, string(t.Status), boolInt(t.Completed),
		fmtTime(t.UpdatedAt), fmtTimePtr(t.CompletedAt),
		boolInt(t.RecurrenceMaterialized), sched, t.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return requireRow(res)
}

func (s *sqliteStore) UpdateSchedule(ctx context.Context, id int64, meta task.Metadata) error {
	sched, err := marshalSchedule(meta)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET schedule=?, updated_at=? WHERE id=?`,
		sched, fmtTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return requireRow(res)
}

// ClaimMaterialization relies on SQLite's single-writer semantics: the UPDATE
// with the flag guard is the atomic read-check-write.
func (s *sqliteStore) ClaimMaterialization(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET recurrence_materialized=1, updated_at=?
		 WHERE id=? AND recurrence_materialized=0`,
		fmtTime(time.Now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 1 {
		return true, nil
	}
	// Lost the claim, or the task is gone; distinguish the two.
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id=?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return false, nil
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return requireRow(res)
}

func (s *sqliteStore) ListScheduled(ctx context.Context) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE schedule IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// ---- row mapping ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (task.Task, error) {
	var (
		t                task.Task
		prio, status     string
		completed        int
		created, updated string
		completedAt      sql.NullString
		materialized     int
		sched            sql.NullString
	)
	if err := r.Scan(&t.ID, &t.Title, &prio, &t.Category, &status, &completed,
		&created, &updated, &completedAt, &materialized, &sched); err != nil {
		return task.Task{}, err
	}
	t.Priority = task.Priority(prio)
	t.Status = task.Status(status)
	t.Completed = completed != 0
	t.RecurrenceMaterialized = materialized != 0

	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return task.Task{}, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return task.Task{}, err
	}
	if completedAt.Valid && completedAt.String != "" {
		at, err := parseTime(completedAt.String)
		if err != nil {
			return task.Task{}, err
		}
		t.CompletedAt = &at
	}
	if sched.Valid && sched.String != "" {
		if err := json.Unmarshal([]byte(sched.String), &t.Schedule); err != nil {
			return task.Task{}, fmt.Errorf("corrupt schedule for task %d: %w", t.ID, err)
		}
	}
	return t, nil
}

// marshalSchedule stores empty metadata as NULL so ListScheduled can filter in SQL.
func marshalSchedule(m task.Metadata) (any, error) {
	if m.DueDate == nil && len(m.Reminders) == 0 && m.Recurrence == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
