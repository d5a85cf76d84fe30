package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/chatagent/pkg/models"
)

// schemaStatements is valid for both SQLite and Postgres. Timestamps are stored as
// unix nanoseconds so ordering survives either driver.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS memory_entries (
		session_id TEXT NOT NULL,
		mem_key TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (session_id, mem_key)
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_tasks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		trigger_spec TEXT NOT NULL,
		callback TEXT NOT NULL,
		description TEXT NOT NULL,
		next_run BIGINT NOT NULL,
		last_run BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS scheduled_tasks_next_run ON scheduled_tasks (next_run)`,
	`CREATE INDEX IF NOT EXISTS scheduled_tasks_session ON scheduled_tasks (session_id)`,
	`CREATE TABLE IF NOT EXISTS session_history (
		session_id TEXT PRIMARY KEY,
		messages TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
}

// sqlStore implements MemoryStore, ScheduleStore and HistoryStore over database/sql.
type sqlStore struct {
	db       *sql.DB
	numbered bool // Postgres-style $n placeholders
}

func newSQLStores(db *sql.DB, numbered bool) StoreSet {
	s := &sqlStore{db: db, numbered: numbered}
	return StoreSet{
		Memory:    s,
		Schedules: s,
		History:   s,
		closer:    db.Close,
	}
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// q rewrites ? placeholders for drivers that want numbered parameters.
func (s *sqlStore) q(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (s *sqlStore) PutMemory(ctx context.Context, sessionID string, entry models.MemoryEntry) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO memory_entries (session_id, mem_key, value, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, mem_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		sessionID, entry.Key, entry.Value, toNanos(entry.CreatedAt), toNanos(entry.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put memory: %w", err)
	}
	return nil
}

func (s *sqlStore) GetMemory(ctx context.Context, sessionID, key string) (models.MemoryEntry, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT mem_key, value, created_at, updated_at FROM memory_entries WHERE session_id = ? AND mem_key = ?`),
		sessionID, key)
	entry, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MemoryEntry{}, ErrNotFound
		}
		return models.MemoryEntry{}, fmt.Errorf("get memory: %w", err)
	}
	return entry, nil
}

func (s *sqlStore) DeleteMemory(ctx context.Context, sessionID, key string) error {
	res, err := s.db.ExecContext(ctx, s.q(
		`DELETE FROM memory_entries WHERE session_id = ? AND mem_key = ?`), sessionID, key)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return requireAffected(res)
}

func (s *sqlStore) ListMemory(ctx context.Context, sessionID string) ([]models.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT mem_key, value, created_at, updated_at FROM memory_entries
		 WHERE session_id = ? ORDER BY created_at, mem_key`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("list memory: %w", err)
	}
	defer rows.Close()

	var entries []models.MemoryEntry
	for rows.Next() {
		entry, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *sqlStore) ClearMemory(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM memory_entries WHERE session_id = ?`), sessionID); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (models.MemoryEntry, error) {
	var entry models.MemoryEntry
	var created, updated int64
	if err := row.Scan(&entry.Key, &entry.Value, &created, &updated); err != nil {
		return models.MemoryEntry{}, err
	}
	entry.CreatedAt = fromNanos(created)
	entry.UpdatedAt = fromNanos(updated)
	return entry, nil
}

func (s *sqlStore) SaveTask(ctx context.Context, task *models.ScheduledTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task is required")
	}
	trigger, err := json.Marshal(task.Trigger)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(
		`INSERT INTO scheduled_tasks (id, session_id, trigger_spec, callback, description, next_run, last_run, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET next_run = excluded.next_run, last_run = excluded.last_run`),
		task.ID, task.SessionID, string(trigger), task.Callback, task.Description,
		toNanos(task.NextRun), toNanos(task.LastRun), toNanos(task.CreatedAt))
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

const taskColumns = `id, session_id, trigger_spec, callback, description, next_run, last_run, created_at`

func (s *sqlStore) GetTask(ctx context.Context, id string) (*models.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`), id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *sqlStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM scheduled_tasks WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireAffected(res)
}

func (s *sqlStore) ListTasks(ctx context.Context, sessionID string) ([]*models.ScheduledTask, error) {
	if sessionID == "" {
		return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY created_at, id`)
	}
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE session_id = ? ORDER BY created_at, id`, sessionID)
}

func (s *sqlStore) DueTasks(ctx context.Context, now time.Time) ([]*models.ScheduledTask, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE next_run <= ? ORDER BY created_at, id`, now.UnixNano())
}

func (s *sqlStore) queryTasks(ctx context.Context, query string, args ...any) ([]*models.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(row scanner) (*models.ScheduledTask, error) {
	var task models.ScheduledTask
	var trigger string
	var next, last, created int64
	if err := row.Scan(&task.ID, &task.SessionID, &trigger, &task.Callback, &task.Description, &next, &last, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(trigger), &task.Trigger); err != nil {
		return nil, fmt.Errorf("unmarshal trigger: %w", err)
	}
	task.NextRun = fromNanos(next)
	task.LastRun = fromNanos(last)
	task.CreatedAt = fromNanos(created)
	return &task, nil
}

func (s *sqlStore) LoadHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT messages FROM session_history WHERE session_id = ?`), sessionID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.Message{}, nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}
	var history []models.Message
	if err := json.Unmarshal([]byte(payload), &history); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return history, nil
}

func (s *sqlStore) SaveHistory(ctx context.Context, sessionID string, history []models.Message) error {
	payload, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(
		`INSERT INTO session_history (session_id, messages, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`),
		sessionID, string(payload), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (s *sqlStore) ClearHistory(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM session_history WHERE session_id = ?`), sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
