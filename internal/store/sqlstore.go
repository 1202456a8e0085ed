// Package store implements task.Store over database/sql, supporting both an
// embedded sqlite file and a remote mysql database behind one driver-agnostic
// DAO, matching spec.md's Store DAO component (C2).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/aglm/taskqueue/internal/task"
)

// Driver names accepted by Open, matching spec.md §6's AGLM_DB_DRIVER.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// SQLStore is a task.Store backed by database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Open opens a SQLStore for driver ("sqlite" or "mysql") against dsn. For
// sqlite, dsn is a file path (or ":memory:"); for mysql, dsn is a standard
// go-sql-driver/mysql DSN.
func Open(driver, dsn string) (*SQLStore, error) {
	var sqlDriverName string
	switch driver {
	case DriverSQLite:
		sqlDriverName = "sqlite3"
	case DriverMySQL:
		sqlDriverName = "mysql"
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
	db, err := sql.Open(sqlDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single-file sqlite database only tolerates one writer at a
		// time; serialize through one connection so concurrent workers
		// don't trip SQLITE_BUSY under the default busy timeout.
		db.SetMaxOpenConns(1)
	}
	return &SQLStore{db: db, driver: driver}, nil
}

// Close implements task.Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// EnsureSchema implements task.Store.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	var tasksDDL, eventsDDL, indexDDL string
	switch s.driver {
	case DriverSQLite:
		tasksDDL = `CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			user TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			redis_key TEXT,
			created_at REAL NOT NULL,
			updated_at REAL NOT NULL,
			last_checkpoint TEXT,
			resume_hint TEXT,
			retries INTEGER NOT NULL DEFAULT 0,
			payload_json TEXT,
			result_summary TEXT
		)`
		eventsDDL = `CREATE TABLE IF NOT EXISTS task_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			status TEXT NOT NULL,
			input TEXT,
			output TEXT,
			checkpoint_token TEXT,
			created_at REAL NOT NULL
		)`
		indexDDL = `CREATE INDEX IF NOT EXISTS idx_task_id ON task_events (task_id)`
	case DriverMySQL:
		tasksDDL = `CREATE TABLE IF NOT EXISTS tasks (
			id VARCHAR(64) PRIMARY KEY,
			user VARCHAR(255) NOT NULL,
			type VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			redis_key VARCHAR(255),
			created_at DOUBLE NOT NULL,
			updated_at DOUBLE NOT NULL,
			last_checkpoint TEXT,
			resume_hint TEXT,
			retries INT NOT NULL DEFAULT 0,
			payload_json TEXT,
			result_summary TEXT
		)`
		eventsDDL = `CREATE TABLE IF NOT EXISTS task_events (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			task_id VARCHAR(64) NOT NULL,
			phase VARCHAR(64) NOT NULL,
			status VARCHAR(32) NOT NULL,
			input TEXT,
			output TEXT,
			checkpoint_token TEXT,
			created_at DOUBLE NOT NULL,
			INDEX idx_task_id (task_id)
		)`
	}
	if _, err := s.db.ExecContext(ctx, tasksDDL); err != nil {
		return fmt.Errorf("store: create tasks table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, eventsDDL); err != nil {
		return fmt.Errorf("store: create task_events table: %w", err)
	}
	if indexDDL != "" {
		if _, err := s.db.ExecContext(ctx, indexDDL); err != nil {
			return fmt.Errorf("store: create idx_task_id: %w", err)
		}
	}
	return nil
}

// PersistTask implements task.Store. It resolves spec.md §9 open question
// (b): both drivers upsert while preserving an existing row's status, so a
// late intake write can never regress a worker's progress.
func (s *SQLStore) PersistTask(ctx context.Context, id, user, taskType string, payload json.RawMessage) error {
	now := nowEpoch()
	var query string
	switch s.driver {
	case DriverSQLite:
		query = `
			INSERT INTO tasks (id, user, type, status, created_at, updated_at, retries, payload_json, result_summary)
			VALUES (?, ?, ?, 'pending', ?, ?, 0, ?, '')
			ON CONFLICT(id) DO UPDATE SET
				user = excluded.user,
				type = excluded.type,
				updated_at = excluded.updated_at,
				payload_json = excluded.payload_json`
	case DriverMySQL:
		query = `
			INSERT INTO tasks (id, user, type, status, created_at, updated_at, retries, payload_json, result_summary)
			VALUES (?, ?, ?, 'pending', ?, ?, 0, ?, '')
			ON DUPLICATE KEY UPDATE
				user = VALUES(user),
				type = VALUES(type),
				updated_at = VALUES(updated_at),
				payload_json = VALUES(payload_json)`
	}
	if _, err := s.db.ExecContext(ctx, query, id, user, taskType, now, now, string(payload)); err != nil {
		return fmt.Errorf("store: persist task %s: %w", id, err)
	}
	return nil
}

// UpdateTask implements task.Store.
func (s *SQLStore) UpdateTask(ctx context.Context, id string, status task.Status, opts ...task.UpdateOption) error {
	options := task.UpdateOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	now := nowEpoch()

	var query string
	switch s.driver {
	case DriverSQLite:
		query = `UPDATE tasks SET
			status = ?,
			updated_at = ?,
			result_summary = CASE WHEN ? != '' THEN ? ELSE result_summary END,
			resume_hint = CASE WHEN ? != '' THEN ? ELSE resume_hint END,
			last_checkpoint = CASE WHEN ? != '' THEN ? ELSE last_checkpoint END
		WHERE id = ?`
	case DriverMySQL:
		query = `UPDATE tasks SET
			status = ?,
			updated_at = ?,
			result_summary = IF(? != '', ?, result_summary),
			resume_hint = IF(? != '', ?, resume_hint),
			last_checkpoint = IF(? != '', ?, last_checkpoint)
		WHERE id = ?`
	}
	_, err := s.db.ExecContext(ctx, query,
		string(status), now,
		options.Result, options.Result,
		options.ResumeHint, options.ResumeHint,
		options.LastCheckpoint, options.LastCheckpoint,
		id,
	)
	if err != nil {
		return fmt.Errorf("store: update task %s: %w", id, err)
	}
	return nil
}

// RecordEvent implements task.Store.
func (s *SQLStore) RecordEvent(ctx context.Context, id, phase string, status task.Status, input, output, checkpointToken string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_events (task_id, phase, status, input, output, checkpoint_token, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, phase, string(status), input, output, checkpointToken, nowEpoch(),
	)
	if err != nil {
		return fmt.Errorf("store: record event for %s: %w", id, err)
	}
	return nil
}

// LoadTask implements task.Store.
func (s *SQLStore) LoadTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user, type, status, redis_key, created_at, updated_at, last_checkpoint, resume_hint, retries, payload_json, result_summary
		 FROM tasks WHERE id = ?`, id)

	var t task.Task
	var redisKey, lastCheckpoint, resumeHint, payloadJSON, resultSummary sql.NullString
	err := row.Scan(&t.ID, &t.User, &t.Type, &t.Status, &redisKey, &t.CreatedAt, &t.UpdatedAt,
		&lastCheckpoint, &resumeHint, &t.Retries, &payloadJSON, &resultSummary)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load task %s: %w", id, err)
	}
	t.RedisKey = redisKey.String
	t.LastCheckpoint = lastCheckpoint.String
	t.ResumeHint = resumeHint.String
	t.ResultSummary = resultSummary.String
	if payloadJSON.String != "" {
		t.PayloadJSON = json.RawMessage(payloadJSON.String)
	}
	return &t, nil
}

// QueryEvents implements task.Store.
func (s *SQLStore) QueryEvents(ctx context.Context, id string, limit int) ([]task.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, phase, status, input, output, checkpoint_token, created_at
		 FROM task_events WHERE task_id = ? ORDER BY id DESC LIMIT ?`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query events for %s: %w", id, err)
	}
	defer rows.Close()

	var events []task.Event
	for rows.Next() {
		var e task.Event
		var input, output, checkpoint sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Phase, &e.Status, &input, &output, &checkpoint, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan event for %s: %w", id, err)
		}
		e.Input = input.String
		e.Output = output.String
		e.CheckpointToken = checkpoint.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate events for %s: %w", id, err)
	}
	return events, nil
}

func nowEpoch() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

var _ task.Store = (*SQLStore)(nil)
