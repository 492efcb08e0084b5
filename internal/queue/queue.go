// Package queue implements the durable outbound task queue on SQLite. It
// backs the task.Dispatcher contract: enqueue is the only operation the
// engine core uses, while Pending and Complete serve external workers and
// inspection tooling.
package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tideline/internal/task"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (tasks table, kind/created index)
const currentSchemaVersion = 1

// Queue is a durable task queue over a single SQLite file. Tasks survive
// process restart; identical tasks collapse to one row.
type Queue struct {
	db *sql.DB
}

// Open creates or opens the queue database at the given path.
// Applies required pragmas and migrations automatically; safe to call
// multiple times.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to queue database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent enqueues.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Queue{db: db}, nil
}

// Close closes the database connection.
func (q *Queue) Close() error {
	if q.db == nil {
		return nil
	}
	return q.db.Close()
}

// Enqueue implements task.Dispatcher. Duplicate task IDs are silently
// ignored, so one triggering event enqueues at most one row even if the
// caller retries.
func (q *Queue) Enqueue(ctx context.Context, t task.Task) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tasks (id, kind, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, t.ID, string(t.Kind), string(t.Payload))
	if err != nil {
		return fmt.Errorf("enqueue %s task: %w", t.Kind, err)
	}
	return nil
}

// Pending returns up to limit undelivered tasks, oldest first. A limit of
// zero or less means no limit.
func (q *Queue) Pending(ctx context.Context, limit int) ([]task.Task, error) {
	query := `
		SELECT id, kind, payload, created_at
		FROM tasks
		ORDER BY created_at ASC, id ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		var (
			t       task.Task
			kind    string
			payload string
			created int64
		)
		if err := rows.Scan(&t.ID, &kind, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Kind = task.Kind(kind)
		t.Payload = []byte(payload)
		t.CreatedAt = time.Unix(created, 0).UTC()
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	if tasks == nil {
		tasks = []task.Task{}
	}
	return tasks, nil
}

// Complete removes a delivered task. Completing an unknown ID is a no-op, so
// workers can retry completion safely.
func (q *Queue) Complete(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("complete task %s: %w", id, err)
	}
	return nil
}

// Count reports the number of queued tasks.
func (q *Queue) Count(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
