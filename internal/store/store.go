// Package store persists translation tasks and their attempt histories in
// sqlite. Task status is the single serialized resource: every transition
// into processing goes through an atomic conditional update, so two workers
// can never claim the same task. Version history is append-only with exactly
// one active version per task.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// TaskStatus is the task state machine: pending → processing →
// (completed | failed), with processing → pending on stall reclaim.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// TaskKind separates page translations from image-language-ratio variants.
type TaskKind string

const (
	KindPage  TaskKind = "page"
	KindImage TaskKind = "image"
)

// Task is one unit of schedulable work.
type Task struct {
	ID           string
	BatchID      string
	Kind         TaskKind
	SourceRef    string // page URL or source image URL
	TargetLang   string
	AspectRatio  string // image tasks only
	Status       TaskStatus
	ErrorMessage string
	ClaimedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var ErrTaskNotFound = fmt.Errorf("task not found")

// Store wraps the sqlite handle.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Serialize access through one connection: claims rely on conditional
	// updates, and a single writer avoids SQLITE_BUSY under worker load.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		source_ref TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		aspect_ratio TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT NOT NULL DEFAULT '',
		claimed_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		version_number INTEGER NOT NULL,
		artifact_url TEXT NOT NULL DEFAULT '',
		artifact_html TEXT NOT NULL DEFAULT '',
		score INTEGER,
		analysis_json TEXT NOT NULL DEFAULT '',
		correction_json TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		generation_seconds REAL NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(task_id, version_number),
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_versions_task ON versions(task_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateTask inserts a new pending task.
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, batch_id, kind, source_ref, target_lang, aspect_ratio, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		t.ID, t.BatchID, t.Kind, t.SourceRef, t.TargetLang, t.AspectRatio, now, now)
	return err
}

// Claim attempts the pending|failed → processing transition for one task.
// The conditional update is the compare-and-swap: of two concurrent callers
// exactly one sees RowsAffected == 1.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'processing', claimed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ('pending', 'failed')`,
		now, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ClaimNext claims the oldest pending task. Returns nil when nothing is
// claimable. A candidate lost to a concurrent worker is simply skipped.
func (s *Store) ClaimNext(ctx context.Context) (*Task, error) {
	for {
		var id string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM tasks WHERE status = 'pending' ORDER BY created_at, id LIMIT 1`).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		ok, err := s.Claim(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			return s.GetTask(ctx, id)
		}
	}
}

// MarkCompleted transitions processing → completed unconditionally.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'completed', claimed_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	return err
}

// MarkFailed transitions to failed, storing a human-readable message for
// manual retry.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'failed', error_message = ?, claimed_at = NULL, updated_at = ? WHERE id = ?`,
		message, time.Now().UTC(), id)
	return err
}

// ReclaimStalled returns tasks stuck in processing longer than window back
// to pending, and reports how many were reclaimed.
func (s *Store) ReclaimStalled(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-window)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'pending', claimed_at = NULL, updated_at = ?
		 WHERE status = 'processing' AND claimed_at IS NOT NULL AND claimed_at < ?`,
		time.Now().UTC(), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetTask fetches one task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, batch_id, kind, source_ref, target_lang, aspect_ratio, status,
		        error_message, claimed_at, created_at, updated_at
		 FROM tasks WHERE id = ?`, id)

	var t Task
	var claimed sql.NullTime
	err := row.Scan(&t.ID, &t.BatchID, &t.Kind, &t.SourceRef, &t.TargetLang,
		&t.AspectRatio, &t.Status, &t.ErrorMessage, &claimed, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if claimed.Valid {
		t.ClaimedAt = &claimed.Time
	}
	return &t, nil
}

// BatchTasks returns all tasks in a batch, oldest first.
func (s *Store) BatchTasks(ctx context.Context, batchID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, kind, source_ref, target_lang, aspect_ratio, status,
		        error_message, claimed_at, created_at, updated_at
		 FROM tasks WHERE batch_id = ? ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var claimed sql.NullTime
		if err := rows.Scan(&t.ID, &t.BatchID, &t.Kind, &t.SourceRef, &t.TargetLang,
			&t.AspectRatio, &t.Status, &t.ErrorMessage, &claimed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if claimed.Valid {
			t.ClaimedAt = &claimed.Time
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// BatchDone reports whether every task in a batch reached a terminal state.
func (s *Store) BatchDone(ctx context.Context, batchID string) (bool, error) {
	var open int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE batch_id = ? AND status IN ('pending', 'processing')`,
		batchID).Scan(&open)
	return open == 0, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
