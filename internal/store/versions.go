package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Version is one immutable attempt at a task's artifact. Exactly one version
// per task is active at any time.
type Version struct {
	ID                int64
	TaskID            string
	VersionNumber     int
	ArtifactURL       string
	ArtifactHTML      string
	Score             *int // nil until scored
	AnalysisJSON      string
	CorrectionJSON    string
	IsActive          bool
	GenerationSeconds float64
	ErrorMessage      string
	CreatedAt         time.Time
}

// CreateVersion appends a new version for a task and makes it the active
// one: all prior versions are deactivated in the same transaction before the
// new row is inserted, so the one-active invariant holds at every commit
// point. The assigned version number is returned.
func (s *Store) CreateVersion(ctx context.Context, v *Version) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM versions WHERE task_id = ?`,
		v.TaskID).Scan(&next); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE versions SET is_active = FALSE WHERE task_id = ?`, v.TaskID); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO versions (task_id, version_number, artifact_url, artifact_html, score,
		                       analysis_json, correction_json, is_active, generation_seconds,
		                       error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, TRUE, ?, ?, ?)`,
		v.TaskID, next, v.ArtifactURL, v.ArtifactHTML, v.Score,
		v.AnalysisJSON, v.CorrectionJSON, v.GenerationSeconds,
		v.ErrorMessage, time.Now().UTC()); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	v.VersionNumber = next
	v.IsActive = true
	return next, nil
}

// UpdateVersionScore records the quality analysis for an attempt after
// scoring completes.
func (s *Store) UpdateVersionScore(ctx context.Context, taskID string, versionNumber, score int, analysisJSON, correctionJSON string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE versions SET score = ?, analysis_json = ?, correction_json = ?
		 WHERE task_id = ? AND version_number = ?`,
		score, analysisJSON, correctionJSON, taskID, versionNumber)
	return err
}

// ActivateVersion makes one specific version active, deactivating the rest.
func (s *Store) ActivateVersion(ctx context.Context, taskID string, versionNumber int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE versions SET is_active = FALSE WHERE task_id = ?`, taskID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE versions SET is_active = TRUE WHERE task_id = ? AND version_number = ?`,
		taskID, versionNumber)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("version %d not found for task %s", versionNumber, taskID)
	}
	return tx.Commit()
}

// ActivateBestVersion makes the highest-scoring version active; ties go to
// the latest attempt so the choice is deterministic. Used when the attempt
// ceiling is reached without clearing the threshold.
func (s *Store) ActivateBestVersion(ctx context.Context, taskID string) (int, error) {
	var best int
	err := s.db.QueryRowContext(ctx,
		`SELECT version_number FROM versions WHERE task_id = ?
		 ORDER BY COALESCE(score, -1) DESC, version_number DESC LIMIT 1`,
		taskID).Scan(&best)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no versions for task %s", taskID)
	}
	if err != nil {
		return 0, err
	}
	return best, s.ActivateVersion(ctx, taskID, best)
}

// ActiveVersion returns the single active version of a task, or nil when no
// attempt has been made yet.
func (s *Store) ActiveVersion(ctx context.Context, taskID string) (*Version, error) {
	row := s.db.QueryRowContext(ctx, versionQuery+` WHERE task_id = ? AND is_active`, taskID)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListVersions returns all versions of a task in attempt order.
func (s *Store) ListVersions(ctx context.Context, taskID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx,
		versionQuery+` WHERE task_id = ? ORDER BY version_number`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// VersionCount returns how many attempts a task has accumulated.
func (s *Store) VersionCount(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM versions WHERE task_id = ?`, taskID).Scan(&n)
	return n, err
}

const versionQuery = `SELECT id, task_id, version_number, artifact_url, artifact_html, score,
	analysis_json, correction_json, is_active, generation_seconds, error_message, created_at
	FROM versions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(r rowScanner) (*Version, error) {
	var v Version
	var score sql.NullInt64
	err := r.Scan(&v.ID, &v.TaskID, &v.VersionNumber, &v.ArtifactURL, &v.ArtifactHTML,
		&score, &v.AnalysisJSON, &v.CorrectionJSON, &v.IsActive,
		&v.GenerationSeconds, &v.ErrorMessage, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if score.Valid {
		n := int(score.Int64)
		v.Score = &n
	}
	return &v, nil
}
