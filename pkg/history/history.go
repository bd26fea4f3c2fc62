// Package history records finished batch jobs in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/feichai0017/docformat/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS batch_history (
	job_id      TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	total       INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	output_name TEXT NOT NULL DEFAULT '',
	profile     TEXT NOT NULL,
	outcomes    TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batch_history_finished ON batch_history(finished_at DESC);
`

// Record is one finished batch.
type Record struct {
	Summary models.BatchSummary  `json:"summary"`
	Profile models.FormatProfile `json:"profile"`
}

// Store 批处理历史存储接口
type Store interface {
	Record(ctx context.Context, rec Record) error
	List(ctx context.Context, limit int) ([]Record, error)
	DeleteBefore(ctx context.Context, threshold time.Time) (int64, error)
	Close() error
}

// SQLiteStore persists history with the pure-Go modernc driver.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates the database file and its parent directory when missing.
// ":memory:" opens a private in-memory database.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=10000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Record upserts by job id.
func (s *SQLiteStore) Record(ctx context.Context, rec Record) error {
	profile, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	outcomes, err := json.Marshal(rec.Summary.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batch_history (job_id, status, total, succeeded, failed, output_name, profile, outcomes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status, total = excluded.total, succeeded = excluded.succeeded,
			failed = excluded.failed, output_name = excluded.output_name, profile = excluded.profile,
			outcomes = excluded.outcomes, started_at = excluded.started_at, finished_at = excluded.finished_at`,
		rec.Summary.JobID, string(rec.Summary.Status), rec.Summary.Total, rec.Summary.Succeeded,
		rec.Summary.Failed, rec.Summary.OutputName, string(profile), string(outcomes),
		rec.Summary.StartedAt.UnixNano(), rec.Summary.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record batch %s: %w", rec.Summary.JobID, err)
	}
	return nil
}

// List returns the most recently finished batches first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, status, total, succeeded, failed, output_name, profile, outcomes, started_at, finished_at
		FROM batch_history ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec               Record
			status            string
			profile, outcomes string
			started, finished int64
		)
		if err := rows.Scan(&rec.Summary.JobID, &status, &rec.Summary.Total, &rec.Summary.Succeeded,
			&rec.Summary.Failed, &rec.Summary.OutputName, &profile, &outcomes, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.Summary.Status = models.JobStatus(status)
		rec.Summary.StartedAt = time.Unix(0, started)
		rec.Summary.FinishedAt = time.Unix(0, finished)
		if err := json.Unmarshal([]byte(profile), &rec.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
		if err := json.Unmarshal([]byte(outcomes), &rec.Summary.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to decode outcomes: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteBefore drops batches that finished before threshold.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, threshold time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM batch_history WHERE finished_at < ?`, threshold.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
