package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/jobsift/internal/model"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	job_id     TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	state      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLiteStore keeps one checkpoint row per job in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) a SQLite checkpoint database
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create checkpoint db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	// One writer at a time; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoint table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save upserts the checkpoint row for a job
func (s *SQLiteStore) Save(ctx context.Context, jobID string, state *model.Checkpoint) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (job_id, status, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		jobID, string(state.Job.Status), data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", jobID, err)
	}
	return nil
}

// Load reads the checkpoint row for a job; found is false when none exists
func (s *SQLiteStore) Load(ctx context.Context, jobID string) (*model.Checkpoint, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM checkpoints WHERE job_id = ?`, jobID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint %s: %w", jobID, err)
	}

	state, err := Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint %s: %w", jobID, err)
	}
	return state, true, nil
}

// List returns all job IDs ordered by ID
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT job_id FROM checkpoints ORDER BY job_id`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan checkpoint id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
