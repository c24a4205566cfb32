package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite for persistence
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed job journal
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			prompt_id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			status TEXT NOT NULL,
			cache_hit INTEGER NOT NULL DEFAULT 0,
			outputs TEXT,
			error_kind TEXT,
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create jobs table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Start records a newly submitted job
func (s *SQLiteStore) Start(job Job) error {
	status := job.Status
	if status == "" {
		status = StatusRunning
	}

	_, err := s.db.Exec(`
		INSERT INTO jobs (prompt_id, client_id, status, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(prompt_id) DO UPDATE SET
			client_id = excluded.client_id,
			status = excluded.status,
			started_at = excluded.started_at
	`, job.PromptID, job.ClientID, string(status), job.StartedAt)

	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	return nil
}

// Finish records the terminal outcome of a running job
func (s *SQLiteStore) Finish(promptID string, outcome Outcome) error {
	var outputs sql.NullString
	if outcome.Outputs != nil {
		data, err := json.Marshal(outcome.Outputs)
		if err != nil {
			return fmt.Errorf("marshal outputs: %w", err)
		}
		outputs = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, cache_hit = ?, outputs = ?, error_kind = ?, finished_at = ?
		WHERE prompt_id = ? AND status = ?
	`, string(outcome.Status), outcome.CacheHit, outputs, outcome.ErrorKind, outcome.FinishedAt,
		promptID, string(StatusRunning))

	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// Get retrieves a job by prompt id
func (s *SQLiteStore) Get(promptID string) (*Job, error) {
	var job Job
	var status string
	var outputs, errorKind sql.NullString
	var finishedAt sql.NullTime

	err := s.db.QueryRow(`
		SELECT prompt_id, client_id, status, cache_hit, outputs, error_kind, started_at, finished_at
		FROM jobs WHERE prompt_id = ?
	`, promptID).Scan(
		&job.PromptID,
		&job.ClientID,
		&status,
		&job.CacheHit,
		&outputs,
		&errorKind,
		&job.StartedAt,
		&finishedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	job.Status = Status(status)
	job.ErrorKind = errorKind.String
	if outputs.Valid {
		if err := json.Unmarshal([]byte(outputs.String), &job.Outputs); err != nil {
			return nil, fmt.Errorf("decode outputs: %w", err)
		}
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}

	return &job, nil
}

// Close releases database resources
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
