package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/katu09161004/tel-addapter/pkg/logger"
)

// RunStorage handles storage of pipeline run records
type RunStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRunStorage creates a new SQLite run storage
func NewRunStorage(db *sql.DB, logger *logger.Logger) (*RunStorage, error) {
	storage := &RunStorage{
		db:     db,
		logger: logger.Named("sqlite-runs"),
	}
	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize run storage: %w", err)
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *RunStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL,
			duration_seconds REAL NOT NULL,
			audio_path TEXT NOT NULL,
			transcript_path TEXT,
			provider TEXT,
			state TEXT NOT NULL,
			stage TEXT,
			error TEXT,
			audio_revision TEXT,
			transcript_revision TEXT,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
	}
	for _, indexSQL := range indexes {
		if _, err = s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create run index: %w", err)
		}
	}

	return nil
}

// StoreRun stores a run record
func (s *RunStorage) StoreRun(record *RunRecord) (int64, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	result, err := s.db.Exec(
		`INSERT INTO runs
		(started_at, ended_at, duration_seconds, audio_path, transcript_path, provider, state, stage, error, audio_revision, transcript_revision, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.StartedAt.Format(time.RFC3339),
		record.EndedAt.Format(time.RFC3339),
		record.DurationSeconds,
		record.AudioPath,
		record.TranscriptPath,
		record.Provider,
		record.State,
		record.Stage,
		record.Error,
		record.AudioRevision,
		record.TranscriptRevision,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	record.ID = id

	return id, nil
}

// GetRuns returns the most recent runs, newest first
func (s *RunStorage) GetRuns(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, started_at, ended_at, duration_seconds, audio_path, transcript_path, provider, state, stage, error, audio_revision, transcript_revision, created_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// GetRunByID returns a single run record
func (s *RunStorage) GetRunByID(id int64) (*RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, ended_at, duration_seconds, audio_path, transcript_path, provider, state, stage, error, audio_revision, transcript_revision, created_at
		FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	records, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func scanRuns(rows *sql.Rows) ([]*RunRecord, error) {
	var records []*RunRecord
	for rows.Next() {
		var r RunRecord
		var startedAt, endedAt, createdAt string
		if err := rows.Scan(
			&r.ID, &startedAt, &endedAt, &r.DurationSeconds,
			&r.AudioPath, &r.TranscriptPath, &r.Provider,
			&r.State, &r.Stage, &r.Error,
			&r.AudioRevision, &r.TranscriptRevision, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}

		var err error
		if r.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if r.EndedAt, err = time.Parse(time.RFC3339, endedAt); err != nil {
			return nil, fmt.Errorf("failed to parse ended_at: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run rows: %w", err)
	}
	return records, nil
}
