package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gwlsn/tsshrink/internal/jobs"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	directory TEXT NOT NULL,
	mode TEXT NOT NULL,
	crf INTEGER NOT NULL DEFAULT 0,
	preset TEXT NOT NULL DEFAULT '',
	dry_run INTEGER NOT NULL DEFAULT 0,
	found INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	processed INTEGER NOT NULL DEFAULT 0,
	succeeded INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0,
	cancelled INTEGER NOT NULL DEFAULT 0,
	bytes_saved INTEGER NOT NULL DEFAULT 0,
	started_at TEXT NOT NULL,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS file_results (
	position INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	input_path TEXT NOT NULL,
	output_path TEXT,
	status TEXT NOT NULL,
	error TEXT,
	warnings TEXT,
	input_size INTEGER NOT NULL DEFAULT 0,
	output_size INTEGER,
	space_saved INTEGER,
	deleted INTEGER NOT NULL DEFAULT 0,
	transcode_secs INTEGER,
	created_at TEXT NOT NULL,
	started_at TEXT,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_file_results_run ON file_results(run_id, position);
`

const fileColumns = `id, input_path, output_path, status, error, warnings, input_size, output_size,
	space_saved, deleted, transcode_secs, created_at, started_at, completed_at`

const runColumns = `id, directory, mode, crf, preset, dry_run, found, skipped, processed,
	succeeded, failed, deleted, cancelled, bytes_saved, started_at, completed_at`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewSQLiteStore opens the ledger at dbPath, creating it if needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("insert schema version: %w", err)
		}
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	case version > schemaVersion:
		db.Close()
		return nil, fmt.Errorf("history database %s has schema version %d, newer than supported %d", dbPath, version, schemaVersion)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// StartRun inserts a run row before any file is processed.
func (s *SQLiteStore) StartRun(run *jobs.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRunLocked(run)
}

// FinishRun stores the final counters of a run.
func (s *SQLiteStore) FinishRun(run *jobs.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRunLocked(run)
}

func (s *SQLiteStore) saveRunLocked(run *jobs.Run) error {
	st := run.Stats
	_, err := s.db.Exec(`
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			found = excluded.found,
			skipped = excluded.skipped,
			processed = excluded.processed,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			deleted = excluded.deleted,
			cancelled = excluded.cancelled,
			bytes_saved = excluded.bytes_saved,
			completed_at = excluded.completed_at
	`,
		run.ID, run.Directory, run.Mode, run.CRF, run.Preset, boolToInt(run.DryRun),
		st.Found, st.Skipped, st.Processed, st.Succeeded, st.Failed, st.Deleted,
		boolToInt(st.Cancelled), st.BytesSaved,
		formatTime(run.StartedAt), formatTimePtr(run.CompletedAt),
	)
	return err
}

// RecordFile upserts the result of one file. Recording the same job
// twice, e.g. once on success and again after its source was deleted,
// keeps its original position.
func (s *SQLiteStore) RecordFile(runID string, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	warnings, err := encodeWarnings(job.Warnings)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO file_results (run_id, `+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			warnings = excluded.warnings,
			output_size = excluded.output_size,
			space_saved = excluded.space_saved,
			deleted = excluded.deleted,
			transcode_secs = excluded.transcode_secs,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`,
		runID, job.ID, job.InputPath, nullString(job.OutputPath), string(job.Status),
		nullString(job.Error), warnings, job.InputSize, nullInt64(job.OutputSize),
		nullInt64(job.SpaceSaved), boolToInt(job.Deleted), nullInt64(job.TranscodeTime),
		formatTime(job.CreatedAt), formatTimePtr(job.StartedAt), formatTimePtr(job.CompletedAt),
	)
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*jobs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	failed, err := s.listFilesLocked(id, string(jobs.StatusFailed))
	if err != nil {
		return nil, err
	}
	for _, job := range failed {
		run.Stats.Errors = append(run.Stats.Errors, jobs.FileError{
			File:   filepath.Base(job.InputPath),
			Path:   job.InputPath,
			Reason: job.Error,
		})
	}
	return run, nil
}

// ListFileResults returns every recorded file of a run.
func (s *SQLiteStore) ListFileResults(runID string) ([]*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listFilesLocked(runID, "")
}

func (s *SQLiteStore) listFilesLocked(runID, status string) ([]*jobs.Job, error) {
	query := `SELECT ` + fileColumns + ` FROM file_results WHERE run_id = ?`
	args := []interface{}{runID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY position ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*jobs.Job
	for rows.Next() {
		job, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// RecentRuns returns the newest runs first.
func (s *SQLiteStore) RecentRuns(limit int) ([]*jobs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*jobs.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Totals sums the counters of every run.
func (s *SQLiteStore) Totals() (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t Totals
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(succeeded), 0),
			COALESCE(SUM(failed), 0),
			COALESCE(SUM(deleted), 0),
			COALESCE(SUM(bytes_saved), 0)
		FROM runs
	`).Scan(&t.Runs, &t.Succeeded, &t.Failed, &t.Deleted, &t.BytesSaved)
	return t, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Helper functions for scanning rows

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*jobs.Run, error) {
	var run jobs.Run
	var dryRun, cancelled int
	var startedAt string
	var completedAt sql.NullString

	st := &run.Stats
	err := row.Scan(
		&run.ID, &run.Directory, &run.Mode, &run.CRF, &run.Preset, &dryRun,
		&st.Found, &st.Skipped, &st.Processed, &st.Succeeded, &st.Failed, &st.Deleted,
		&cancelled, &st.BytesSaved, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.DryRun = dryRun != 0
	st.Cancelled = cancelled != 0
	run.StartedAt = parseTime(startedAt)
	run.CompletedAt = parseTime(completedAt.String)
	return &run, nil
}

func scanFile(row rowScanner) (*jobs.Job, error) {
	var job jobs.Job
	var outputPath, errStr, warnings sql.NullString
	var outputSize, spaceSaved, transcodeTime sql.NullInt64
	var deleted int
	var status string
	var createdAt, startedAt, completedAt sql.NullString

	err := row.Scan(
		&job.ID, &job.InputPath, &outputPath, &status, &errStr, &warnings,
		&job.InputSize, &outputSize, &spaceSaved, &deleted, &transcodeTime,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.OutputPath = outputPath.String
	job.Status = jobs.Status(status)
	job.Error = errStr.String
	job.OutputSize = outputSize.Int64
	job.SpaceSaved = spaceSaved.Int64
	job.Deleted = deleted != 0
	job.TranscodeTime = transcodeTime.Int64
	job.CreatedAt = parseTime(createdAt.String)
	job.StartedAt = parseTime(startedAt.String)
	job.CompletedAt = parseTime(completedAt.String)

	if warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &job.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings of %s: %w", job.ID, err)
		}
	}

	return &job, nil
}

// Helper functions for SQL values

func encodeWarnings(warnings []string) (interface{}, error) {
	if len(warnings) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("encode warnings: %w", err)
	}
	return string(data), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(i int64) interface{} {
	if i == 0 {
		return nil
	}
	return i
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}
