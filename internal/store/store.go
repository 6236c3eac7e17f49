package store

import (
	"errors"

	"github.com/gwlsn/tsshrink/internal/jobs"
)

// ErrRunNotFound is returned when a run ID is not in the ledger.
var ErrRunNotFound = errors.New("run not found")

// Store defines the run history ledger.
// Implementations must be safe for concurrent use.
type Store interface {
	jobs.Recorder

	// GetRun retrieves a run by ID, with Stats.Errors rebuilt from its
	// failed files.
	GetRun(id string) (*jobs.Run, error)

	// ListFileResults returns the terminal file results of a run in the
	// order they were first recorded.
	ListFileResults(runID string) ([]*jobs.Job, error)

	// RecentRuns returns up to limit runs, newest first.
	RecentRuns(limit int) ([]*jobs.Run, error)

	// Totals aggregates every recorded run.
	Totals() (Totals, error)

	// Close closes the store and releases resources.
	Close() error
}

// Totals holds lifetime ledger statistics.
type Totals struct {
	Runs       int   `json:"runs"`
	Succeeded  int   `json:"succeeded"`
	Failed     int   `json:"failed"`
	Deleted    int   `json:"deleted"`
	BytesSaved int64 `json:"bytes_saved"`
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
