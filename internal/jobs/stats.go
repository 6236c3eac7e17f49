package jobs

import (
	"path/filepath"
	"time"
)

// FileError is one per-file failure in the order it happened
type FileError struct {
	File   string `json:"file"` // Base name, as shown in the summary
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Stats accumulates the outcome of a batch run.
//
// Processed counts files that were converted and verified, plus every
// file a dry run would have converted. Failed files are not processed.
type Stats struct {
	Found     int         `json:"found"`
	Skipped   int         `json:"skipped"`
	Processed int         `json:"processed"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Deleted   int         `json:"deleted"`
	Errors    []FileError `json:"errors,omitempty"`

	// Cancelled is set when the batch stopped on an interrupt. The file
	// in flight is not counted as failed.
	Cancelled bool `json:"cancelled"`

	BytesSaved int64 `json:"bytes_saved"`
}

func (s *Stats) addFailure(path, reason string) {
	s.Failed++
	s.Errors = append(s.Errors, FileError{
		File:   filepath.Base(path),
		Path:   path,
		Reason: reason,
	})
}

// ExitCode returns 0 for a run without failures and 1 otherwise
func (s *Stats) ExitCode() int {
	if s.Failed > 0 {
		return 1
	}
	return 0
}

// Run describes one batch invocation
type Run struct {
	ID          string    `json:"id"`
	Directory   string    `json:"directory"`
	Mode        string    `json:"mode"`
	CRF         int       `json:"crf"`
	Preset      string    `json:"preset"`
	DryRun      bool      `json:"dry_run"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Stats       Stats     `json:"stats"`
}
