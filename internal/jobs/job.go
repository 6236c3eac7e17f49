package jobs

import (
	"time"
)

// Status represents the current state of a job
type Status string

const (
	StatusDiscovered  Status = "discovered"
	StatusSkipped     Status = "skipped"
	StatusTranscoding Status = "transcoding"
	StatusVerifying   Status = "verifying"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Job is one candidate file moving through the pipeline
type Job struct {
	ID         string   `json:"id"`
	InputPath  string   `json:"input_path"`
	OutputPath string   `json:"output_path"`
	Status     Status   `json:"status"`
	Progress   float64  `json:"progress"` // 0-100
	Speed      float64  `json:"speed"`    // Encoding speed (1.0 = realtime)
	Error      string   `json:"error,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	InputSize  int64    `json:"input_size"`
	OutputSize int64    `json:"output_size,omitempty"` // Populated after transcoding
	SpaceSaved int64    `json:"space_saved,omitempty"` // InputSize - OutputSize
	Deleted    bool     `json:"deleted,omitempty"`     // Source removed after success

	TranscodeTime int64     `json:"transcode_secs,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case StatusSkipped, StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Event types delivered to queue listeners
const (
	EventStarted   = "started"
	EventProgress  = "progress"
	EventVerifying = "verifying"
	EventSkipped   = "skipped"
	EventSucceeded = "succeeded"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
	EventDeleted   = "deleted"
)

// JobEvent is a state change or progress update of a job
type JobEvent struct {
	Type string `json:"type"`
	Job  *Job   `json:"job"`
}
