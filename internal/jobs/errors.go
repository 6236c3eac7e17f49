package jobs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gwlsn/tsshrink/internal/ffmpeg"
)

// Sentinel errors for job operations.
// These can be checked with errors.Is().
var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobTerminal = errors.New("job already finished")
)

// jobNotFoundError returns a wrapped error for a missing job.
func jobNotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// jobTerminalError returns a wrapped error for a job that can no longer change.
func jobTerminalError(id string, status Status) error {
	return fmt.Errorf("%w (status: %s): %s", ErrJobTerminal, status, id)
}

// failureReason turns a per-file transcode error into the reason shown in
// the run summary.
func failureReason(err error) string {
	var transcodeErr *ffmpeg.TranscodeError
	switch {
	case errors.As(err, &transcodeErr):
		reason := "Compression failed: " + transcodeErr.Error()
		if line := lastLine(transcodeErr.Stderr); line != "" {
			reason += ": " + line
		}
		return reason
	case errors.Is(err, ffmpeg.ErrMissingVideoStream), errors.Is(err, ffmpeg.ErrMissingAudioStream):
		return "Precondition failed: " + err.Error()
	case errors.Is(err, ffmpeg.ErrProbeTimeout), errors.Is(err, ffmpeg.ErrProbeTool), errors.Is(err, ffmpeg.ErrProbeParse):
		return "Probe failed: " + err.Error()
	default:
		return "Compression failed: " + err.Error()
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
