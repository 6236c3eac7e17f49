package ffmpeg

import (
	"errors"
	"fmt"
)

// Sentinel errors for probe and transcode operations.
// These can be checked with errors.Is().
var (
	ErrProbeTimeout = errors.New("ffprobe timed out")
	ErrProbeParse   = errors.New("ffprobe output not parseable")
	ErrProbeTool    = errors.New("ffprobe failed")

	ErrMissingVideoStream = errors.New("no video stream found")
	ErrMissingAudioStream = errors.New("no audio stream found")

	ErrEncoderNonZeroExit = errors.New("ffmpeg exited with non-zero status")

	// ErrCancelled is returned when a transcode stopped because of an
	// interrupt. It is not a per-file failure.
	ErrCancelled = errors.New("transcode cancelled")
)

// ProbeError describes a failed probe of one file.
type ProbeError struct {
	Path   string
	Err    error  // one of the ErrProbe* sentinels, possibly wrapped
	Stderr string // ffprobe diagnostic output, if any
}

func (e *ProbeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("probe %s: %v: %s", e.Path, e.Err, e.Stderr)
	}
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// TranscodeError represents an encoder failure with its diagnostic output
type TranscodeError struct {
	Err      error
	ExitCode int
	Stderr   string // Tail of ffmpeg's diagnostic stream
}

func (e *TranscodeError) Error() string {
	return e.Err.Error()
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// missingStreamError returns a wrapped precondition error for a source file.
func missingStreamError(sentinel error, path string) error {
	return fmt.Errorf("%w in %s", sentinel, path)
}
