package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gwlsn/tsshrink/internal/lifecycle"
	"github.com/gwlsn/tsshrink/internal/logger"
)

// TranscodeRequest describes one source-to-output conversion
type TranscodeRequest struct {
	InputPath  string
	OutputPath string
	Settings   EncodeSettings

	// RequireAudio rejects sources without an audio stream before the
	// encoder is started.
	RequireAudio bool

	// Progress, if set, is called from the transcoding goroutine on every
	// progress tick.
	Progress func(Progress)
}

// TranscodeResult contains the result of a transcode operation
type TranscodeResult struct {
	InputPath  string        `json:"input_path"`
	OutputPath string        `json:"output_path"`
	InputSize  int64         `json:"input_size"`
	OutputSize int64         `json:"output_size"`
	SpaceSaved int64         `json:"space_saved"`
	Duration   time.Duration `json:"duration"` // How long the transcode took
}

// Transcoder wraps ffmpeg transcoding functionality
type Transcoder struct {
	ffmpegPath string
	prober     *Prober
	state      *lifecycle.State
}

// NewTranscoder creates a Transcoder that runs ffmpegPath, checks sources
// with prober, and registers every encoder it starts with state.
func NewTranscoder(ffmpegPath string, prober *Prober, state *lifecycle.State) *Transcoder {
	if state == nil {
		state = lifecycle.NewState(0)
	}
	return &Transcoder{
		ffmpegPath: ffmpegPath,
		prober:     prober,
		state:      state,
	}
}

// Transcode converts req.InputPath into req.OutputPath. On return the
// output is either complete (nil error) or absent: a non-zero encoder
// exit or a cancellation removes whatever was written.
//
// Cancellation is observed on every progress tick through the shared
// lifecycle state and ctx. A cancelled transcode returns an error
// wrapping ErrCancelled.
func (t *Transcoder) Transcode(ctx context.Context, req TranscodeRequest) (*TranscodeResult, error) {
	startTime := time.Now()

	inputInfo, err := os.Stat(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input file: %w", err)
	}
	inputSize := inputInfo.Size()

	source, err := t.prober.Probe(ctx, req.InputPath)
	if err != nil {
		return nil, err
	}
	if !source.HasVideo() {
		return nil, missingStreamError(ErrMissingVideoStream, req.InputPath)
	}
	if req.RequireAudio && !source.HasAudio() {
		return nil, missingStreamError(ErrMissingAudioStream, req.InputPath)
	}

	if t.cancelled(ctx) {
		return nil, fmt.Errorf("%w: %s", ErrCancelled, req.InputPath)
	}

	args := BuildArgs(req.InputPath, req.OutputPath, req.Settings, source.HasAudio())
	cmd := exec.Command(t.ffmpegPath, args...)
	lifecycle.Isolate(cmd)

	logger.Debug("FFmpeg command", "args", strings.Join(args, " "))

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	proc := t.state.Register(cmd, req.OutputPath)
	defer t.state.Clear(proc)

	// A cancelled ctx stops the encoder even when it has stopped
	// reporting progress. The main flow still reaps it.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			lifecycle.Terminate(proc, t.state.Grace())
		case <-watchDone:
		}
	}()

	stream := NewProgressStream(stderr)
	total := time.Duration(source.Format.Duration * float64(time.Second))
	stopped := ConsumeProgress(stream, total, func() bool { return t.cancelled(ctx) }, req.Progress)

	if stopped {
		waitErr := make(chan error, 1)
		go func() {
			err := cmd.Wait()
			proc.MarkExited()
			waitErr <- err
		}()
		if !lifecycle.Terminate(proc, t.state.Grace()) {
			logger.Warn("FFmpeg ignored SIGTERM, killed", "input", req.InputPath)
		}
		<-waitErr
		t.discard(req.OutputPath)
		return nil, fmt.Errorf("%w: %s", ErrCancelled, req.InputPath)
	}

	if err := stream.Err(); err != nil {
		logger.Debug("FFmpeg stderr read ended with error", "error", err)
	}

	waitErr := cmd.Wait()
	proc.MarkExited()

	// The interrupt handler may have stopped the encoder between ticks
	if t.cancelled(ctx) {
		t.discard(req.OutputPath)
		return nil, fmt.Errorf("%w: %s", ErrCancelled, req.InputPath)
	}

	if waitErr != nil {
		t.discard(req.OutputPath)

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		tail := stream.Tail()
		logger.Error("FFmpeg failed",
			"input", req.InputPath,
			"exit_code", exitCode,
			"stderr", lastLines(tail, 5))
		return nil, &TranscodeError{
			Err:      fmt.Errorf("%w (exit code %d)", ErrEncoderNonZeroExit, exitCode),
			ExitCode: exitCode,
			Stderr:   tail,
		}
	}

	outputInfo, err := os.Stat(req.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat output file: %w", err)
	}
	outputSize := outputInfo.Size()

	return &TranscodeResult{
		InputPath:  req.InputPath,
		OutputPath: req.OutputPath,
		InputSize:  inputSize,
		OutputSize: outputSize,
		SpaceSaved: inputSize - outputSize,
		Duration:   time.Since(startTime),
	}, nil
}

func (t *Transcoder) cancelled(ctx context.Context) bool {
	return t.state.Interrupted() || ctx.Err() != nil
}

func (t *Transcoder) discard(path string) {
	if err := lifecycle.RemovePartial(path); err != nil {
		logger.Error("Failed to delete partial file", "path", path, "error", err)
	}
}

// lastLines returns the final n lines of s joined with " | "
func lastLines(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
