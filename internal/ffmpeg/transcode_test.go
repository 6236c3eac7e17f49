package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gwlsn/tsshrink/internal/lifecycle"
)

// encoderScript writes its last argument (the output path) and reports a
// few progress ticks on stderr.
const encoderScript = `for a; do out=$a; done
echo "Input #0, mpegts, from 'recording.ts':" >&2
printf 'frame=   10 fps=0.0 q=28.0 size=       0kB time=00:00:02.50 bitrate=N/A speed=5.0x\r' >&2
printf 'frame=   20 fps=20 q=28.0 size=     256kB time=00:00:05.00 bitrate=419.4kbits/s speed=5.0x\r' >&2
printf 'encoded-output' > "$out"
printf 'frame=   40 fps=20 q=-1.0 Lsize=     512kB time=00:00:10.00 bitrate=419.4kbits/s speed=5.0x\n' >&2
`

// failingScript leaves a partial file behind and exits non-zero.
const failingScript = `for a; do out=$a; done
printf 'partial' > "$out"
echo "Unknown encoder 'libx265'" >&2
exit 1
`

// endlessScript keeps encoding until it is signalled.
const endlessScript = `for a; do out=$a; done
printf 'partial' > "$out"
while :; do
  printf 'frame=1 fps=1 q=28.0 size=1kB time=00:00:01.00 bitrate=N/A speed=1.0x\r' >&2
  sleep 0.1
done
`

func newTestTranscoder(t *testing.T, probeJSON, encoder string, state *lifecycle.State) (*Transcoder, string) {
	t.Helper()
	dir := t.TempDir()
	prober := NewProber(fakeProbe(t, dir, probeJSON))
	ffmpegPath := writeScript(t, dir, "ffmpeg", encoder)
	return NewTranscoder(ffmpegPath, prober, state), dir
}

func TestTranscode(t *testing.T) {
	transcoder, dir := newTestTranscoder(t, videoAudioJSON, encoderScript, nil)
	input := writeSource(t, dir)
	output := filepath.Join(dir, "recording.mp4")

	var ticks []Progress
	result, err := transcoder.Transcode(context.Background(), TranscodeRequest{
		InputPath:  input,
		OutputPath: output,
		Settings:   DefaultEncodeSettings(),
		Progress:   func(p Progress) { ticks = append(ticks, p) },
	})
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}

	if result.InputSize != 4096 {
		t.Errorf("expected input size 4096, got %d", result.InputSize)
	}
	if result.OutputSize != int64(len("encoded-output")) {
		t.Errorf("expected output size %d, got %d", len("encoded-output"), result.OutputSize)
	}
	if result.SpaceSaved != result.InputSize-result.OutputSize {
		t.Errorf("space saved mismatch: %d", result.SpaceSaved)
	}

	if len(ticks) != 3 {
		t.Fatalf("expected 3 progress ticks, got %d", len(ticks))
	}
	if ticks[1].Percent != 50 {
		t.Errorf("expected 50%% at 5s of 10s, got %v", ticks[1].Percent)
	}
	if ticks[2].Frame != 40 {
		t.Errorf("expected final frame 40, got %d", ticks[2].Frame)
	}
}

func TestTranscodeNonZeroExitRemovesOutput(t *testing.T) {
	transcoder, dir := newTestTranscoder(t, videoAudioJSON, failingScript, nil)
	input := writeSource(t, dir)
	output := filepath.Join(dir, "recording.mp4")

	_, err := transcoder.Transcode(context.Background(), TranscodeRequest{
		InputPath:  input,
		OutputPath: output,
		Settings:   DefaultEncodeSettings(),
	})
	if !errors.Is(err, ErrEncoderNonZeroExit) {
		t.Fatalf("expected ErrEncoderNonZeroExit, got %v", err)
	}

	var transcodeErr *TranscodeError
	if !errors.As(err, &transcodeErr) {
		t.Fatalf("expected *TranscodeError, got %T", err)
	}
	if transcodeErr.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", transcodeErr.ExitCode)
	}
	if !strings.Contains(transcodeErr.Stderr, "Unknown encoder") {
		t.Errorf("expected stderr tail, got %q", transcodeErr.Stderr)
	}

	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("partial output should have been removed")
	}
}

func TestTranscodePreconditions(t *testing.T) {
	tests := []struct {
		name         string
		probeJSON    string
		requireAudio bool
		expected     error
	}{
		{"audio only source", audioOnlyJSON, false, ErrMissingVideoStream},
		{"video only source with audio required", videoOnlyJSON, true, ErrMissingAudioStream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marker := filepath.Join(t.TempDir(), "ran")
			transcoder, dir := newTestTranscoder(t, tt.probeJSON, "touch "+marker+"\n", nil)
			input := writeSource(t, dir)

			_, err := transcoder.Transcode(context.Background(), TranscodeRequest{
				InputPath:    input,
				OutputPath:   filepath.Join(dir, "recording.mp4"),
				Settings:     DefaultEncodeSettings(),
				RequireAudio: tt.requireAudio,
			})
			if !errors.Is(err, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, err)
			}
			if _, err := os.Stat(marker); !os.IsNotExist(err) {
				t.Error("encoder must not start when a precondition fails")
			}
		})
	}
}

func TestTranscodeVideoOnlyAllowed(t *testing.T) {
	transcoder, dir := newTestTranscoder(t, videoOnlyJSON, encoderScript, nil)
	input := writeSource(t, dir)

	_, err := transcoder.Transcode(context.Background(), TranscodeRequest{
		InputPath:  input,
		OutputPath: filepath.Join(dir, "recording.mp4"),
		Settings:   DefaultEncodeSettings(),
	})
	if err != nil {
		t.Fatalf("video-only source should transcode when audio is not required: %v", err)
	}
}

func TestTranscodeMissingInput(t *testing.T) {
	transcoder, dir := newTestTranscoder(t, videoAudioJSON, encoderScript, nil)

	_, err := transcoder.Transcode(context.Background(), TranscodeRequest{
		InputPath:  filepath.Join(dir, "gone.ts"),
		OutputPath: filepath.Join(dir, "gone.mp4"),
	})
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestTranscodeInterrupted(t *testing.T) {
	state := lifecycle.NewState(2 * time.Second)
	transcoder, dir := newTestTranscoder(t, videoAudioJSON, endlessScript, state)
	input := writeSource(t, dir)
	output := filepath.Join(dir, "recording.mp4")

	start := time.Now()
	_, err := transcoder.Transcode(context.Background(), TranscodeRequest{
		InputPath:  input,
		OutputPath: output,
		Settings:   DefaultEncodeSettings(),
		Progress:   func(Progress) { state.Interrupt() },
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("partial output should have been removed")
	}
	if state.Active() != nil {
		t.Error("process registration should be cleared")
	}
}

func TestTranscodeContextCancelled(t *testing.T) {
	transcoder, dir := newTestTranscoder(t, videoAudioJSON, endlessScript, lifecycle.NewState(2*time.Second))
	input := writeSource(t, dir)
	output := filepath.Join(dir, "recording.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := transcoder.Transcode(ctx, TranscodeRequest{
		InputPath:  input,
		OutputPath: output,
		Settings:   DefaultEncodeSettings(),
		Progress:   func(Progress) { cancel() },
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("partial output should have been removed")
	}
}

func TestTranscodeAlreadyInterrupted(t *testing.T) {
	state := lifecycle.NewState(time.Second)
	state.Interrupt()

	marker := filepath.Join(t.TempDir(), "ran")
	transcoder, dir := newTestTranscoder(t, videoAudioJSON, "touch "+marker+"\n", state)
	input := writeSource(t, dir)

	_, err := transcoder.Transcode(context.Background(), TranscodeRequest{
		InputPath:  input,
		OutputPath: filepath.Join(dir, "recording.mp4"),
		Settings:   DefaultEncodeSettings(),
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("encoder must not start after an interrupt")
	}
}
