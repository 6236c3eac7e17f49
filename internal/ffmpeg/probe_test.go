package ffmpeg

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestParseProbeJSON(t *testing.T) {
	data := []byte(`{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "HEVC", "nb_frames": "1500"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "nb_frames": "N/A"},
    {"index": 2, "codec_type": "subtitle", "codec_name": "dvb_subtitle"}
  ],
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "60.060000", "size": "5242880", "bit_rate": "698000"}
}`)

	result, err := ParseProbeJSON(data)
	if err != nil {
		t.Fatalf("ParseProbeJSON failed: %v", err)
	}

	if len(result.Streams) != 3 {
		t.Fatalf("expected 3 streams, got %d", len(result.Streams))
	}

	video := result.FirstVideo()
	if video == nil {
		t.Fatal("expected a video stream")
	}
	if video.CodecName != "hevc" {
		t.Errorf("expected codec names to be lowercased, got %q", video.CodecName)
	}
	if video.NbFrames == nil || *video.NbFrames != 1500 {
		t.Errorf("expected nb_frames 1500, got %v", video.NbFrames)
	}

	audio := result.FirstAudio()
	if audio == nil {
		t.Fatal("expected an audio stream")
	}
	if audio.NbFrames != nil {
		t.Errorf("expected N/A frame count to be absent, got %d", *audio.NbFrames)
	}

	if result.Streams[2].CodecType != CodecTypeOther {
		t.Errorf("expected subtitle to normalize to %q, got %q", CodecTypeOther, result.Streams[2].CodecType)
	}

	if result.Format.Duration != 60.06 {
		t.Errorf("expected duration 60.06, got %v", result.Format.Duration)
	}
	if result.Format.Size != 5242880 {
		t.Errorf("expected size 5242880, got %d", result.Format.Size)
	}
}

func TestParseProbeJSONMissingValues(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		duration float64
		frames   bool
	}{
		{
			name:     "no format block",
			json:     `{"streams": [{"index": 0, "codec_type": "video", "codec_name": "h264"}]}`,
			duration: 0,
		},
		{
			name:     "duration not available",
			json:     `{"streams": [], "format": {"duration": "N/A", "size": "10"}}`,
			duration: 0,
		},
		{
			name:     "non-numeric frame count",
			json:     `{"streams": [{"index": 0, "codec_type": "video", "codec_name": "h264", "nb_frames": "lots"}], "format": {"duration": "5.5"}}`,
			duration: 5.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseProbeJSON([]byte(tt.json))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Format.Duration != tt.duration {
				t.Errorf("expected duration %v, got %v", tt.duration, result.Format.Duration)
			}
			for _, s := range result.Streams {
				if s.NbFrames != nil {
					t.Errorf("expected no frame count, got %d", *s.NbFrames)
				}
			}
		})
	}
}

func TestParseProbeJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `this is not json`},
		{"bad duration", `{"streams": [], "format": {"duration": "ten seconds"}}`},
		{"negative size", `{"streams": [], "format": {"duration": "1", "size": "-5"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProbeJSON([]byte(tt.json))
			if !errors.Is(err, ErrProbeParse) {
				t.Errorf("expected ErrProbeParse, got %v", err)
			}
		})
	}
}

func TestProbeWithFakeTool(t *testing.T) {
	dir := t.TempDir()
	prober := NewProber(fakeProbe(t, dir, videoAudioJSON))

	result, err := prober.Probe(context.Background(), filepath.Join(dir, "any.ts"))
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if !result.HasVideo() || !result.HasAudio() {
		t.Errorf("expected video and audio, got %+v", result.Streams)
	}
	if result.Path != filepath.Join(dir, "any.ts") {
		t.Errorf("expected path to be recorded, got %q", result.Path)
	}
	if result.Format.Duration != 10 {
		t.Errorf("expected duration 10, got %v", result.Format.Duration)
	}
}

func TestProbeToolFailure(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "ffprobe", "echo 'Invalid data found when processing input' >&2\nexit 1\n")

	_, err := NewProber(script).Probe(context.Background(), "broken.ts")
	if !errors.Is(err, ErrProbeTool) {
		t.Fatalf("expected ErrProbeTool, got %v", err)
	}

	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("expected *ProbeError, got %T", err)
	}
	if probeErr.Stderr != "Invalid data found when processing input" {
		t.Errorf("expected stderr to be captured, got %q", probeErr.Stderr)
	}
}

func TestProbeTimeout(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "ffprobe", "exec sleep 10\n")

	prober := NewProber(script).WithTimeouts(200*time.Millisecond, 0)
	start := time.Now()
	_, err := prober.Probe(context.Background(), "slow.ts")
	if !errors.Is(err, ErrProbeTimeout) {
		t.Fatalf("expected ErrProbeTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("probe was not bounded, took %v", elapsed)
	}
}

func TestProbeUnparseableOutput(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "ffprobe", "echo '{\"streams\": ['\n")

	_, err := NewProber(script).Probe(context.Background(), "odd.ts")
	if !errors.Is(err, ErrProbeParse) {
		t.Fatalf("expected ErrProbeParse, got %v", err)
	}
}

func TestProbeNonExistentTool(t *testing.T) {
	prober := NewProber(filepath.Join(t.TempDir(), "no-such-ffprobe"))
	_, err := prober.Probe(context.Background(), "file.ts")
	if !errors.Is(err, ErrProbeTool) {
		t.Errorf("expected ErrProbeTool, got %v", err)
	}
}

func TestIsValidOutput(t *testing.T) {
	dir := t.TempDir()
	existing := writeSource(t, dir)

	tests := []struct {
		name     string
		json     string
		path     string
		expected bool
	}{
		{
			name:     "complete output",
			json:     `{"format": {"duration": "3600.5", "size": "734003200"}}`,
			path:     existing,
			expected: true,
		},
		{
			name:     "zero duration",
			json:     `{"format": {"duration": "0.000000", "size": "734003200"}}`,
			path:     existing,
			expected: false,
		},
		{
			name:     "zero size",
			json:     `{"format": {"duration": "10", "size": "0"}}`,
			path:     existing,
			expected: false,
		},
		{
			name:     "no format block",
			json:     `{}`,
			path:     existing,
			expected: false,
		},
		{
			name:     "missing file",
			json:     `{"format": {"duration": "10", "size": "10"}}`,
			path:     filepath.Join(dir, "missing.mp4"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toolDir := t.TempDir()
			prober := NewProber(fakeProbe(t, toolDir, tt.json))
			if got := prober.IsValidOutput(context.Background(), tt.path); got != tt.expected {
				t.Errorf("IsValidOutput = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestIsValidOutputToolFailure(t *testing.T) {
	dir := t.TempDir()
	existing := writeSource(t, dir)
	script := writeScript(t, dir, "ffprobe", "exit 1\n")

	if NewProber(script).IsValidOutput(context.Background(), existing) {
		t.Error("expected probe failure to count as invalid")
	}
}
