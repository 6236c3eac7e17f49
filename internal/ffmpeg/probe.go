package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Default probe bounds: a full stream+format probe, and the lighter
// format-only check used to detect already-finished outputs.
const (
	DefaultProbeTimeout    = 30 * time.Second
	DefaultValidityTimeout = 10 * time.Second
)

// Stream codec types as normalized on ProbeResult.
const (
	CodecTypeVideo = "video"
	CodecTypeAudio = "audio"
	CodecTypeOther = "other"
)

// Stream describes one elementary stream of a probed file
type Stream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"` // video, audio or other
	CodecName string `json:"codec_name"`
	// NbFrames is nil when ffprobe does not report a frame count, which
	// is the norm for transport streams. It is never defaulted to zero.
	NbFrames *int64 `json:"nb_frames,omitempty"`
}

// Format contains container-level metadata
type Format struct {
	FormatName string  `json:"format_name"`
	Size       int64   `json:"size"`     // bytes
	Duration   float64 `json:"duration"` // seconds, 0 when not reported
	BitRate    int64   `json:"bit_rate"` // bits per second
}

// ProbeResult contains metadata about a media file
type ProbeResult struct {
	Path    string   `json:"path"`
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// FirstVideo returns the first video stream, or nil
func (r *ProbeResult) FirstVideo() *Stream {
	return r.first(CodecTypeVideo)
}

// FirstAudio returns the first audio stream, or nil
func (r *ProbeResult) FirstAudio() *Stream {
	return r.first(CodecTypeAudio)
}

// HasVideo reports whether the file has at least one video stream
func (r *ProbeResult) HasVideo() bool {
	return r.FirstVideo() != nil
}

// HasAudio reports whether the file has at least one audio stream
func (r *ProbeResult) HasAudio() bool {
	return r.FirstAudio() != nil
}

func (r *ProbeResult) first(codecType string) *Stream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == codecType {
			return &r.Streams[i]
		}
	}
	return nil
}

// ffprobeOutput represents the JSON output from ffprobe
type ffprobeOutput struct {
	Format  *ffprobeFormat  `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	NbFrames  string `json:"nb_frames"`
}

// Prober wraps ffprobe functionality
type Prober struct {
	ffprobePath     string
	timeout         time.Duration
	validityTimeout time.Duration
}

// NewProber creates a new Prober with the given ffprobe path and the
// default timeouts.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath:     ffprobePath,
		timeout:         DefaultProbeTimeout,
		validityTimeout: DefaultValidityTimeout,
	}
}

// WithTimeouts overrides the full and validity probe bounds. Non-positive
// values keep the current setting.
func (p *Prober) WithTimeouts(full, validity time.Duration) *Prober {
	if full > 0 {
		p.timeout = full
	}
	if validity > 0 {
		p.validityTimeout = validity
	}
	return p
}

// Probe returns stream and format metadata for path. It fails as a unit:
// either a complete ProbeResult or a *ProbeError wrapping ErrProbeTimeout,
// ErrProbeTool or ErrProbeParse.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	output, err := p.run(ctx, p.timeout, path,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
	)
	if err != nil {
		return nil, err
	}

	result, err := ParseProbeJSON(output)
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}
	result.Path = path
	return result, nil
}

// IsValidOutput reports whether path already looks like a complete,
// playable artifact: ffprobe reports a format block with nonzero size
// and nonzero duration. Any failure counts as not valid.
func (p *Prober) IsValidOutput(ctx context.Context, path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}

	output, err := p.run(ctx, p.validityTimeout, path,
		"-v", "error",
		"-show_format",
		"-print_format", "json",
	)
	if err != nil {
		return false
	}

	var probeOutput ffprobeOutput
	if err := json.Unmarshal(output, &probeOutput); err != nil || probeOutput.Format == nil {
		return false
	}
	format, err := convertFormat(probeOutput.Format)
	if err != nil {
		return false
	}
	return format.Size > 0 && format.Duration > 0
}

// run executes ffprobe with a bounded wait and maps failures onto the
// probe error taxonomy.
func (p *Prober) run(ctx context.Context, timeout time.Duration, path string, args ...string) ([]byte, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args = append(args, path)
	cmd := exec.CommandContext(probeCtx, p.ffprobePath, args...)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err == nil {
		return output, nil
	}

	diag := strings.TrimSpace(stderr.String())
	switch {
	case ctx.Err() != nil:
		return nil, &ProbeError{Path: path, Err: ctx.Err()}
	case errors.Is(probeCtx.Err(), context.DeadlineExceeded):
		return nil, &ProbeError{Path: path, Err: fmt.Errorf("%w after %v", ErrProbeTimeout, timeout)}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, &ProbeError{Path: path, Err: fmt.Errorf("%w: exit status %d", ErrProbeTool, exitErr.ExitCode()), Stderr: diag}
	}
	return nil, &ProbeError{Path: path, Err: fmt.Errorf("%w: %v", ErrProbeTool, err), Stderr: diag}
}

// ParseProbeJSON converts raw ffprobe JSON output into a ProbeResult.
// Exported for testing without a real ffprobe binary.
func ParseProbeJSON(data []byte) (*ProbeResult, error) {
	var probeOutput ffprobeOutput
	if err := json.Unmarshal(data, &probeOutput); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeParse, err)
	}

	result := &ProbeResult{
		Streams: make([]Stream, 0, len(probeOutput.Streams)),
	}

	// A missing format block leaves duration at 0, which verification
	// reports as missing duration.
	if probeOutput.Format != nil {
		format, err := convertFormat(probeOutput.Format)
		if err != nil {
			return nil, err
		}
		result.Format = format
	}

	for _, s := range probeOutput.Streams {
		result.Streams = append(result.Streams, Stream{
			Index:     s.Index,
			CodecType: normalizeCodecType(s.CodecType),
			CodecName: strings.ToLower(strings.TrimSpace(s.CodecName)),
			NbFrames:  parseOptionalInt(s.NbFrames),
		})
	}

	return result, nil
}

func convertFormat(f *ffprobeFormat) (Format, error) {
	format := Format{FormatName: f.FormatName}

	duration, err := parseNonNegativeFloat(f.Duration)
	if err != nil {
		return Format{}, fmt.Errorf("%w: duration %q", ErrProbeParse, f.Duration)
	}
	format.Duration = duration

	size, err := parseNonNegativeFloat(f.Size)
	if err != nil {
		return Format{}, fmt.Errorf("%w: size %q", ErrProbeParse, f.Size)
	}
	format.Size = int64(size)

	// Bitrate is informational only
	if rate, err := parseNonNegativeFloat(f.BitRate); err == nil {
		format.BitRate = int64(rate)
	}

	return format, nil
}

func normalizeCodecType(codecType string) string {
	switch strings.ToLower(strings.TrimSpace(codecType)) {
	case CodecTypeVideo:
		return CodecTypeVideo
	case CodecTypeAudio:
		return CodecTypeAudio
	default:
		return CodecTypeOther
	}
}

// parseNonNegativeFloat parses an ffprobe numeric string. Empty and "N/A"
// mean not reported and yield 0.
func parseNonNegativeFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("out of range: %v", v)
	}
	return v, nil
}

// parseOptionalInt returns nil for absent or non-numeric frame counts
func parseOptionalInt(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
