// Package verify decides whether a converted file is an acceptable
// replacement for its source. Checks run in a fixed order and the first
// failing check produces the verdict; softer discrepancies are returned
// as warnings on a passing verdict.
package verify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/gwlsn/tsshrink/internal/ffmpeg"
	"github.com/gwlsn/tsshrink/internal/logger"
)

// ErrVerificationFailed is wrapped by Verdict.Err for failing verdicts.
var ErrVerificationFailed = errors.New("verification failed")

// Check identifies which rule produced a verdict.
const (
	CheckProbe       = "probe"
	CheckOutputFile  = "output_file"
	CheckVideoStream = "video_stream"
	CheckAudioStream = "audio_stream"
	CheckVideoCodec  = "video_codec"
	CheckAudioCodec  = "audio_codec"
	CheckDuration    = "duration"
	CheckFrameCount  = "frame_count"
	CheckSize        = "size"
)

// PassedReason is the Reason of every passing verdict.
const PassedReason = "Verification passed"

// Verdict is the outcome of verifying one output against its source.
type Verdict struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
	Check  string `json:"check,omitempty"` // empty on pass

	Warnings []string `json:"warnings,omitempty"`

	// CompressionRatio is the percentage of the source size saved.
	CompressionRatio float64 `json:"compression_ratio"`
}

// Err returns nil for a pass, otherwise an error wrapping
// ErrVerificationFailed with the verdict reason.
func (v Verdict) Err() error {
	if v.OK {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrVerificationFailed, v.Reason)
}

// Inputs is everything Evaluate needs about a source/output pair.
type Inputs struct {
	SourceName string // used in log lines only

	Source    *ffmpeg.ProbeResult
	SourceErr error
	Output    *ffmpeg.ProbeResult
	OutputErr error

	SourceSize   int64
	OutputSize   int64
	OutputExists bool
}

// Prober is the probing dependency of the Engine
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// Engine probes a source/output pair and evaluates it under one Policy.
type Engine struct {
	prober Prober
	policy Policy
}

// NewEngine creates an Engine
func NewEngine(prober Prober, policy Policy) *Engine {
	return &Engine{prober: prober, policy: policy}
}

// Policy returns the policy this engine applies
func (e *Engine) Policy() Policy {
	return e.policy
}

// Verify probes both files and evaluates them.
func (e *Engine) Verify(ctx context.Context, source, output string) Verdict {
	in := Inputs{SourceName: filepath.Base(source)}

	in.Source, in.SourceErr = e.prober.Probe(ctx, source)
	in.Output, in.OutputErr = e.prober.Probe(ctx, output)

	if info, err := os.Stat(source); err == nil {
		in.SourceSize = info.Size()
	}
	if info, err := os.Stat(output); err == nil {
		in.OutputExists = true
		in.OutputSize = info.Size()
	}

	return Evaluate(in, e.policy)
}

// Evaluate applies p to in. It has no side effects beyond logging.
func Evaluate(in Inputs, p Policy) Verdict {
	var warnings []string
	warn := func(msg string, args ...any) {
		logger.Warn(msg, append([]any{"file", in.SourceName}, args...)...)
		warnings = append(warnings, msg)
	}
	fail := func(check, format string, args ...any) Verdict {
		return Verdict{
			Reason:   fmt.Sprintf(format, args...),
			Check:    check,
			Warnings: warnings,
		}
	}

	if in.SourceErr != nil || in.Source == nil {
		return fail(CheckProbe, "Failed to probe input file%s", errSuffix(in.SourceErr))
	}
	if in.OutputErr != nil || in.Output == nil {
		return fail(CheckProbe, "Failed to probe output file%s", errSuffix(in.OutputErr))
	}

	if !in.OutputExists || in.OutputSize == 0 {
		return fail(CheckOutputFile, "Output file is empty or doesn't exist")
	}

	outVideo := in.Output.FirstVideo()
	if outVideo == nil {
		return fail(CheckVideoStream, "Output has no video stream")
	}
	outAudio := in.Output.FirstAudio()
	if in.Source.HasAudio() && outAudio == nil {
		return fail(CheckAudioStream, "Output missing audio stream that was in input")
	}

	if !p.acceptsVideo(outVideo.CodecName) {
		if p.ExpectedVideo != "" {
			return fail(CheckVideoCodec, "Expected %s codec, got: %s", p.ExpectedVideo, outVideo.CodecName)
		}
		return fail(CheckVideoCodec, "Unexpected video codec: %s", outVideo.CodecName)
	}
	if outAudio != nil && !p.acceptsAudio(outAudio.CodecName) {
		return fail(CheckAudioCodec, "Unexpected audio codec: %s", outAudio.CodecName)
	}

	inDuration := in.Source.Format.Duration
	outDuration := in.Output.Format.Duration

	if p.Duration == FixedSeconds {
		if inDuration == 0 || outDuration == 0 {
			return fail(CheckDuration, "Duration information missing")
		}
		diff := math.Abs(inDuration - outDuration)
		if diff > p.ToleranceSeconds {
			return fail(CheckDuration, "Duration mismatch: %.2fs difference (tolerance: %gs)", diff, p.ToleranceSeconds)
		}
		return pass(in, warnings)
	}

	if outDuration == 0 {
		return fail(CheckDuration, "Output duration is zero")
	}
	if outDuration < MinOutputDuration {
		return fail(CheckDuration, "Output duration suspiciously short: %.2fs", outDuration)
	}

	// Transport streams rarely carry a frame count, so this only ever
	// tightens the verdict when both sides report one.
	inFrames := in.Source.FirstVideo()
	switch {
	case inFrames != nil && inFrames.NbFrames != nil && *inFrames.NbFrames > 0 && outVideo.NbFrames != nil:
		srcCount, outCount := *inFrames.NbFrames, *outVideo.NbFrames
		diffPercent := math.Abs(float64(outCount-srcCount)) / float64(srcCount) * 100
		if diffPercent > FrameWarnPercent {
			if diffPercent > FrameFailPercent {
				return fail(CheckFrameCount, "Frame count mismatch: %.2f%% difference (%d -> %d frames)", diffPercent, srcCount, outCount)
			}
			warn(fmt.Sprintf("Frame count differs by %.2f%%", diffPercent), "input_frames", srcCount, "output_frames", outCount)
		} else {
			logger.Info("Frame count verified", "file", in.SourceName, "frames", outCount, "difference_percent", round2(diffPercent))
		}
	case outVideo.NbFrames != nil && *outVideo.NbFrames > 0:
		logger.Info("Output frame count", "file", in.SourceName, "frames", *outVideo.NbFrames)
	}

	if inDuration > 0 {
		diff := math.Abs(inDuration - outDuration)
		ratio := outDuration / inDuration
		tolerance := ToleranceBand(inDuration)
		diffFraction := diff / inDuration

		logger.Info("Duration comparison",
			"file", in.SourceName,
			"input_seconds", round2(inDuration),
			"output_seconds", round2(outDuration),
			"difference", percent(diffFraction),
			"tolerance", percent(tolerance))

		if inDuration > LongRecordingThreshold {
			if diffFraction > tolerance {
				if diffFraction > tolerance*HardFailMultiplier {
					return fail(CheckDuration, "Duration difference too large: %s (tolerance: %s)", percent(diffFraction), percent(tolerance))
				}
				warn(fmt.Sprintf("Duration difference %s exceeds tolerance %s but within acceptable range", percent(diffFraction), percent(tolerance)))
			}
		} else {
			if outDuration > inDuration*MaxShortClipRatio {
				return fail(CheckDuration, "Output duration much longer than input: %.1fs > %.1fs", outDuration, inDuration)
			}
			if ratio < MinShortClipRatio {
				return fail(CheckDuration, "Output duration too short: %.0f%% of input duration", ratio*100)
			}
		}
	}

	if in.OutputSize > in.SourceSize {
		warn(fmt.Sprintf("Output larger than input (%s > %s)",
			humanize.IBytes(uint64(in.OutputSize)), humanize.IBytes(uint64(in.SourceSize))))
	}

	outputMiB := float64(in.OutputSize) / (1024 * 1024)
	if outputMiB < MinOutputMiB {
		return fail(CheckSize, "Output file suspiciously small: %.2fMB", outputMiB)
	}

	return pass(in, warnings)
}

func pass(in Inputs, warnings []string) Verdict {
	v := Verdict{OK: true, Reason: PassedReason, Warnings: warnings}
	if in.SourceSize > 0 {
		v.CompressionRatio = (1 - float64(in.OutputSize)/float64(in.SourceSize)) * 100
	}
	logger.Info(PassedReason,
		"file", in.SourceName,
		"input_size", humanize.IBytes(uint64(in.SourceSize)),
		"output_size", humanize.IBytes(uint64(in.OutputSize)),
		"compressed_percent", round2(v.CompressionRatio),
		"warnings", len(warnings))
	return v
}

func errSuffix(err error) string {
	if err == nil {
		return ""
	}
	return ": " + err.Error()
}

// percent formats a fraction as a two-decimal percentage
func percent(fraction float64) string {
	return fmt.Sprintf("%.2f%%", fraction*100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
