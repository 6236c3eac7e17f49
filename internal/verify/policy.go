package verify

import (
	"slices"
	"strings"
)

// DurationMode selects how output duration is compared to the source.
type DurationMode int

const (
	// Banded compares the relative difference against a tolerance picked
	// by source length. Used for re-encoded outputs.
	Banded DurationMode = iota
	// FixedSeconds compares the absolute difference against a fixed
	// number of seconds. Used for stream-copied outputs.
	FixedSeconds
)

func (m DurationMode) String() string {
	switch m {
	case Banded:
		return "banded"
	case FixedSeconds:
		return "fixed-seconds"
	default:
		return "unknown"
	}
}

// Duration and size thresholds for the banded policy
const (
	MinOutputDuration = 5.0 // seconds

	// Sources longer than this use the tight percentage bands and the
	// warn/hard-fail split; shorter ones use the ratio bounds.
	LongRecordingThreshold = 1800.0

	HardFailMultiplier = 10.0

	MaxShortClipRatio = 1.2
	MinShortClipRatio = 0.5

	FrameWarnPercent = 1.0
	FrameFailPercent = 5.0

	MinOutputMiB = 0.1
)

// Policy is the set of acceptance rules for one kind of output.
type Policy struct {
	Name string

	VideoCodecs []string
	// ExpectedVideo names the target codec family in failure messages.
	// Empty for policies that accept any recognised codec.
	ExpectedVideo string

	AudioCodecs []string

	Duration         DurationMode
	ToleranceSeconds float64 // FixedSeconds only
}

// AudioPlaybackCodecs are the audio codecs accepted in an MP4 output
var AudioPlaybackCodecs = []string{"aac", "mp3", "opus", "ac3", "eac3"}

// TranscodePolicy accepts HEVC output and compares durations with the
// length-banded tolerance.
func TranscodePolicy() Policy {
	return Policy{
		Name:          "transcode",
		VideoCodecs:   []string{"hevc", "h265"},
		ExpectedVideo: "HEVC",
		AudioCodecs:   AudioPlaybackCodecs,
		Duration:      Banded,
	}
}

// RemuxPolicy accepts the stream-copied codecs a transport stream
// normally carries and allows toleranceSeconds of duration difference.
func RemuxPolicy(toleranceSeconds float64) Policy {
	return Policy{
		Name:             "remux",
		VideoCodecs:      []string{"h264", "hevc", "h265"},
		AudioCodecs:      AudioPlaybackCodecs,
		Duration:         FixedSeconds,
		ToleranceSeconds: toleranceSeconds,
	}
}

// PolicyFor returns RemuxPolicy for mode "remux" and TranscodePolicy
// otherwise.
func PolicyFor(mode string, toleranceSeconds float64) Policy {
	if strings.EqualFold(mode, "remux") {
		return RemuxPolicy(toleranceSeconds)
	}
	return TranscodePolicy()
}

func (p Policy) acceptsVideo(codec string) bool {
	return slices.Contains(p.VideoCodecs, strings.ToLower(codec))
}

func (p Policy) acceptsAudio(codec string) bool {
	return slices.Contains(p.AudioCodecs, strings.ToLower(codec))
}

// ToleranceBand returns the allowed relative duration difference for a
// source of the given length in seconds.
func ToleranceBand(sourceSeconds float64) float64 {
	switch {
	case sourceSeconds > 7200:
		return 0.001
	case sourceSeconds > 3600:
		return 0.002
	case sourceSeconds > LongRecordingThreshold:
		return 0.005
	default:
		return 0.05
	}
}
