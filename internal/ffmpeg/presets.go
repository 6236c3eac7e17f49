package ffmpeg

import (
	"strconv"
)

// CRF bounds for x264/x265 constant-quality encoding
const (
	MinCRF = 0
	MaxCRF = 51
)

// SpeedPresets lists the x265 speed presets ordered fastest to slowest.
var SpeedPresets = []string{
	"ultrafast",
	"superfast",
	"veryfast",
	"faster",
	"fast",
	"medium",
	"slow",
	"slower",
	"veryslow",
}

// PresetIndex returns the position of name in SpeedPresets, or -1
func PresetIndex(name string) int {
	for i, p := range SpeedPresets {
		if p == name {
			return i
		}
	}
	return -1
}

// IsValidPreset returns true if name is a known speed preset
func IsValidPreset(name string) bool {
	return PresetIndex(name) >= 0
}

// EncodeSettings defines how the video stream is written
type EncodeSettings struct {
	// Copy stream-copies video instead of re-encoding (remux)
	Copy bool

	Encoder string // FFmpeg encoder name, e.g. "libx265"
	CRF     int
	Preset  string
	Tag     string // Codec tag, e.g. "hvc1"; empty leaves ffmpeg's default
}

// DefaultEncodeSettings returns libx265 at CRF 28, preset medium, tagged hvc1
func DefaultEncodeSettings() EncodeSettings {
	return EncodeSettings{
		Encoder: "libx265",
		CRF:     28,
		Preset:  "medium",
		Tag:     "hvc1",
	}
}

// BuildArgs returns the ffmpeg argument list (without the binary) that
// maps the first video stream, and the first audio stream when mapAudio
// is set, from inputPath to outputPath. Audio is always stream-copied.
func BuildArgs(inputPath, outputPath string, s EncodeSettings, mapAudio bool) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-i", inputPath,
		"-map", "0:v:0", // First video stream only
	}
	if mapAudio {
		args = append(args, "-map", "0:a:0")
	}

	if s.Copy {
		args = append(args, "-c:v", "copy")
	} else {
		args = append(args,
			"-c:v", s.Encoder,
			"-crf", strconv.Itoa(s.CRF),
			"-preset", s.Preset,
		)
	}
	if s.Tag != "" {
		args = append(args, "-tag:v", s.Tag)
	}
	if mapAudio {
		args = append(args, "-c:a", "copy")
	}

	args = append(args,
		"-movflags", "+faststart", // Progressive playback
		"-y", // Overwrite output without asking
		outputPath,
	)
	return args
}
