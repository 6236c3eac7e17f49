package ffmpeg

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeScript creates an executable shell script standing in for
// ffmpeg or ffprobe.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// fakeProbe returns an ffprobe stand-in that always prints json
func fakeProbe(t *testing.T, dir, json string) string {
	t.Helper()
	return writeScript(t, dir, "ffprobe", "cat <<'EOF'\n"+json+"\nEOF\n")
}

const videoAudioJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {"format_name": "mpegts", "duration": "10.000000", "size": "1048576", "bit_rate": "838860"}
}`

const videoOnlyJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264"}
  ],
  "format": {"format_name": "mpegts", "duration": "10.000000", "size": "1048576"}
}`

const audioOnlyJSON = `{
  "streams": [
    {"index": 0, "codec_type": "audio", "codec_name": "mp2"}
  ],
  "format": {"format_name": "mpegts", "duration": "10.000000", "size": "1048576"}
}`

func writeSource(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "recording.ts")
	if err := os.WriteFile(path, make([]byte, 4096), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
