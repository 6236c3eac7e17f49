package ffmpeg

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Progress represents one progress tick reported by ffmpeg
type Progress struct {
	Frame   int64         `json:"frame"`
	FPS     float64       `json:"fps"`
	Time    time.Duration `json:"time"`    // Current position in the output
	Speed   float64       `json:"speed"`   // Encoding speed (1.0 = realtime)
	Percent float64       `json:"percent"` // 0-100, 0 when the source duration is unknown
	Line    string        `json:"line"`    // Raw status line
}

// progressField matches "key=value" pairs in ffmpeg's status line, where
// the value may be padded ("frame=  123").
var progressField = regexp.MustCompile(`([a-z_]+)=\s*(\S+)`)

// IsProgressLine reports whether line is an ffmpeg status tick
func IsProgressLine(line string) bool {
	return strings.Contains(strings.ToLower(line), "time=")
}

// ParseProgressLine extracts a Progress from an ffmpeg status line. The
// second return is false for lines that are not progress ticks.
// totalDuration is the expected output length, used for Percent.
func ParseProgressLine(line string, totalDuration time.Duration) (Progress, bool) {
	if !IsProgressLine(line) {
		return Progress{}, false
	}

	p := Progress{Line: strings.TrimSpace(line)}
	for _, m := range progressField.FindAllStringSubmatch(strings.ToLower(line), -1) {
		key, value := m[1], m[2]
		switch key {
		case "frame":
			p.Frame, _ = strconv.ParseInt(value, 10, 64)
		case "fps":
			p.FPS, _ = strconv.ParseFloat(value, 64)
		case "time":
			p.Time = parseTimestamp(value)
		case "speed":
			// Format: "1.5x" or "N/A"
			p.Speed, _ = strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64)
		}
	}

	if totalDuration > 0 && p.Time > 0 {
		p.Percent = float64(p.Time) / float64(totalDuration) * 100
		if p.Percent > 100 {
			p.Percent = 100
		}
	}
	return p, true
}

// parseTimestamp parses "HH:MM:SS.ss"; anything else yields 0
func parseTimestamp(s string) time.Duration {
	if strings.HasPrefix(s, "-") {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	sec, errS := strconv.ParseFloat(parts[2], 64)
	if errH != nil || errM != nil || errS != nil {
		return 0
	}
	total := float64(h)*3600 + float64(m)*60 + sec
	return time.Duration(total * float64(time.Second))
}

// ProgressStream turns ffmpeg's diagnostic output into lines. ffmpeg
// rewrites its status line in place with '\r', so both '\r' and '\n'
// terminate a line. Non-progress lines are kept in a bounded tail for
// failure diagnostics.
type ProgressStream struct {
	scanner  *bufio.Scanner
	tail     []string
	tailSize int
}

// DefaultTailLines is how many diagnostic lines a ProgressStream keeps
const DefaultTailLines = 40

// NewProgressStream reads lines from r
func NewProgressStream(r io.Reader) *ProgressStream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanStatusLines)
	return &ProgressStream{scanner: scanner, tailSize: DefaultTailLines}
}

// Next returns the next non-empty line. ok is false at end of stream.
func (s *ProgressStream) Next() (line string, ok bool) {
	for s.scanner.Scan() {
		line = strings.TrimRight(s.scanner.Text(), " \t")
		if line == "" {
			continue
		}
		if !IsProgressLine(line) {
			s.remember(line)
		}
		return line, true
	}
	return "", false
}

// Err returns the first non-EOF read error
func (s *ProgressStream) Err() error {
	return s.scanner.Err()
}

// Tail returns the retained diagnostic lines joined by newlines
func (s *ProgressStream) Tail() string {
	return strings.Join(s.tail, "\n")
}

func (s *ProgressStream) remember(line string) {
	s.tail = append(s.tail, line)
	if len(s.tail) > s.tailSize {
		s.tail = s.tail[len(s.tail)-s.tailSize:]
	}
}

// scanStatusLines is bufio.ScanLines that also splits on a bare '\r'
func scanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		// Treat "\r\n" as a single terminator
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		} else if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// Need more data to know whether '\n' follows
			return 0, nil, nil
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// StopFunc is polled on every progress tick; returning true aborts reading.
type StopFunc func() bool

// ConsumeProgress reads stream until it ends or stop reports true on a
// progress tick. onTick, if non-nil, receives every parsed tick before
// stop is checked. It returns true when reading was aborted by stop;
// in that case no further output is consumed.
func ConsumeProgress(stream *ProgressStream, totalDuration time.Duration, stop StopFunc, onTick func(Progress)) (stopped bool) {
	for {
		line, ok := stream.Next()
		if !ok {
			return false
		}
		p, isTick := ParseProgressLine(line, totalDuration)
		if !isTick {
			continue
		}
		if onTick != nil {
			onTick(p)
		}
		if stop != nil && stop() {
			return true
		}
	}
}
