package transcribe

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// [00:01:02.345 --> 00:01:05.000]   text
	segmentPattern  = regexp.MustCompile(`^\[(\d+):(\d{2}):(\d{2})[.,](\d{3})\s+-->\s+(\d+):(\d{2}):(\d{2})[.,](\d{3})\]`)
	progressPattern = regexp.MustCompile(`progress\s*=\s*(\d{1,3})%`)
)

// parseSegmentEnd returns the end offset in seconds of a whisper.cpp
// segment line.
func parseSegmentEnd(line string) (float64, bool) {
	m := segmentPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}
	return clockSeconds(m[5], m[6], m[7], m[8]), true
}

// parseProgressPercent extracts the percentage printed by whisper.cpp's
// progress callback.
func parseProgressPercent(line string) (float64, bool) {
	m := progressPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil || pct > 100 {
		return 0, false
	}
	return float64(pct), true
}

// parseDuration parses ffprobe's bare duration output.
func parseDuration(raw string) (float64, bool) {
	d, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// isErrorLine flags stderr lines worth surfacing as notices.
func isErrorLine(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "error") || strings.Contains(lower, "failed to") || strings.Contains(lower, ": error:")
}

func clockSeconds(h, m, s, ms string) float64 {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.Atoi(s)
	millis, _ := strconv.Atoi(ms)
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000
}

// tail keeps the last n lines written to it.
type tail struct {
	n     int
	lines []string
}

func newTail(n int) *tail {
	return &tail{n: n}
}

func (t *tail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) String() string {
	return strings.Join(t.lines, "\n")
}
