package captions

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Entry is one subtitle block: a timed span of text.
type Entry struct {
	Start float64
	End   float64
	Text  string
}

var blockSeparator = regexp.MustCompile(`\r?\n\s*\r?\n`)

// ParseSRT reads SubRip content. Blocks without a valid "start --> end" line,
// with start >= end, or with no text are skipped and counted.
func ParseSRT(content string) (entries []Entry, skipped int) {
	content = strings.TrimSpace(strings.TrimPrefix(content, "\ufeff"))
	if content == "" {
		return nil, 0
	}

	for _, block := range blockSeparator.Split(content, -1) {
		entry, err := parseBlock(block)
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}
	return entries, skipped
}

func parseBlock(block string) (Entry, error) {
	var lines []string
	for _, ln := range strings.Split(block, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}

	timeIdx := -1
	switch {
	case len(lines) >= 2 && strings.Contains(lines[0], "-->"):
		timeIdx = 0
	case len(lines) >= 3 && strings.Contains(lines[1], "-->"):
		timeIdx = 1
	default:
		return Entry{}, fmt.Errorf("no timing line")
	}

	parts := strings.SplitN(lines[timeIdx], "-->", 2)
	start, err := parseTimestamp(parts[0])
	if err != nil {
		return Entry{}, err
	}
	end, err := parseTimestamp(parts[1])
	if err != nil {
		return Entry{}, err
	}

	text := strings.TrimSpace(strings.Join(lines[timeIdx+1:], " "))
	if text == "" || start >= end {
		return Entry{}, fmt.Errorf("empty or inverted block")
	}
	return Entry{Start: start, End: end, Text: text}, nil
}

// parseTimestamp parses HH:MM:SS,mmm into seconds. A '.' millisecond
// separator is accepted as well.
func parseTimestamp(raw string) (float64, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty timestamp")
	}
	ts := strings.Replace(fields[0], ".", ",", 1)

	hms := strings.Split(ts, ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("bad timestamp %q", raw)
	}
	secMs := strings.SplitN(hms[2], ",", 2)
	if len(secMs) != 2 {
		return 0, fmt.Errorf("bad timestamp %q", raw)
	}

	var vals [4]int
	for i, s := range []string{hms[0], hms[1], secMs[0], secMs[1]} {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("bad timestamp %q", raw)
		}
		vals[i] = v
	}
	return float64(vals[0]*3600+vals[1]*60+vals[2]) + float64(vals[3])/1000.0, nil
}
