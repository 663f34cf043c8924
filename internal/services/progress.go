package services

import (
	"strconv"
	"strings"
)

// ProgressListener receives export progress in percent (0-100). It is called
// synchronously from the encode loop and must return quickly.
type ProgressListener interface {
	OnExportProgress(percent int)
}

// ProgressFunc adapts a function to ProgressListener.
type ProgressFunc func(percent int)

func (f ProgressFunc) OnExportProgress(percent int) { f(percent) }

// progressParser turns ffmpeg -progress key=value lines into percentages of
// a known output duration. It only reports increases.
type progressParser struct {
	totalUs  float64
	last     int
	listener ProgressListener
}

func newProgressParser(totalSeconds float64, l ProgressListener) *progressParser {
	return &progressParser{totalUs: totalSeconds * 1e6, last: -1, listener: l}
}

func (p *progressParser) line(s string) {
	key, val, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok {
		return
	}

	switch key {
	case "out_time_us", "out_time_ms": // both are microseconds
		us, err := strconv.ParseFloat(val, 64)
		if err != nil || p.totalUs <= 0 {
			return
		}
		pct := int(100 * us / p.totalUs)
		if pct > 99 {
			pct = 99
		}
		p.report(pct)
	case "progress":
		if val == "end" {
			p.report(100)
		}
	}
}

func (p *progressParser) report(pct int) {
	if pct < 0 || pct <= p.last {
		return
	}
	p.last = pct
	if p.listener != nil {
		p.listener.OnExportProgress(pct)
	}
}
