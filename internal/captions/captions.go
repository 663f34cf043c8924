// Package captions turns subtitle entries or word timestamps into timed
// caption cues.
package captions

import (
	"regexp"
	"sort"
	"strings"

	"github.com/bobarin/reelmaker/internal/models"
)

const (
	MinChunkWords = 5
	MaxChunkWords = 8

	// PauseBreak is the silence, in seconds, that starts a new sentence span.
	PauseBreak = 0.6

	// WidescreenAnchor places 16:9 captions 20% up from the bottom.
	WidescreenAnchor = 0.8

	minChunkDuration = 0.05
	minWordDuration  = 0.05
	minSpanDuration  = 0.01
)

var sentenceEnd = regexp.MustCompile(`[\.!?;:]+$`)

// Cue is one caption unit shown over [Start, End).
type Cue struct {
	Text   string  `json:"text"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Anchor float64 `json:"anchor"` // top-relative, 0 = top, 1 = bottom
}

// Word is a transcribed token with millisecond timing.
type Word struct {
	Text    string
	StartMs int64
	EndMs   int64
}

// Layout selects the splitting policy and placement for a job.
type Layout struct {
	Aspect         models.AspectRatio
	CaptionPercent float64 // distance from bottom, 0..1
}

// Anchor is the top-relative vertical position for this layout.
func (l Layout) Anchor() float64 {
	if l.Aspect == models.AspectWidescreen {
		return WidescreenAnchor
	}
	return Anchor(l.CaptionPercent)
}

// Anchor converts a distance-from-bottom fraction into a top-relative one.
func Anchor(percentFromBottom float64) float64 {
	p := percentFromBottom
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return 1 - p
}

// FromEntries splits subtitle entries into cues: one cue per word for
// vertical output, 5-8 word chunks for widescreen.
func FromEntries(entries []Entry, layout Layout) []Cue {
	anchor := layout.Anchor()
	ordered := append([]Entry(nil), entries...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	var cues []Cue
	for _, e := range ordered {
		tokens := strings.Fields(e.Text)
		if len(tokens) == 0 {
			continue
		}
		if layout.Aspect == models.AspectWidescreen {
			cues = append(cues, SplitChunks(tokens, e.Start, e.End, anchor)...)
		} else {
			cues = append(cues, SplitWords(tokens, e.Start, e.End, anchor)...)
		}
	}
	return cues
}

// FromWords builds cues from transcribed words. Vertical output shows each
// word at its own timing; widescreen output first groups words into sentence
// spans and then chunks each span.
func FromWords(words []Word, layout Layout) []Cue {
	anchor := layout.Anchor()
	if layout.Aspect == models.AspectWidescreen {
		var cues []Cue
		for _, span := range GroupSentences(words) {
			cues = append(cues, SplitChunks(strings.Fields(span.Text), span.Start, span.End, anchor)...)
		}
		return cues
	}

	cues := make([]Cue, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		start, end := w.seconds()
		cues = append(cues, Cue{Text: text, Start: start, End: end, Anchor: anchor})
	}
	return cues
}

func (w Word) seconds() (start, end float64) {
	start = float64(w.StartMs) / 1000.0
	end = float64(w.EndMs) / 1000.0
	if end <= start {
		end = start + minWordDuration
	}
	return start, end
}

// SplitWords gives each token an equal slice of [start, end).
func SplitWords(tokens []string, start, end, anchor float64) []Cue {
	if len(tokens) == 0 || end <= start {
		return nil
	}
	slice := (end - start) / float64(len(tokens))
	cues := make([]Cue, len(tokens))
	t0 := start
	for i, tok := range tokens {
		t1 := t0 + slice
		if i == len(tokens)-1 {
			t1 = end
		}
		cues[i] = Cue{Text: tok, Start: t0, End: t1, Anchor: anchor}
		t0 = t1
	}
	return cues
}

// SplitChunks chunks tokens and gives each chunk a share of [start, end)
// proportional to its word count, at least 0.05s, clamped to end. Chunks
// pushed past end by the minimum are dropped.
func SplitChunks(tokens []string, start, end, anchor float64) []Cue {
	if len(tokens) == 0 || end <= start {
		return nil
	}
	total := end - start
	if total < minSpanDuration {
		total = minSpanDuration
	}

	var cues []Cue
	cursor := start
	for _, chunk := range ChunkTokens(tokens, MinChunkWords, MaxChunkWords) {
		d := total * float64(len(chunk)) / float64(len(tokens))
		if d < minChunkDuration {
			d = minChunkDuration
		}
		chStart := cursor
		chEnd := chStart + d
		if chEnd > end {
			chEnd = end
		}
		cursor = chEnd
		if chEnd <= chStart {
			continue
		}
		cues = append(cues, Cue{Text: strings.Join(chunk, " "), Start: chStart, End: chEnd, Anchor: anchor})
	}
	return cues
}

// ChunkTokens fills chunks greedily up to maxWords, then moves trailing
// tokens from the second-to-last chunk into a short final chunk as long as
// the donor keeps at least minWords.
func ChunkTokens(tokens []string, minWords, maxWords int) [][]string {
	n := len(tokens)
	if n == 0 {
		return nil
	}
	if maxWords < 1 {
		maxWords = 1
	}

	var chunks [][]string
	for i := 0; i < n; i += maxWords {
		j := i + maxWords
		if j > n {
			j = n
		}
		chunks = append(chunks, append([]string(nil), tokens[i:j]...))
	}

	if k := len(chunks); k >= 2 && len(chunks[k-1]) < minWords {
		prev, last := chunks[k-2], chunks[k-1]
		take := minWords - len(last)
		if spare := len(prev) - minWords; take > spare {
			take = spare
		}
		if take > 0 {
			moved := prev[len(prev)-take:]
			chunks[k-1] = append(append([]string(nil), moved...), last...)
			chunks[k-2] = prev[:len(prev)-take]
		}
	}
	return chunks
}

// GroupSentences splits a word stream into spans. A span ends after a word
// with terminal punctuation, or before a word that follows a silence longer
// than PauseBreak.
func GroupSentences(words []Word) []Entry {
	var (
		spans   []Entry
		tokens  []string
		spanBeg float64
		prevEnd float64
		open    bool
	)

	flush := func() {
		if len(tokens) > 0 {
			spans = append(spans, Entry{Start: spanBeg, End: prevEnd, Text: strings.Join(tokens, " ")})
		}
		tokens = nil
		open = false
	}

	for _, w := range words {
		tok := strings.TrimSpace(w.Text)
		if tok == "" {
			continue
		}
		start, end := w.seconds()

		if open && start-prevEnd > PauseBreak {
			flush()
		}
		if !open {
			spanBeg = start
			open = true
		}
		tokens = append(tokens, tok)
		prevEnd = end

		if sentenceEnd.MatchString(tok) {
			flush()
		}
	}
	flush()
	return spans
}

// Clamp drops cues starting at or after limit and trims the rest to end at
// limit.
func Clamp(cues []Cue, limit float64) []Cue {
	out := make([]Cue, 0, len(cues))
	for _, c := range cues {
		if c.Start >= limit {
			continue
		}
		if c.End > limit {
			c.End = limit
		}
		if c.End > c.Start {
			out = append(out, c)
		}
	}
	return out
}
