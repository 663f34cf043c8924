// Package composition assembles scenes, captions, audio and the closing clip
// into a render plan the encoder can execute.
package composition

import (
	"github.com/bobarin/reelmaker/internal/captions"
)

// Plan is an ordered description of one render. Main content lasts exactly
// MainDuration; the closing clip, if any, follows it.
type Plan struct {
	Width        int
	Height       int
	FPS          int
	MainDuration float64

	Scenes   []SceneLayer
	Captions []captions.Cue
	Style    CaptionStyle

	Narration AudioTrack
	Bed       *BedTrack
	Closing   *ClosingClip
}

// SceneLayer is one image shown over [Start, Start+Duration) with a Ken
// Burns zoom from 1.0 to 1+ZoomFactor and independent fades at each end.
type SceneLayer struct {
	ImagePath  string
	Start      float64
	Duration   float64
	FadeIn     float64
	FadeOut    float64
	ZoomFactor float64
}

// CaptionStyle is shared by every cue in a plan.
type CaptionStyle struct {
	Font         string
	FontColor    string
	FontSize     int
	Padding      int     // panel padding around the glyphs, in pixels
	PanelAlpha   float64 // background panel opacity
	ShadowAlpha  float64
	ShadowOffset int // pixels, applied to x and y
}

type AudioTrack struct {
	Path string
	Gain float64
}

// BedTrack is background music fitted to the narration: looped when the
// source is shorter, trimmed otherwise. Duration always equals the narration.
type BedTrack struct {
	Path           string
	Gain           float64
	Loop           bool
	SourceDuration float64
	Duration       float64
}

// ClosingClip is appended after main content with a symmetric fade.
type ClosingClip struct {
	Path        string
	Duration    float64
	Width       int
	Height      int
	NeedsResize bool
	HasAudio    bool
	Gain        float64
	Fade        float64
}

// TotalDuration is the length of the rendered output.
func (p *Plan) TotalDuration() float64 {
	if p.Closing != nil {
		return p.MainDuration + p.Closing.Duration
	}
	return p.MainDuration
}

// SceneTotal sums scene durations.
func (p *Plan) SceneTotal() float64 {
	var s float64
	for _, sc := range p.Scenes {
		s += sc.Duration
	}
	return s
}
