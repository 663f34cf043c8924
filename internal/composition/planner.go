package composition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/bobarin/reelmaker/internal/captions"
	"github.com/bobarin/reelmaker/internal/models"
	"github.com/bobarin/reelmaker/internal/timeline"
)

const (
	DefaultZoomFactor         = 0.1
	DefaultWidescreenFontSize = 72
	DefaultFPS                = 24

	closingGain        = 0.5
	closingFadeMin     = 0.3
	closingFadeMax     = 0.5
	closingFadeDefault = 0.5
)

// MediaInfo is what the planner needs to know about a media file.
type MediaInfo struct {
	Duration float64
	Width    int
	Height   int
	HasAudio bool
}

// Prober inspects media files.
type Prober interface {
	Probe(ctx context.Context, path string) (MediaInfo, error)
}

// Settings are process-wide render defaults.
type Settings struct {
	FPS                int
	ZoomFactor         float64
	WidescreenFontSize int
}

func (s Settings) withDefaults() Settings {
	if s.FPS <= 0 {
		s.FPS = DefaultFPS
	}
	if s.ZoomFactor <= 0 {
		s.ZoomFactor = DefaultZoomFactor
	}
	if s.WidescreenFontSize <= 0 {
		s.WidescreenFontSize = DefaultWidescreenFontSize
	}
	return s
}

// Input is everything one job contributes to its plan.
type Input struct {
	Config    models.JobConfig
	Partition timeline.Partition
	Images    []string // cropped, in scene order
	Cues      []captions.Cue
}

type Planner struct {
	prober   Prober
	settings Settings
}

func NewPlanner(prober Prober, settings Settings) *Planner {
	return &Planner{prober: prober, settings: settings.withDefaults()}
}

// Build returns the plan plus any degradations. A degradation wraps
// models.ErrComposition and means an optional layer was left out.
func (p *Planner) Build(ctx context.Context, in Input) (*Plan, []error, error) {
	cfg := in.Config
	part := in.Partition
	if len(in.Images) != len(part.Scenes) {
		return nil, nil, fmt.Errorf("%w: %d images for %d scenes", models.ErrComposition, len(in.Images), len(part.Scenes))
	}

	w, h := cfg.AspectRatio.Dimensions()
	plan := &Plan{
		Width:        w,
		Height:       h,
		FPS:          p.settings.FPS,
		MainDuration: part.Total,
		Scenes:       make([]SceneLayer, len(part.Scenes)),
		Captions:     captions.Clamp(in.Cues, part.Total),
		Style:        p.captionStyle(cfg),
		Narration:    AudioTrack{Path: cfg.AudioPath, Gain: 1.0},
	}

	for i, sc := range part.Scenes {
		plan.Scenes[i] = SceneLayer{
			ImagePath:  in.Images[i],
			Start:      sc.Start,
			Duration:   sc.Duration,
			FadeIn:     part.Transition,
			FadeOut:    part.Transition,
			ZoomFactor: p.settings.ZoomFactor,
		}
	}

	var degraded []error

	bed, err := p.bed(ctx, cfg, part.Total)
	if err != nil {
		degraded = append(degraded, err)
	}
	plan.Bed = bed

	closing, err := p.closing(ctx, cfg, plan)
	if err != nil {
		degraded = append(degraded, err)
	}
	plan.Closing = closing

	return plan, degraded, nil
}

func (p *Planner) captionStyle(cfg models.JobConfig) CaptionStyle {
	size := cfg.FontSize
	if cfg.AspectRatio == models.AspectWidescreen {
		size = p.settings.WidescreenFontSize
	}
	pad := size / 4
	if pad < 8 {
		pad = 8
	}
	return CaptionStyle{
		Font:         cfg.Font,
		FontColor:    cfg.FontColor,
		FontSize:     size,
		Padding:      pad,
		PanelAlpha:   0.35,
		ShadowAlpha:  0.6,
		ShadowOffset: 2,
	}
}

func (p *Planner) bed(ctx context.Context, cfg models.JobConfig, total float64) (*BedTrack, error) {
	if !cfg.BackgroundMusicEnabled || cfg.BackgroundMusicPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.BackgroundMusicPath); err != nil {
		log.Printf("[Composition] Background music not found at %s, skipping", cfg.BackgroundMusicPath)
		return nil, nil
	}

	info, err := p.prober.Probe(ctx, cfg.BackgroundMusicPath)
	if err != nil {
		return nil, fmt.Errorf("%w: background music: %v", models.ErrComposition, err)
	}
	if info.Duration <= 0 {
		return nil, fmt.Errorf("%w: background music has no duration", models.ErrComposition)
	}
	return FitBed(cfg.BackgroundMusicPath, info.Duration, total, cfg.MusicGain()), nil
}

// FitBed loops a short source or trims a long one to exactly total seconds.
func FitBed(path string, sourceDuration, total, gain float64) *BedTrack {
	return &BedTrack{
		Path:           path,
		Gain:           gain,
		Loop:           sourceDuration < total,
		SourceDuration: sourceDuration,
		Duration:       total,
	}
}

func (p *Planner) closing(ctx context.Context, cfg models.JobConfig, plan *Plan) (*ClosingClip, error) {
	if cfg.ClosingClipPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.ClosingClipPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[Composition] Closing clip not found at %s, exporting main content only", cfg.ClosingClipPath)
			return nil, nil
		}
		return nil, fmt.Errorf("%w: closing clip: %v", models.ErrComposition, err)
	}

	info, err := p.prober.Probe(ctx, cfg.ClosingClipPath)
	if err != nil {
		return nil, fmt.Errorf("%w: closing clip: %v", models.ErrComposition, err)
	}
	if info.Duration <= 0 {
		return nil, fmt.Errorf("%w: closing clip has no duration", models.ErrComposition)
	}

	return &ClosingClip{
		Path:        cfg.ClosingClipPath,
		Duration:    info.Duration,
		Width:       info.Width,
		Height:      info.Height,
		NeedsResize: info.Width != plan.Width || info.Height != plan.Height,
		HasAudio:    info.HasAudio,
		Gain:        closingGain,
		Fade:        ClosingFade(cfg.TransitionDuration, plan.MainDuration, info.Duration),
	}, nil
}

// ClosingFade clamps the requested transition into [0.3, 0.5] and then to at
// most half of the shorter adjoining clip.
func ClosingFade(requested, mainDuration, closingDuration float64) float64 {
	fade := requested
	if fade == 0 {
		fade = closingFadeDefault
	}
	if fade > closingFadeMax {
		fade = closingFadeMax
	}
	if fade < closingFadeMin {
		fade = closingFadeMin
	}

	shorter := mainDuration
	if closingDuration < shorter {
		shorter = closingDuration
	}
	limit := shorter / 2
	if limit < 0.01 {
		limit = 0.01
	}
	if fade > limit {
		fade = limit
	}
	return fade
}
