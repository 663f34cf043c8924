package models

import (
	"fmt"
	"strings"
)

const (
	DefaultFont               = "Arial"
	DefaultFontColor          = "#FFFFFF"
	DefaultFontSize           = 48
	DefaultCaptionPercent     = 0.10
	DefaultTransitionDuration = 0.7
	DefaultMusicLevelPercent  = 4
)

// MusicLevels are the background bed attenuation levels a user may choose.
var MusicLevels = []int{4, 6, 8, 10, 12}

// JobOptions is the raw, unvalidated submission. Nil pointers take defaults.
type JobOptions struct {
	Title string

	AudioPath  string
	ImagePaths []string
	FolderURL  string // folder intake: assets are resolved inside the job

	OutputPath     string
	ResultLocation string

	Font           string
	FontColor      string
	FontSize       *int
	CaptionPercent *float64 // distance from bottom, 0..1

	SubtitlePath     string
	AutoCaptions     bool
	TranscriptionKey string

	AspectRatio            string
	TransitionDuration     *float64
	BackgroundMusicEnabled *bool
	BackgroundMusicLevel   *int
	BackgroundMusicPath    string
	ClosingClipPath        string

	TempFiles []string
	TempDirs  []string
}

// JobConfig is the validated, read-only configuration of one job. It is
// passed by value; slices are private copies made at construction.
type JobConfig struct {
	Title string

	AudioPath  string
	ImagePaths []string
	FolderURL  string

	OutputPath     string
	ResultLocation string

	Font           string
	FontColor      string
	FontSize       int
	CaptionPercent float64

	CaptionSource    CaptionSource
	SubtitlePath     string
	TranscriptionKey string

	AspectRatio            AspectRatio
	TransitionDuration     float64
	BackgroundMusicEnabled bool
	BackgroundMusicLevel   int
	BackgroundMusicPath    string
	ClosingClipPath        string

	TempFiles []string
	TempDirs  []string
}

// NewJobConfig applies defaults and validates a submission.
func NewJobConfig(o JobOptions) (JobConfig, error) {
	cfg := JobConfig{
		Title:               strings.TrimSpace(o.Title),
		AudioPath:           o.AudioPath,
		ImagePaths:          append([]string(nil), o.ImagePaths...),
		FolderURL:           strings.TrimSpace(o.FolderURL),
		OutputPath:          o.OutputPath,
		ResultLocation:      o.ResultLocation,
		Font:                o.Font,
		FontColor:           o.FontColor,
		FontSize:            DefaultFontSize,
		CaptionPercent:      DefaultCaptionPercent,
		SubtitlePath:        o.SubtitlePath,
		TranscriptionKey:    o.TranscriptionKey,
		AspectRatio:         ParseAspectRatio(o.AspectRatio),
		TransitionDuration:  DefaultTransitionDuration,
		BackgroundMusicPath: o.BackgroundMusicPath,
		ClosingClipPath:     o.ClosingClipPath,
		TempFiles:           append([]string(nil), o.TempFiles...),
		TempDirs:            append([]string(nil), o.TempDirs...),
	}

	if cfg.Title == "" {
		cfg.Title = "default-project"
	}
	if cfg.Font == "" {
		cfg.Font = DefaultFont
	}
	if cfg.FontColor == "" {
		cfg.FontColor = DefaultFontColor
	}
	if o.FontSize != nil && *o.FontSize > 0 {
		cfg.FontSize = *o.FontSize
	}
	if o.CaptionPercent != nil {
		cfg.CaptionPercent = *o.CaptionPercent
	}
	if o.TransitionDuration != nil {
		cfg.TransitionDuration = *o.TransitionDuration
	}

	cfg.BackgroundMusicEnabled = true
	if o.BackgroundMusicEnabled != nil {
		cfg.BackgroundMusicEnabled = *o.BackgroundMusicEnabled
	}
	cfg.BackgroundMusicLevel = DefaultMusicLevelPercent
	if o.BackgroundMusicLevel != nil && isMusicLevel(*o.BackgroundMusicLevel) {
		cfg.BackgroundMusicLevel = *o.BackgroundMusicLevel
	}

	switch {
	case cfg.SubtitlePath != "":
		cfg.CaptionSource = CaptionSourceSubtitle
	case o.AutoCaptions && cfg.TranscriptionKey != "":
		cfg.CaptionSource = CaptionSourceTranscribe
	default:
		cfg.CaptionSource = CaptionSourceNone
	}

	if err := cfg.Validate(); err != nil {
		return JobConfig{}, err
	}
	return cfg, nil
}

// Validate checks the invariants a job needs before any work begins.
func (c JobConfig) Validate() error {
	if c.OutputPath == "" {
		return fmt.Errorf("%w: output path is required", ErrInput)
	}
	if c.FolderURL == "" {
		if c.AudioPath == "" {
			return fmt.Errorf("%w: audio file is required", ErrInput)
		}
		if len(c.ImagePaths) == 0 {
			return fmt.Errorf("%w: at least one image is required", ErrInput)
		}
	}
	return c.CaptionSource.Validate()
}

// FromFolder reports whether assets still have to be fetched.
func (c JobConfig) FromFolder() bool {
	return c.FolderURL != ""
}

// WithAssets returns a copy bound to resolved assets (folder intake).
func (c JobConfig) WithAssets(audioPath string, imagePaths []string, tempDir string) JobConfig {
	c.AudioPath = audioPath
	c.ImagePaths = append([]string(nil), imagePaths...)
	if tempDir != "" {
		c.TempDirs = append(append([]string(nil), c.TempDirs...), tempDir)
	}
	return c
}

// MusicGain is the bed attenuation as a linear gain factor.
func (c JobConfig) MusicGain() float64 {
	return float64(c.BackgroundMusicLevel) / 100.0
}

func isMusicLevel(v int) bool {
	for _, l := range MusicLevels {
		if l == v {
			return true
		}
	}
	return false
}

// ParseCheckbox interprets HTML checkbox values ("on", "true", "1", "yes").
func ParseCheckbox(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}
