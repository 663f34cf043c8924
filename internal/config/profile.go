package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RenderProfile overrides encoder and caption defaults. Zero values keep the
// built-in defaults.
type RenderProfile struct {
	FPS                int     `yaml:"fps"`
	VideoCodec         string  `yaml:"videoCodec"`
	AudioCodec         string  `yaml:"audioCodec"`
	Threads            int     `yaml:"threads"`
	DefaultTransition  float64 `yaml:"defaultTransition"`
	ZoomFactor         float64 `yaml:"zoomFactor"`
	WidescreenFontSize int     `yaml:"widescreenFontSize"`
	MusicLevels        []int   `yaml:"musicLevels"`
}

// LoadRenderProfile reads a YAML render profile. An empty path yields the
// zero profile.
func LoadRenderProfile(path string) (RenderProfile, error) {
	var p RenderProfile
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read render profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse render profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("render profile %s: %w", path, err)
	}
	return p, nil
}

func (p RenderProfile) Validate() error {
	if p.FPS < 0 || p.FPS > 120 {
		return fmt.Errorf("fps must be between 1 and 120")
	}
	if p.Threads < 0 {
		return fmt.Errorf("threads must not be negative")
	}
	if p.DefaultTransition < 0 {
		return fmt.Errorf("defaultTransition must not be negative")
	}
	if p.ZoomFactor < 0 || p.ZoomFactor > 1 {
		return fmt.Errorf("zoomFactor must be between 0 and 1")
	}
	for _, l := range p.MusicLevels {
		if l <= 0 || l > 100 {
			return fmt.Errorf("musicLevels entries must be between 1 and 100, got %d", l)
		}
	}
	return nil
}
