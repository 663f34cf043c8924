package timeline

import (
	"math"
	"testing"
)

func TestSplitEqualScenes(t *testing.T) {
	p, err := Split(12, 4, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.SceneDuration != 3 {
		t.Errorf("expected scene duration 3, got %f", p.SceneDuration)
	}
	for i, s := range p.Scenes {
		if s.Start != float64(i)*3 {
			t.Errorf("scene %d: expected start %f, got %f", i, float64(i)*3, s.Start)
		}
	}
	if p.Transition != 0.7 {
		t.Errorf("expected transition 0.7, got %f", p.Transition)
	}
}

func TestSplitLastSceneEndsAtTotal(t *testing.T) {
	totals := []float64{10, 7.3, 1.0 / 3.0, 123.456789, 0.1}
	for _, total := range totals {
		for n := 1; n <= 13; n++ {
			p, err := Split(total, n, 0.5)
			if err != nil {
				t.Fatalf("Split(%f, %d): %v", total, n, err)
			}
			if end := p.Scenes[n-1].End(); end != total {
				t.Errorf("Split(%f, %d): last scene ends at %v", total, n, end)
			}
			if math.Abs(p.Sum()-total) > 1e-9 {
				t.Errorf("Split(%f, %d): scenes sum to %v", total, n, p.Sum())
			}
		}
	}
}

func TestClampTransition(t *testing.T) {
	tests := []struct {
		name      string
		requested float64
		scene     float64
		want      float64
	}{
		{"within budget", 0.5, 4, 0.5},
		{"huge", 100, 4, 2},
		{"negative", -1, 4, 0},
		{"zero", 0, 4, 0},
		{"exactly half", 2, 4, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampTransition(tt.requested, tt.scene)
			if got != tt.want {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
			if got < 0 || got > tt.scene/2 {
				t.Errorf("transition %f outside [0, %f]", got, tt.scene/2)
			}
		})
	}
}

func TestSplitRejectsBadInput(t *testing.T) {
	if _, err := Split(10, 0, 0.5); err == nil {
		t.Error("expected error for zero scenes")
	}
	if _, err := Split(0, 3, 0.5); err == nil {
		t.Error("expected error for zero duration")
	}
}
