// Package timeline splits narration time across scenes.
package timeline

import "fmt"

// Scene is one image's slot in the output timeline.
type Scene struct {
	Index    int
	Start    float64
	Duration float64
}

// End is the exclusive end of the scene window.
func (s Scene) End() float64 { return s.Start + s.Duration }

// Partition is the result of splitting a narration across N scenes.
type Partition struct {
	Total         float64
	SceneDuration float64
	Transition    float64
	Scenes        []Scene
}

// Split divides total seconds into count equal scenes and clamps the requested
// fade length to [0, sceneDuration/2]. The last scene absorbs any floating
// point drift so the scenes always sum to total.
func Split(total float64, count int, requestedTransition float64) (Partition, error) {
	if count < 1 {
		return Partition{}, fmt.Errorf("scene count must be at least 1, got %d", count)
	}
	if total <= 0 {
		return Partition{}, fmt.Errorf("total duration must be positive, got %.3f", total)
	}

	sd := total / float64(count)
	p := Partition{
		Total:         total,
		SceneDuration: sd,
		Transition:    ClampTransition(requestedTransition, sd),
		Scenes:        make([]Scene, count),
	}

	for i := range p.Scenes {
		p.Scenes[i] = Scene{Index: i, Start: float64(i) * sd, Duration: sd}
	}
	last := &p.Scenes[count-1]
	last.Duration = total - last.Start

	return p, nil
}

// ClampTransition bounds a fade so it never covers more than half a scene.
func ClampTransition(requested, sceneDuration float64) float64 {
	t := requested
	if half := sceneDuration / 2; t > half {
		t = half
	}
	if t < 0 {
		t = 0
	}
	return t
}

// Sum adds scene durations back up.
func (p Partition) Sum() float64 {
	var s float64
	for _, sc := range p.Scenes {
		s += sc.Duration
	}
	return s
}
