package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/bobarin/reelmaker/internal/composition"
)

const (
	audioSampleRate = 44100
	mixFormat       = "aformat=sample_fmts=fltp:sample_rates=44100:channel_layouts=stereo"
)

// ffInput is one -i entry. Loop adds -stream_loop -1 before it.
type ffInput struct {
	Path string
	Loop bool
}

func (in ffInput) args() []string {
	if in.Loop {
		return []string{"-stream_loop", "-1", "-i", in.Path}
	}
	return []string{"-i", in.Path}
}

// filterGraph is a compiled plan: the inputs in index order and the
// filter_complex script producing [outv] and [outa].
type filterGraph struct {
	Inputs []ffInput
	Script string
}

// buildFilterGraph compiles a plan. captionFiles holds one text file path per
// plan cue, in the same order.
func buildFilterGraph(plan *composition.Plan, captionFiles []string) (*filterGraph, error) {
	if len(plan.Scenes) == 0 {
		return nil, fmt.Errorf("plan has no scenes")
	}
	if len(captionFiles) != len(plan.Captions) {
		return nil, fmt.Errorf("have %d caption files for %d cues", len(captionFiles), len(plan.Captions))
	}

	g := &filterGraph{}
	var chains []string
	fps := plan.FPS
	T := plan.MainDuration

	// scenes: one still per input, zoompan emits the frames
	var sceneLabels strings.Builder
	for i, sc := range plan.Scenes {
		idx := len(g.Inputs)
		g.Inputs = append(g.Inputs, ffInput{Path: sc.ImagePath})

		frames := sceneFrames(sc, fps)
		dur := float64(frames) / float64(fps)
		chain := fmt.Sprintf(
			"[%d:v]scale=%d:%d,setsar=1,zoompan=z='1+%.4f*on/%d':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d",
			idx, plan.Width*2, plan.Height*2, sc.ZoomFactor, frames, frames, plan.Width, plan.Height, fps,
		)
		if sc.FadeIn > 0 {
			chain += fmt.Sprintf(",fade=t=in:st=0:d=%.3f", sc.FadeIn)
		}
		if sc.FadeOut > 0 {
			chain += fmt.Sprintf(",fade=t=out:st=%.3f:d=%.3f", math.Max(0, dur-sc.FadeOut), sc.FadeOut)
		}
		chain += fmt.Sprintf(",format=yuv420p[s%d]", i)
		chains = append(chains, chain)
		fmt.Fprintf(&sceneLabels, "[s%d]", i)
	}
	chains = append(chains, fmt.Sprintf(
		"%sconcat=n=%d:v=1:a=0,trim=duration=%.3f,setpts=PTS-STARTPTS[base]",
		sceneLabels.String(), len(plan.Scenes), T,
	))

	// captions on top of the scenes
	video := "[base]"
	if len(plan.Captions) > 0 {
		var dt []string
		for i, cue := range plan.Captions {
			dt = append(dt, drawtextFilter(plan, cue.Start, cue.End, cue.Anchor, captionFiles[i]))
		}
		chains = append(chains, "[base]"+strings.Join(dt, ",")+"[captioned]")
		video = "[captioned]"
	}

	// narration, optionally mixed with the bed
	narrIdx := len(g.Inputs)
	g.Inputs = append(g.Inputs, ffInput{Path: plan.Narration.Path})
	chains = append(chains, fmt.Sprintf(
		"[%d:a]atrim=0:%.3f,asetpts=PTS-STARTPTS,volume=%.2f,%s[narr]",
		narrIdx, T, plan.Narration.Gain, mixFormat,
	))
	audio := "[narr]"
	if bed := plan.Bed; bed != nil {
		bedIdx := len(g.Inputs)
		g.Inputs = append(g.Inputs, ffInput{Path: bed.Path, Loop: bed.Loop})
		chains = append(chains,
			fmt.Sprintf("[%d:a]atrim=0:%.3f,asetpts=PTS-STARTPTS,volume=%.2f,%s[bed]", bedIdx, bed.Duration, bed.Gain, mixFormat),
			"[narr][bed]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[mixed]",
		)
		audio = "[mixed]"
	}

	if c := plan.Closing; c != nil {
		cIdx := len(g.Inputs)
		g.Inputs = append(g.Inputs, ffInput{Path: c.Path})

		chains = append(chains, fmt.Sprintf(
			"%sfade=t=out:st=%.3f:d=%.3f[mainv]", video, math.Max(0, T-c.Fade), c.Fade,
		))

		cv := fmt.Sprintf("[%d:v]", cIdx)
		if c.NeedsResize {
			cv += fmt.Sprintf("scale=%d:%d,", plan.Width, plan.Height)
		}
		cv += fmt.Sprintf("setsar=1,fps=%d,format=yuv420p,fade=t=in:st=0:d=%.3f[closev]", fps, c.Fade)
		chains = append(chains, cv)

		if c.HasAudio {
			chains = append(chains, fmt.Sprintf("[%d:a]volume=%.2f,%s[closea]", cIdx, c.Gain, mixFormat))
		} else {
			chains = append(chains, fmt.Sprintf(
				"anullsrc=r=%d:cl=stereo,atrim=0:%.3f,%s[closea]", audioSampleRate, c.Duration, mixFormat,
			))
		}
		chains = append(chains, fmt.Sprintf("[mainv]%s[closev][closea]concat=n=2:v=1:a=1[outv][outa]", audio))
	} else {
		chains = append(chains, video+"null[outv]", audio+"anull[outa]")
	}

	g.Script = strings.Join(chains, ";\n")
	return g, nil
}

// sceneFrames derives the frame count from rounded cumulative boundaries so
// scene frames always sum to the frames of the whole timeline.
func sceneFrames(sc composition.SceneLayer, fps int) int {
	f := float64(fps)
	n := int(math.Round((sc.Start+sc.Duration)*f)) - int(math.Round(sc.Start*f))
	if n < 1 {
		n = 1
	}
	return n
}

func drawtextFilter(plan *composition.Plan, start, end, anchor float64, textFile string) string {
	st := plan.Style
	return fmt.Sprintf(
		"drawtext=font='%s':textfile='%s':expansion=none:fontsize=%d:fontcolor=%s"+
			":box=1:boxcolor=black@%.2f:boxborderw=%d"+
			":shadowcolor=black@%.2f:shadowx=%d:shadowy=%d"+
			":x=(w-text_w)/2:y='min(h*%.4f,h-text_h-%d)'"+
			":enable='between(t,%.3f,%.3f)'",
		escapeFilterValue(st.Font), escapeFilterValue(textFile), st.FontSize, ffmpegColor(st.FontColor),
		st.PanelAlpha, st.Padding,
		st.ShadowAlpha, st.ShadowOffset, st.ShadowOffset,
		anchor, st.Padding,
		start, end,
	)
}

// escapeFilterValue escapes a value placed inside single quotes in a filter
// description.
func escapeFilterValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ":", "\\:")
	s = strings.ReplaceAll(s, "'", "'\\''")
	return s
}

// ffmpegColor accepts "#RRGGBB", "RRGGBB" or a color name.
func ffmpegColor(c string) string {
	c = strings.TrimSpace(c)
	if strings.HasPrefix(c, "#") {
		return "0x" + strings.TrimPrefix(c, "#")
	}
	if len(c) == 6 && isHex(c) {
		return "0x" + c
	}
	if c == "" {
		return "white"
	}
	return escapeFilterValue(c)
}

func isHex(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
