package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bobarin/reelmaker/internal/composition"
	"github.com/bobarin/reelmaker/internal/models"
)

// EncodeOptions are the output encoder settings.
type EncodeOptions struct {
	VideoCodec string
	AudioCodec string
	FPS        int
	Threads    int
}

// DefaultEncodeOptions matches the standard export: H.264 + AAC at 24 fps.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{VideoCodec: "libx264", AudioCodec: "aac", FPS: 24, Threads: 4}
}

func (o EncodeOptions) withDefaults() EncodeOptions {
	d := DefaultEncodeOptions()
	if o.VideoCodec == "" {
		o.VideoCodec = d.VideoCodec
	}
	if o.AudioCodec == "" {
		o.AudioCodec = d.AudioCodec
	}
	if o.FPS <= 0 {
		o.FPS = d.FPS
	}
	if o.Threads <= 0 {
		o.Threads = d.Threads
	}
	return o
}

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

type FFmpegService struct {
	tempDir     string
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
}

func NewFFmpegService(tempDir string) (*FFmpegService, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &FFmpegService{
		tempDir:     tempDir,
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		runner:      &execRunner{},
	}, nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// Probe returns duration, the first video stream's size and whether the file
// carries audio.
func (s *FFmpegService) Probe(ctx context.Context, path string) (composition.MediaInfo, error) {
	res, err := s.runner.Run(ctx, nil, s.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,width,height,duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return composition.MediaInfo{}, fmt.Errorf("ffprobe %s failed: %w (%s)", filepath.Base(path), err, tail(res.Stderr, 300))
	}

	var out probeOutput
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return composition.MediaInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := composition.MediaInfo{}
	if d, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64); err == nil {
		info.Duration = d
	}
	for _, st := range out.Streams {
		switch st.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width, info.Height = st.Width, st.Height
			}
		case "audio":
			info.HasAudio = true
		}
		if info.Duration == 0 {
			if d, err := strconv.ParseFloat(st.Duration, 64); err == nil {
				info.Duration = d
			}
		}
	}
	return info, nil
}

// Duration returns a media file's length in seconds.
func (s *FFmpegService) Duration(ctx context.Context, path string) (float64, error) {
	info, err := s.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	if info.Duration <= 0 {
		return 0, fmt.Errorf("%s has no measurable duration", filepath.Base(path))
	}
	return info.Duration, nil
}

// CropBox is the centered crop of a srcW x srcH image to the dstW:dstH
// ratio. The longer relative side is trimmed symmetrically.
func CropBox(srcW, srcH, dstW, dstH int) (x, y, w, h int) {
	target := float64(dstW) / float64(dstH)
	src := float64(srcW) / float64(srcH)
	if src > target {
		w = int(target * float64(srcH))
		return (srcW - w) / 2, 0, w, srcH
	}
	h = int(float64(srcW) / target)
	return 0, (srcH - h) / 2, srcW, h
}

// CropToAspect center-crops an image to the aspect ratio, resizes it to the
// output dimensions and writes a PNG into outDir.
func (s *FFmpegService) CropToAspect(ctx context.Context, imagePath string, aspect models.AspectRatio, outDir string) (string, error) {
	info, err := s.Probe(ctx, imagePath)
	if err != nil {
		return "", err
	}
	if info.Width == 0 || info.Height == 0 {
		return "", fmt.Errorf("%s is not a readable image", filepath.Base(imagePath))
	}

	dstW, dstH := aspect.Dimensions()
	x, y, w, h := CropBox(info.Width, info.Height, dstW, dstH)

	base := filepath.Base(imagePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	out := filepath.Join(outDir, fmt.Sprintf("%s_%s_cropped_%s.png", stem, uuid.NewString()[:8], aspect.Tag()))

	res, err := s.runner.Run(ctx, nil, s.ffmpegPath,
		"-v", "error",
		"-i", imagePath,
		"-vf", fmt.Sprintf("crop=%d:%d:%d:%d,scale=%d:%d:flags=lanczos,setsar=1", w, h, x, y, dstW, dstH),
		"-frames:v", "1",
		"-y",
		out,
	)
	if err != nil {
		return "", fmt.Errorf("ffmpeg crop failed for %s: %w (%s)", base, err, tail(res.Stderr, 300))
	}
	return out, nil
}

// Encode renders the plan to outputPath, reporting progress to l.
func (s *FFmpegService) Encode(ctx context.Context, plan *composition.Plan, outputPath string, opts EncodeOptions, l ProgressListener) error {
	workDir, err := os.MkdirTemp(s.tempDir, "render-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create render dir: %v", models.ErrExport, err)
	}
	defer os.RemoveAll(workDir)

	captionFiles := make([]string, len(plan.Captions))
	for i, cue := range plan.Captions {
		p := filepath.Join(workDir, fmt.Sprintf("cue_%05d.txt", i))
		if err := os.WriteFile(p, []byte(cue.Text), 0644); err != nil {
			return fmt.Errorf("%w: failed to write caption text: %v", models.ErrExport, err)
		}
		captionFiles[i] = p
	}

	opts = opts.withDefaults()
	render := *plan
	render.FPS = opts.FPS
	graph, err := buildFilterGraph(&render, captionFiles)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrExport, err)
	}

	scriptPath := filepath.Join(workDir, "filter_complex.txt")
	if err := os.WriteFile(scriptPath, []byte(graph.Script), 0644); err != nil {
		return fmt.Errorf("%w: failed to write filter script: %v", models.ErrExport, err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("%w: failed to create output dir: %v", models.ErrExport, err)
	}

	args := encodeArgs(graph, scriptPath, outputPath, opts)
	log.Printf("[FFmpeg] Encoding %d scenes, %d captions, bed=%v, closing=%v -> %s",
		len(plan.Scenes), len(plan.Captions), plan.Bed != nil, plan.Closing != nil, outputPath)

	parser := newProgressParser(plan.TotalDuration(), l)
	res, err := s.runner.Run(ctx, parser.line, s.ffmpegPath, args...)
	if err != nil {
		return fmt.Errorf("%w: ffmpeg encode failed: %v (%s)", models.ErrExport, err, tail(res.Stderr, 500))
	}
	parser.report(100)
	return nil
}

func encodeArgs(g *filterGraph, scriptPath, outputPath string, opts EncodeOptions) []string {
	args := []string{"-hide_banner", "-v", "error"}
	for _, in := range g.Inputs {
		args = append(args, in.args()...)
	}
	args = append(args,
		"-filter_complex_script", scriptPath,
		"-map", "[outv]",
		"-map", "[outa]",
		"-c:v", opts.VideoCodec,
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(opts.FPS),
		"-c:a", opts.AudioCodec,
		"-b:a", "192k",
		"-threads", strconv.Itoa(opts.Threads),
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		"-y",
		outputPath,
	)
	return args
}
