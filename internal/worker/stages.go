package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/bobarin/reelmaker/internal/assets"
	"github.com/bobarin/reelmaker/internal/captions"
	"github.com/bobarin/reelmaker/internal/composition"
	"github.com/bobarin/reelmaker/internal/models"
	"github.com/bobarin/reelmaker/internal/services"
	"github.com/bobarin/reelmaker/internal/tasks"
	"github.com/bobarin/reelmaker/internal/timeline"
	"golang.org/x/sync/errgroup"
)

// Outcome classifies how a stage ended.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeDegraded: an optional layer was dropped, the job continues.
	OutcomeDegraded
	// OutcomeFatal: the job stops.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeDegraded:
		return "degraded"
	default:
		return "fatal"
	}
}

// StageResult is what each stage hands back to the orchestrator.
type StageResult struct {
	Outcome  Outcome
	Message  string
	Warnings []error
	Err      error
}

func stageOK(format string, args ...any) StageResult {
	return StageResult{Outcome: OutcomeOK, Message: fmt.Sprintf(format, args...)}
}

func stageDegraded(msg string, warnings ...error) StageResult {
	return StageResult{Outcome: OutcomeDegraded, Message: msg, Warnings: warnings}
}

func stageFatal(err error) StageResult {
	return StageResult{Outcome: OutcomeFatal, Err: err}
}

// Progress milestones per stage. Export fills the 10-99 band.
const (
	progressInit      = 5
	progressDurations = 6
	progressImages    = 7
	progressAssemble  = 8
	progressSubtitles = 9
)

// job is the per-task working state. Only the owning goroutine touches it.
type job struct {
	cfg     models.JobConfig
	tracker *tasks.Tracker
	scratch string

	partition timeline.Partition
	cropped   []string
	plan      *composition.Plan
}

func newJob(cfg models.JobConfig, tr *tasks.Tracker, scratch string) *job {
	return &job{cfg: cfg, tracker: tr, scratch: scratch}
}

type stage struct {
	key      string
	start    string
	progress int
	run      func(context.Context, *job) StageResult
}

func (w *Worker) stages() []stage {
	return []stage{
		{models.StepKeyInit, "Initializing...", progressInit, w.initialize},
		{models.StepKeyDurations, "Calculating durations...", progressDurations, w.durations},
		{models.StepKeyImages, "Processing images...", progressImages, w.processImages},
		{models.StepKeyAssemble, "Assembling clips...", progressAssemble, w.assemble},
		{models.StepKeySubtitles, "Generating subtitles...", progressSubtitles, w.subtitles},
		{models.StepKeyExport, "Exporting video...", tasks.ExportBandStart, w.export},
	}
}

// process runs intake and every stage in order. A panic is turned into an
// error so cleanup and failure reporting still happen.
func (w *Worker) process(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker] Task %s panicked: %v\n%s", j.tracker.ID(), r, debug.Stack())
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()

	tr := j.tracker
	if j.cfg.FromFolder() {
		if err := w.intake(ctx, j); err != nil {
			return err
		}
	}

	for _, st := range w.stages() {
		if err := tr.Step(ctx, st.key, models.StepInProgress); err != nil {
			log.Printf("[Task %s] %v", tr.ID(), err)
		}
		tr.Report(ctx, models.TaskStatusProcessing, st.start, st.progress)

		res := st.run(ctx, j)
		for _, warn := range res.Warnings {
			tr.Report(ctx, "", "Warning: "+warn.Error(), -1)
		}

		switch res.Outcome {
		case OutcomeFatal:
			return fmt.Errorf("%s: %w", st.key, res.Err)
		case OutcomeDegraded:
			if err := tr.Step(ctx, st.key, models.StepError); err != nil {
				log.Printf("[Task %s] %v", tr.ID(), err)
			}
		default:
			if err := tr.Step(ctx, st.key, models.StepDone); err != nil {
				log.Printf("[Task %s] %v", tr.ID(), err)
			}
		}
		if res.Message != "" {
			tr.Report(ctx, "", res.Message, -1)
		}
	}
	return nil
}

// intake downloads a shared folder and binds the job to what it contains.
func (w *Worker) intake(ctx context.Context, j *job) error {
	dest := filepath.Join(j.scratch, "folder")
	res, err := assets.ResolveFromFolder(ctx, w.deps.Fetcher, j.cfg.FolderURL, dest, &intakeObserver{ctx: ctx, tr: j.tracker})
	if err != nil {
		return err
	}
	j.cfg = j.cfg.WithAssets(res.AudioPath, res.ImagePaths, dest)
	j.tracker.Report(ctx, models.TaskStatusProcessing,
		fmt.Sprintf("Found audio %s and %d image(s)", filepath.Base(res.AudioPath), len(res.ImagePaths)), -1)
	return nil
}

var intakeLabels = map[string]string{
	assets.StageFetch:     "Retrieving folder contents...",
	assets.StageStructure: "Building directory structure...",
	assets.StageDownload:  "Downloading...",
}

var intakeProgress = map[string]int{
	assets.StageFetch:     1,
	assets.StageStructure: 2,
	assets.StageDownload:  3,
}

type intakeObserver struct {
	ctx context.Context
	tr  *tasks.Tracker
}

func (o *intakeObserver) StageStarted(stage string) {
	if err := o.tr.Step(o.ctx, stage, models.StepInProgress); err != nil {
		log.Printf("[Task %s] %v", o.tr.ID(), err)
	}
	o.tr.Report(o.ctx, models.TaskStatusProcessing, intakeLabels[stage], intakeProgress[stage])
}

func (o *intakeObserver) StageFinished(stage string, err error) {
	if err != nil {
		return
	}
	if err := o.tr.Step(o.ctx, stage, models.StepDone); err != nil {
		log.Printf("[Task %s] %v", o.tr.ID(), err)
	}
}

func (w *Worker) initialize(ctx context.Context, j *job) StageResult {
	res, err := assets.ResolveInputs([]string{j.cfg.AudioPath}, j.cfg.ImagePaths)
	if err != nil {
		return stageFatal(err)
	}
	if _, err := os.Stat(res.AudioPath); err != nil {
		return stageFatal(fmt.Errorf("%w: audio file is not readable: %v", models.ErrInput, err))
	}
	j.cfg.ImagePaths = res.ImagePaths

	if err := os.MkdirAll(j.scratch, 0755); err != nil {
		return stageFatal(fmt.Errorf("failed to create scratch dir: %w", err))
	}
	if err := os.MkdirAll(filepath.Dir(j.cfg.OutputPath), 0755); err != nil {
		return stageFatal(fmt.Errorf("failed to create output dir: %w", err))
	}
	return stageOK("Project %q: %d image(s), aspect ratio %s", j.cfg.Title, len(j.cfg.ImagePaths), j.cfg.AspectRatio)
}

func (w *Worker) durations(ctx context.Context, j *job) StageResult {
	info, err := w.deps.Prober.Probe(ctx, j.cfg.AudioPath)
	if err != nil {
		return stageFatal(fmt.Errorf("%w: failed to read audio duration: %v", models.ErrInput, err))
	}

	part, err := timeline.Split(info.Duration, len(j.cfg.ImagePaths), j.cfg.TransitionDuration)
	if err != nil {
		return stageFatal(fmt.Errorf("%w: %v", models.ErrInput, err))
	}
	j.partition = part
	return stageOK("Audio duration: %.2fs, %d scene(s) of %.2fs, transition %.2fs",
		part.Total, len(part.Scenes), part.SceneDuration, part.Transition)
}

// processImages crops every image in parallel. Results keep scene order and
// every crop that succeeded is registered for cleanup even on failure.
func (w *Worker) processImages(ctx context.Context, j *job) StageResult {
	out := make([]string, len(j.cfg.ImagePaths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.CropConcurrency)

	var mu sync.Mutex
	done := 0
	for i, path := range j.cfg.ImagePaths {
		i, path := i, path
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: image %s: crop panicked: %v", models.ErrInput, filepath.Base(path), r)
				}
			}()

			cropped, err := w.deps.Cropper.CropToAspect(gctx, path, j.cfg.AspectRatio, j.scratch)
			if err != nil {
				return fmt.Errorf("%w: image %s: %v", models.ErrInput, filepath.Base(path), err)
			}
			out[i] = cropped

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			log.Printf("[Worker] Task %s cropped image %d/%d", j.tracker.ID(), n, len(out))
			return nil
		})
	}
	err := g.Wait()

	for _, p := range out {
		if p != "" {
			j.cropped = append(j.cropped, p)
		}
	}
	if err != nil {
		return stageFatal(err)
	}
	return stageOK("Processed %d image(s) to %s", len(out), j.cfg.AspectRatio)
}

func (w *Worker) assemble(ctx context.Context, j *job) StageResult {
	plan, warnings, err := w.planner.Build(ctx, composition.Input{
		Config:    j.cfg,
		Partition: j.partition,
		Images:    j.cropped,
	})
	if err != nil {
		return stageFatal(err)
	}
	j.plan = plan

	if len(warnings) > 0 {
		return stageDegraded(fmt.Sprintf("Assembled %d clip(s) without optional layers", len(plan.Scenes)), warnings...)
	}
	return stageOK("Assembled %d clip(s), %.2fs total", len(plan.Scenes), plan.TotalDuration())
}

func (w *Worker) subtitles(ctx context.Context, j *job) StageResult {
	layout := captions.Layout{Aspect: j.cfg.AspectRatio, CaptionPercent: j.cfg.CaptionPercent}

	var cues []captions.Cue
	switch j.cfg.CaptionSource {
	case models.CaptionSourceSubtitle:
		data, err := os.ReadFile(j.cfg.SubtitlePath)
		if err != nil {
			return stageDegraded("Continuing without captions",
				fmt.Errorf("%w: failed to read subtitle file: %v", models.ErrSubtitleParse, err))
		}
		entries, skipped := captions.ParseSRT(string(data))
		if skipped > 0 {
			log.Printf("[Worker] Task %s skipped %d malformed subtitle block(s)", j.tracker.ID(), skipped)
		}
		cues = captions.FromEntries(entries, layout)

	case models.CaptionSourceTranscribe:
		if w.deps.Transcriber == nil {
			return stageDegraded("Continuing without captions",
				fmt.Errorf("%w: transcription is not configured", models.ErrTranscription))
		}
		words, err := w.deps.Transcriber.Transcribe(ctx, j.cfg.AudioPath, j.cfg.TranscriptionKey)
		if err != nil {
			if !errors.Is(err, models.ErrTranscription) {
				err = fmt.Errorf("%w: %v", models.ErrTranscription, err)
			}
			return stageDegraded("Continuing without captions", err)
		}
		cues = captions.FromWords(words, layout)

	default:
		return stageOK("Captions disabled")
	}

	j.plan.Captions = captions.Clamp(cues, j.plan.MainDuration)
	return stageOK("Generated %d caption cue(s)", len(j.plan.Captions))
}

func (w *Worker) export(ctx context.Context, j *job) StageResult {
	tr := j.tracker
	listener := services.ProgressFunc(func(pct int) {
		tr.ExportProgress(ctx, pct)
	})

	if err := w.deps.Encoder.Encode(ctx, j.plan, j.cfg.OutputPath, w.opts.Encode, listener); err != nil {
		if !errors.Is(err, models.ErrExport) {
			err = fmt.Errorf("%w: %v", models.ErrExport, err)
		}
		return stageFatal(err)
	}
	return stageOK("Exported %s", strings.TrimPrefix(j.cfg.OutputPath, w.opts.OutputDir+string(filepath.Separator)))
}
