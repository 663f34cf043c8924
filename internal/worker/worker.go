// Package worker runs render jobs: one goroutine per submitted job, reporting
// through a tasks.Tracker that pollers read concurrently.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/bobarin/reelmaker/internal/assets"
	"github.com/bobarin/reelmaker/internal/captions"
	"github.com/bobarin/reelmaker/internal/composition"
	"github.com/bobarin/reelmaker/internal/models"
	"github.com/bobarin/reelmaker/internal/services"
	"github.com/bobarin/reelmaker/internal/tasks"
	"github.com/google/uuid"
)

// DefaultDownloadRoute is the result location recorded on completion.
const DefaultDownloadRoute = "/v1/jobs/%s/download"

type Cropper interface {
	CropToAspect(ctx context.Context, imagePath string, aspect models.AspectRatio, outDir string) (string, error)
}

// Encoder renders a plan. The listener is called synchronously from the
// encode loop and must not block.
type Encoder interface {
	Encode(ctx context.Context, plan *composition.Plan, outputPath string, opts services.EncodeOptions, l services.ProgressListener) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, apiKey string) ([]captions.Word, error)
}

// Mirror copies a finished video somewhere public.
type Mirror interface {
	MirrorResult(ctx context.Context, taskID, localPath string) (string, error)
}

// Deps are the capabilities a worker drives. Fetcher and Mirror are optional.
type Deps struct {
	Store       tasks.Store
	Prober      composition.Prober
	Cropper     Cropper
	Encoder     Encoder
	Transcriber Transcriber
	Fetcher     assets.Fetcher
	Mirror      Mirror
}

// Options are process-wide, read-only job settings.
type Options struct {
	OutputDir  string
	ScratchDir string

	Encode services.EncodeOptions
	Render composition.Settings

	DefaultTransition   float64
	BackgroundMusicPath string
	ClosingClips        map[models.AspectRatio]string

	CropConcurrency int
	DownloadRoute   string
}

type Worker struct {
	deps    Deps
	opts    Options
	planner *composition.Planner
	wg      sync.WaitGroup
}

func New(deps Deps, opts Options) *Worker {
	if opts.OutputDir == "" {
		opts.OutputDir = "outputs"
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = filepath.Join(os.TempDir(), "reelmaker")
	}
	if opts.CropConcurrency <= 0 {
		opts.CropConcurrency = 4
	}
	if opts.DownloadRoute == "" {
		opts.DownloadRoute = DefaultDownloadRoute
	}
	return &Worker{
		deps:    deps,
		opts:    opts,
		planner: composition.NewPlanner(deps.Prober, opts.Render),
	}
}

// Submit validates a job, registers its task and starts the pipeline in the
// background. It returns the task id without waiting for any render work.
// Validation failures wrap models.ErrInput and remove the job's temp paths.
func (w *Worker) Submit(ctx context.Context, o models.JobOptions) (string, error) {
	id := uuid.NewString()

	if o.OutputPath == "" {
		o.OutputPath = w.OutputPath(o.Title, id)
	}
	if o.ResultLocation == "" {
		o.ResultLocation = fmt.Sprintf(w.opts.DownloadRoute, id)
	}
	if o.TransitionDuration == nil && w.opts.DefaultTransition > 0 {
		t := w.opts.DefaultTransition
		o.TransitionDuration = &t
	}
	if o.BackgroundMusicPath == "" {
		o.BackgroundMusicPath = w.opts.BackgroundMusicPath
	}
	if o.ClosingClipPath == "" {
		o.ClosingClipPath = w.opts.ClosingClips[models.ParseAspectRatio(o.AspectRatio)]
	}

	cfg, err := models.NewJobConfig(o)
	if err == nil && cfg.FromFolder() && w.deps.Fetcher == nil {
		err = fmt.Errorf("%w: folder intake is not configured", models.ErrInput)
	}
	if err != nil {
		removePaths(o.TempFiles, o.TempDirs)
		return "", err
	}

	task := tasks.NewTask(id, cfg.Title, cfg.FromFolder())
	if err := w.deps.Store.Create(ctx, task); err != nil {
		removePaths(o.TempFiles, o.TempDirs)
		return "", fmt.Errorf("failed to register task: %w", err)
	}
	log.Printf("[Worker] Task %s submitted (%s, %s, captions=%s)", id, cfg.Title, cfg.AspectRatio, cfg.CaptionSource)

	// The pipeline outlives the submitting request.
	runCtx := context.WithoutCancel(ctx)
	w.wg.Add(1)
	go w.run(runCtx, newJob(cfg, tasks.NewTracker(w.deps.Store, id), filepath.Join(w.opts.ScratchDir, id)))

	return id, nil
}

// Status returns a snapshot of the task.
func (w *Worker) Status(ctx context.Context, id string) (*models.Task, error) {
	return w.deps.Store.Get(ctx, id)
}

// FetchResult returns the path of a completed task's video.
func (w *Worker) FetchResult(ctx context.Context, id string) (string, error) {
	task, err := w.deps.Store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if task.Status != models.TaskStatusCompleted || task.OutputPath == "" {
		return "", fmt.Errorf("%w: task %s is %s", models.ErrNotReady, id, task.Status)
	}
	if _, err := os.Stat(task.OutputPath); err != nil {
		return "", fmt.Errorf("%w: output file for %s is missing", models.ErrNotFound, id)
	}
	return task.OutputPath, nil
}

// Wait blocks until every running job has finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// OutputPath is <output dir>/<slug>-<id8>/<slug>-<id8>.mp4.
func (w *Worker) OutputPath(title, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	name := Slug(title) + "-" + short
	return filepath.Join(w.opts.OutputDir, name, name+".mp4")
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a project title into a file name stem.
func Slug(title string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "default-project"
	}
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	return s
}

func (w *Worker) run(ctx context.Context, j *job) {
	defer w.wg.Done()

	err := w.process(ctx, j)
	w.cleanup(ctx, j)
	w.finish(ctx, j, err)
}

func (w *Worker) finish(ctx context.Context, j *job, err error) {
	tr := j.tracker
	if err != nil {
		log.Printf("[Worker] Task %s failed: %v", tr.ID(), err)
		tr.Fail(ctx, "Error: "+err.Error())
		return
	}

	if w.deps.Mirror != nil {
		tr.Report(ctx, models.TaskStatusProcessing, "Uploading video to remote storage...", -1)
		url, mErr := w.deps.Mirror.MirrorResult(ctx, tr.ID(), j.cfg.OutputPath)
		if mErr != nil {
			log.Printf("[Worker] Task %s mirror failed: %v", tr.ID(), mErr)
			tr.Report(ctx, "", "Warning: remote upload failed, video is still available for download", -1)
		} else {
			tr.SetMirrorURL(ctx, url)
		}
	}

	tr.Complete(ctx, j.cfg.OutputPath, j.cfg.ResultLocation, "Video processing completed!")
}

var errPanic = errors.New("pipeline panic")

// List returns every known task, newest first.
func (w *Worker) List(ctx context.Context) ([]*models.Task, error) {
	return w.deps.Store.List(ctx)
}
