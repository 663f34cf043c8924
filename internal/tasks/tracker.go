package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/bobarin/reelmaker/internal/models"
)

// Export progress maps into this band of overall progress.
const (
	ExportBandStart = 10
	ExportBandSpan  = 89
)

// ErrInvalidTransition is returned for step moves the state graph forbids.
var ErrInvalidTransition = errors.New("invalid step transition")

// NewTask builds the initial record for a submission.
func NewTask(id, title string, folderIntake bool) *models.Task {
	steps := models.PipelineSteps()
	if folderIntake {
		steps = append(models.FolderIntakeSteps(), steps...)
		// intake runs first; init waits for it
		for i := range steps {
			if steps[i].Key == models.StepKeyInit {
				steps[i].State = models.StepPending
			}
		}
		steps[0].State = models.StepInProgress
	}
	return &models.Task{
		ID:     id,
		Title:  title,
		Status: models.TaskStatusStarting,
		Logs:   []string{"Task initiated..."},
		Steps:  steps,
	}
}

// CanTransition reports whether a step may move from one state to another.
// pending -> in_progress|done|error, in_progress -> done|error; done and
// error are final.
func CanTransition(from, to models.StepState) bool {
	switch from {
	case models.StepPending:
		return to == models.StepInProgress || to == models.StepDone || to == models.StepError
	case models.StepInProgress:
		return to == models.StepDone || to == models.StepError
	}
	return false
}

// Tracker is the single writer for one task. Store failures are logged and
// swallowed: reporting must never take the pipeline down.
type Tracker struct {
	store Store
	id    string
}

func NewTracker(store Store, id string) *Tracker {
	return &Tracker{store: store, id: id}
}

func (t *Tracker) ID() string { return t.id }

// Report appends a log line, moves the status and raises progress. A
// negative progress leaves it unchanged. Terminal statuses stick.
func (t *Tracker) Report(ctx context.Context, status models.TaskStatus, msg string, progress int) {
	t.update(ctx, func(task *models.Task) error {
		applyStatus(task, status)
		task.Logs = append(task.Logs, msg)
		raiseProgress(task, progress)
		return nil
	}, msg)
}

// Step moves a step to a new state. Moving to the current state is a no-op.
func (t *Tracker) Step(ctx context.Context, key string, state models.StepState) error {
	_, err := t.store.Update(ctx, t.id, func(task *models.Task) error {
		for i := range task.Steps {
			s := &task.Steps[i]
			if s.Key != key {
				continue
			}
			if s.State == state {
				return nil
			}
			if !CanTransition(s.State, state) {
				return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, key, s.State, state)
			}
			s.State = state
			return nil
		}
		return fmt.Errorf("%w: unknown step %q", ErrInvalidTransition, key)
	})
	return err
}

// Advance finishes one step and starts the next.
func (t *Tracker) Advance(ctx context.Context, done, next string) {
	if err := t.Step(ctx, done, models.StepDone); err != nil {
		log.Printf("[Task %s] %v", t.id, err)
	}
	if next == "" {
		return
	}
	if err := t.Step(ctx, next, models.StepInProgress); err != nil {
		log.Printf("[Task %s] %v", t.id, err)
	}
}

// ExportProgress records encoder progress and maps it into the 10-99 band.
func (t *Tracker) ExportProgress(ctx context.Context, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	overall := ExportBandStart + pct*ExportBandSpan/100
	if overall > 99 {
		overall = 99
	}

	if _, err := t.store.Update(ctx, t.id, func(task *models.Task) error {
		if task.ExportProgress == nil || *task.ExportProgress < pct {
			v := pct
			task.ExportProgress = &v
		}
		raiseProgress(task, overall)
		return nil
	}); err != nil {
		log.Printf("[Tasks] Failed to record export progress for %s: %v", t.id, err)
	}
}

// Complete marks the task finished with a download location.
func (t *Tracker) Complete(ctx context.Context, outputPath, location, msg string) {
	t.update(ctx, func(task *models.Task) error {
		task.OutputPath = outputPath
		if location != "" {
			loc := location
			task.ResultLocation = &loc
		}
		applyStatus(task, models.TaskStatusCompleted)
		task.Logs = append(task.Logs, msg)
		raiseProgress(task, 100)
		return nil
	}, msg)
}

// SetMirrorURL records where a remote copy of the result lives.
func (t *Tracker) SetMirrorURL(ctx context.Context, url string) {
	if _, err := t.store.Update(ctx, t.id, func(task *models.Task) error {
		task.ResultURL = &url
		return nil
	}); err != nil {
		log.Printf("[Tasks] Failed to record mirror URL for %s: %v", t.id, err)
	}
}

// Fail marks the task errored. Steps still in progress are marked error;
// pending steps stay pending.
func (t *Tracker) Fail(ctx context.Context, msg string) {
	t.update(ctx, func(task *models.Task) error {
		for i := range task.Steps {
			if task.Steps[i].State == models.StepInProgress {
				task.Steps[i].State = models.StepError
			}
		}
		applyStatus(task, models.TaskStatusError)
		task.Logs = append(task.Logs, msg)
		return nil
	}, msg)
}

// Snapshot returns the current state of the task.
func (t *Tracker) Snapshot(ctx context.Context) (*models.Task, error) {
	return t.store.Get(ctx, t.id)
}

func (t *Tracker) update(ctx context.Context, fn func(*models.Task) error, msg string) {
	task, err := t.store.Update(ctx, t.id, fn)
	if err != nil {
		log.Printf("[Tasks] Failed to update task %s: %v", t.id, err)
		return
	}
	log.Printf("[Task %s] status=%s progress=%d%% %s", t.id, task.Status, task.Progress, oneLine(msg))
}

func applyStatus(task *models.Task, status models.TaskStatus) {
	if status == "" || task.IsTerminal() {
		return
	}
	task.Status = status
}

func raiseProgress(task *models.Task, progress int) {
	if progress < 0 {
		return
	}
	if progress > 100 {
		progress = 100
	}
	if progress > task.Progress {
		task.Progress = progress
	}
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}
