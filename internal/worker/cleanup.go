package worker

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/bobarin/reelmaker/internal/models"
)

// cleanup removes every temporary artifact of a job. It runs once per job,
// after success or failure, and never returns an error: failures are logged.
func (w *Worker) cleanup(ctx context.Context, j *job) {
	tr := j.tracker
	if err := tr.Step(ctx, models.StepKeyCleanup, models.StepInProgress); err != nil {
		log.Printf("[Task %s] %v", tr.ID(), err)
	}
	tr.Report(ctx, "", "Cleaning up temporary files...", -1)

	files := append(append([]string(nil), j.cropped...), j.cfg.TempFiles...)
	dirs := append(append([]string(nil), j.cfg.TempDirs...), j.scratch)
	failed := removePaths(files, dirs)

	if err := tr.Step(ctx, models.StepKeyCleanup, models.StepDone); err != nil {
		log.Printf("[Task %s] %v", tr.ID(), err)
	}
	if failed > 0 {
		tr.Report(ctx, "", fmt.Sprintf("Cleanup finished with %d leftover path(s)", failed), -1)
	}
}

// removePaths deletes files and directory trees best-effort and returns how
// many could not be removed.
func removePaths(files, dirs []string) int {
	failed := 0
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			log.Printf("[Worker] Cleanup: failed to remove %s: %v", f, err)
			failed++
		}
	}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := os.RemoveAll(d); err != nil {
			log.Printf("[Worker] Cleanup: failed to remove %s: %v", d, err)
			failed++
		}
	}
	return failed
}
