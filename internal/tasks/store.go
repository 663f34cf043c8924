// Package tasks holds the task registry and the step/progress tracker that
// pipeline workers report through.
package tasks

import (
	"context"

	"github.com/bobarin/reelmaker/internal/models"
)

// Store is the task registry. Get and Update hand out snapshots: callers
// never share memory with the stored task. Unknown ids yield
// models.ErrNotFound.
type Store interface {
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	// Update applies fn to a copy and stores it atomically. If fn returns an
	// error nothing is stored.
	Update(ctx context.Context, id string, fn func(*models.Task) error) (*models.Task, error)
	List(ctx context.Context) ([]*models.Task, error)
	Close() error
}
