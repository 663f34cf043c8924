package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bobarin/reelmaker/internal/models"
)

// MemoryStore is a process-local registry. Each update swaps in a fresh
// copy, so readers only ever see whole states.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*models.Task)}
}

func (s *MemoryStore) Create(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	now := time.Now().UTC()
	c := task.Clone()
	c.CreatedAt, c.UpdatedAt = now, now
	s.tasks[task.ID] = c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*models.Task) error) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	next := t.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	s.tasks[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
