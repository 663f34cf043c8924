package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/bobarin/reelmaker/internal/models"
)

const createTasksTable = `
	CREATE TABLE IF NOT EXISTS render_tasks (
		id         TEXT PRIMARY KEY,
		data       JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// PostgresStore keeps one JSONB row per task. Updates lock the row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTasksTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create render_tasks table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Create(ctx context.Context, task *models.Task) error {
	now := time.Now().UTC()
	c := task.Clone()
	c.CreatedAt, c.UpdatedAt = now, now

	query := `
		INSERT INTO render_tasks (id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
	`
	if _, err := s.db.ExecContext(ctx, query, c.ID, *c, now); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Task, error) {
	var t models.Task
	err := s.db.QueryRowContext(ctx, `SELECT data FROM render_tasks WHERE id = $1`, id).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, fn func(*models.Task) error) (*models.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var t models.Task
	err = tx.QueryRowContext(ctx, `SELECT data FROM render_tasks WHERE id = $1 FOR UPDATE`, id).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock task: %w", err)
	}

	if err := fn(&t); err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE render_tasks SET data = $1, updated_at = $2 WHERE id = $3`,
		t, t.UpdatedAt, id,
	); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task update: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM render_tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
