package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bobarin/reelmaker/internal/models"
)

const (
	redisKeyPrefix    = "reelmaker:task:"
	redisIndexKey     = "reelmaker:tasks:index"
	redisMaxTxRetries = 10
)

// RedisStore keeps each task as a JSON value plus a sorted-set index by
// creation time. Updates use optimistic WATCH transactions.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) key(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, task *models.Task) error {
	now := time.Now().UTC()
	c := task.Clone()
	c.CreatedAt, c.UpdatedAt = now, now

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(c.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	if !ok {
		return fmt.Errorf("task %s already exists", c.ID)
	}

	return s.client.ZAdd(ctx, redisIndexKey, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: c.ID,
	}).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.get(ctx, s.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter, id string) (*models.Task, error) {
	data, err := c.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var t models.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &t, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*models.Task) error) (*models.Task, error) {
	key := s.key(id)
	var updated *models.Task

	txf := func(tx *redis.Tx) error {
		t, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		t.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err == nil {
			updated = t
		}
		return err
	}

	for attempt := 0; attempt < redisMaxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("task %s: update contention after %d attempts", id, redisMaxTxRetries)
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Task, error) {
	ids, err := s.client.ZRevRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task index: %w", err)
	}

	out := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			// expired; drop it from the index
			s.client.ZRem(ctx, redisIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
