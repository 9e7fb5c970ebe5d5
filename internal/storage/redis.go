// Package storage holds the durable ProgressStore backends: Redis, SQLite
// and PostgreSQL.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/storage"
)

// maxTxRetries bounds optimistic retries when another process changes a
// player's progress between WATCH and EXEC.
const maxTxRetries = 10

// RedisStorage keeps each player's progress as one JSON document under
// progress:<player>. Updates are optimistic WATCH/MULTI/EXEC transactions,
// so concurrent writers never interleave partial changes.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// Ensure RedisStorage implements ProgressStore
var _ storage.ProgressStore = (*RedisStorage)(nil)

// NewRedisClient builds a client from a redis:// URL. A bare host:port is
// accepted as an address.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if opt, err := redis.ParseURL(redisURL); err == nil {
		return redis.NewClient(opt), nil
	}
	if redisURL == "" {
		return nil, errors.New("redis URL is empty")
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// NewRedisStorage creates a Redis-backed progress store using client.
func NewRedisStorage(client *redis.Client, logger *slog.Logger) *RedisStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStorage{
		client: client,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func progressKey(playerID string) string {
	return "progress:" + playerID
}

// Progress operations

func (r *RedisStorage) View(ctx context.Context, playerID string, fn func(storage.ProgressReader) error) error {
	snap, err := r.load(ctx, r.client, playerID)
	if err != nil {
		return err
	}
	return fn(storage.SnapshotView(playerID, snap))
}

func (r *RedisStorage) Update(ctx context.Context, playerID string, fn func(storage.ProgressTx) error) error {
	key := progressKey(playerID)

	txf := func(tx *redis.Tx) error {
		snap, err := r.load(ctx, tx, playerID)
		if err != nil {
			return err
		}
		next, err := storage.SnapshotUpdate(playerID, snap, r.now, fn)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			r.logger.Error("Failed to marshal progress", "player_id", playerID, "error", err)
			return fmt.Errorf("failed to marshal progress: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxTxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("Progress changed during transaction, retrying", "player_id", playerID, "attempt", attempt)
			continue
		}
		return err
	}
	r.logger.Error("Failed to save progress", "player_id", playerID, "error", redis.TxFailedErr)
	return fmt.Errorf("failed to save progress after %d attempts: %w", maxTxRetries, redis.TxFailedErr)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStorage) load(ctx context.Context, c getter, playerID string) (*storage.Snapshot, error) {
	data, err := c.Get(ctx, progressKey(playerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Error("Failed to load progress", "player_id", playerID, "error", err)
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	var snap storage.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.Error("Failed to unmarshal progress", "player_id", playerID, "error", err)
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return &snap, nil
}

// DeleteProgress removes everything stored for a player.
func (r *RedisStorage) DeleteProgress(ctx context.Context, playerID string) error {
	if err := r.client.Del(ctx, progressKey(playerID)).Err(); err != nil {
		r.logger.Error("Failed to delete progress", "player_id", playerID, "error", err)
		return fmt.Errorf("failed to delete progress: %w", err)
	}
	return nil
}
