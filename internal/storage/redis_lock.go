package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/lock"
)

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker is a lock.Locker shared by every process using the same Redis.
// A lock expires after its TTL so a crashed holder cannot block a player
// forever.
type RedisLocker struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
	retry  time.Duration
}

var _ lock.Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker whose locks expire after ttl.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{
		client: client,
		logger: logger,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

// WithRetryInterval sets how long Lock waits between attempts.
// Returns the RedisLocker for method chaining
func (l *RedisLocker) WithRetryInterval(d time.Duration) *RedisLocker {
	l.retry = d
	return l
}

// Lock polls until the key is free or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled; release regardless.
			if err := releaseScript.Run(context.Background(), l.client, []string{key}, token).Err(); err != nil {
				l.logger.Error("Failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}
