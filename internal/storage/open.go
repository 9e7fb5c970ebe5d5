package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/pkg/lock"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

// Backend is an opened progress store together with the player lock that
// matches it.
type Backend struct {
	Progress storage.ProgressStore
	Locker   lock.Locker
}

// Open opens the progress store selected by cfg.Store. Redis gets a shared
// Redis lock; every other store uses an in-process lock.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("Using in-memory progress store; progress is lost on restart")
		return &Backend{Progress: storage.NewMemoryStore(), Locker: lock.NewKeyedMutex()}, nil

	case config.StoreRedis:
		client, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		rs := NewRedisStorage(client, logger)
		if err := rs.WaitForConnection(ctx); err != nil {
			rs.Close()
			return nil, err
		}
		return &Backend{Progress: rs, Locker: NewRedisLocker(client, cfg.LockTTL.Duration, logger)}, nil

	case config.StoreSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{Progress: s, Locker: lock.NewKeyedMutex()}, nil

	case config.StorePostgres:
		s, err := OpenPostgres(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{Progress: s, Locker: lock.NewKeyedMutex()}, nil

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
