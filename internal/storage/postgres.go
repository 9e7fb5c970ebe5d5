package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/jwebster45206/quest-engine/internal/sqlmigrate"
	"github.com/jwebster45206/quest-engine/internal/storage/migrations"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

// PostgresStorage persists progress in PostgreSQL. Every transaction takes
// a transaction-scoped advisory lock on the player, so writers for the same
// player are serialized by the database even across processes.
type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// Ensure PostgresStorage implements ProgressStore
var _ storage.ProgressStore = (*PostgresStorage)(nil)

// OpenPostgres connects to databaseURL and applies the embedded migrations.
func OpenPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// The migration runner speaks database/sql; borrow connections from the pool.
	sqlDB := stdlib.OpenDBFromPool(pool)
	if err := sqlmigrate.ApplyMigrations(ctx, sqlDB, sqlmigrate.Postgres, migrations.FS, "postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("Postgres progress store opened", "max_conns", poolConfig.MaxConns)
	return &PostgresStorage{
		pool:   pool,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *PostgresStorage) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	p.logger.Info("Postgres connection pool closed")
	return nil
}

func (p *PostgresStorage) View(ctx context.Context, playerID string, fn func(storage.ProgressReader) error) error {
	return p.inTx(ctx, playerID, false, func(tx *sqlTx) error { return fn(tx) })
}

func (p *PostgresStorage) Update(ctx context.Context, playerID string, fn func(storage.ProgressTx) error) error {
	return p.inTx(ctx, playerID, true, func(tx *sqlTx) error { return fn(tx) })
}

func (p *PostgresStorage) inTx(ctx context.Context, playerID string, writable bool, fn func(*sqlTx) error) error {
	opts := pgx.TxOptions{}
	if !writable {
		opts.AccessMode = pgx.ReadOnly
	}
	tx, err := p.pool.BeginTx(ctx, opts)
	if err != nil {
		p.logger.Error("Failed to begin transaction", "player_id", playerID, "error", err)
		return fmt.Errorf("begin postgres transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if writable {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, playerID); err != nil {
			return fmt.Errorf("lock player %s: %w", playerID, err)
		}
	}
	if err := fn(&sqlTx{db: pgTx{tx}, playerID: playerID, writable: writable, now: p.now}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		p.logger.Error("Failed to commit transaction", "player_id", playerID, "error", err)
		return fmt.Errorf("commit postgres transaction: %w", err)
	}
	return nil
}

// pgTx adapts pgx.Tx to dbtx, rewriting ? placeholders to $n.
type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.Exec(ctx, rebind(query), args...)
	return err
}

func (t pgTx) QueryRow(ctx context.Context, query string, args ...any) rowScanner {
	return t.tx.QueryRow(ctx, rebind(query), args...)
}

func (t pgTx) Query(ctx context.Context, query string, each func(rowScanner) error, args ...any) error {
	rows, err := t.tx.Query(ctx, rebind(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := each(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (pgTx) IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// rebind turns ? placeholders into PostgreSQL's numbered parameters.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
