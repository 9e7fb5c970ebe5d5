package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jwebster45206/quest-engine/internal/sqlmigrate"
	"github.com/jwebster45206/quest-engine/internal/storage/migrations"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

// SQLiteStorage persists progress in a local SQLite file.
type SQLiteStorage struct {
	sqlDB  *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Ensure SQLiteStorage implements ProgressStore
var _ storage.ProgressStore = (*SQLiteStorage)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies
// the embedded migrations.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite has a single writer; one connection keeps transactions from
	// failing with SQLITE_BUSY when they upgrade to a write lock.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlmigrate.ApplyMigrations(ctx, sqlDB, sqlmigrate.SQLite, migrations.FS, "sqlite"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("SQLite progress store opened", "path", cleanPath)
	return &SQLiteStorage{
		sqlDB:  sqlDB,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStorage) View(ctx context.Context, playerID string, fn func(storage.ProgressReader) error) error {
	return s.inTx(ctx, playerID, false, func(tx *sqlTx) error { return fn(tx) })
}

func (s *SQLiteStorage) Update(ctx context.Context, playerID string, fn func(storage.ProgressTx) error) error {
	return s.inTx(ctx, playerID, true, func(tx *sqlTx) error { return fn(tx) })
}

func (s *SQLiteStorage) inTx(ctx context.Context, playerID string, writable bool, fn func(*sqlTx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("Failed to begin transaction", "player_id", playerID, "error", err)
		return fmt.Errorf("begin sqlite transaction: %w", err)
	}
	if err := fn(&sqlTx{db: sqliteTx{tx}, playerID: playerID, writable: writable, now: s.now}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if !writable {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "player_id", playerID, "error", err)
		return fmt.Errorf("commit sqlite transaction: %w", err)
	}
	return nil
}

// sqliteTx adapts *sql.Tx to dbtx.
type sqliteTx struct {
	tx *sql.Tx
}

func (t sqliteTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

func (t sqliteTx) QueryRow(ctx context.Context, query string, args ...any) rowScanner {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t sqliteTx) Query(ctx context.Context, query string, each func(rowScanner) error, args ...any) error {
	rows, err := t.tx.QueryContext(ctx, query, args...)
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

func (sqliteTx) IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
