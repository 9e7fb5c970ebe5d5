package sqlmigrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplyMigrationsOnce(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	migrations := fstest.MapFS{
		"m/0001_items.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE items (name TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE items;\n")},
		"m/0002_seed.sql":  {Data: []byte("INSERT INTO items (name) VALUES ('Relic Shard');")},
		"m/README.md":      {Data: []byte("not sql")},
	}

	require.NoError(t, ApplyMigrations(ctx, db, SQLite, migrations, "m"))
	require.NoError(t, ApplyMigrations(ctx, db, SQLite, migrations, "m"), "second run is a no-op")

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n))
	assert.Equal(t, 1, n, "seed ran once")

	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestApplyMigrationsFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	migrations := fstest.MapFS{
		"0001_bad.sql": {Data: []byte("CREATE TABLE broken (")},
	}

	assert.Error(t, ApplyMigrations(ctx, db, SQLite, migrations, ""))

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Zero(t, n)
}

func TestExtractUpMigration(t *testing.T) {
	assert.Equal(t, "\nA\n", ExtractUpMigration("-- +migrate Up\nA\n-- +migrate Down\nB"))
	assert.Equal(t, "plain", ExtractUpMigration("plain"))
	assert.Equal(t, "\nA", ExtractUpMigration("-- +migrate Up\nA"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", SQLite.Placeholder(2))
	assert.Equal(t, "$2", Postgres.Placeholder(2))
}
