package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	database, err := Open()
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
}

func TestOpen_FileCreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")

	database, err := Open(WithPath(dbPath))
	require.NoError(t, err)
	defer database.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

func TestOpen_CustomPragmas(t *testing.T) {
	database, err := Open(WithPragmas("PRAGMA foreign_keys=ON;"))
	require.NoError(t, err)
	defer database.Close()

	var on int
	require.NoError(t, database.Get(&on, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, on)
}

func TestMigrate(t *testing.T) {
	database, err := Open()
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	schema := []string{
		"CREATE TABLE IF NOT EXISTS runs (id TEXT PRIMARY KEY)",
		"CREATE INDEX IF NOT EXISTS idx_runs_id ON runs(id)",
	}
	require.NoError(t, Migrate(ctx, database, schema...))
	// idempotent
	require.NoError(t, Migrate(ctx, database, schema...))

	err = Migrate(ctx, database, "CREATE TABLE broken (")
	assert.Error(t, err)
}

func TestDriver(t *testing.T) {
	assert.NotEmpty(t, Driver())
}
