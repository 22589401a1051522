package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanMigrationsSortsUpOnly(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000002_telegram.up.sql",
		"000002_telegram.down.sql",
		"000001_tracker.up.sql",
		"000001_tracker.down.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "000003_dir.up.sql"), 0o755))

	set := scanMigrations(dir)
	assert.Equal(t, []string{"000001_tracker.up.sql", "000002_telegram.up.sql"}, set.names())
	assert.Equal(t, uint64(2), set[1].version)
	assert.Empty(t, scanMigrations(filepath.Join(dir, "missing")))
}

func TestMigrationSetBetween(t *testing.T) {
	set := migrationSet{
		{name: "000001_a.up.sql", version: 1},
		{name: "000002_b.up.sql", version: 2},
		{name: "000003_c.up.sql", version: 3},
	}
	assert.Equal(t, []string{"000002_b.up.sql", "000003_c.up.sql"}, set.between(1, 3).names())
	assert.Empty(t, set.between(3, 3))
}

func TestResolveMigrationsDir(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "sql")
	got, err := resolveMigrationsDir(abs)
	require.NoError(t, err)
	assert.Equal(t, abs, got)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	got, err = resolveMigrationsDir("  ")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "migrations"), got)
}

func TestConfigDSNEscapesCredentials(t *testing.T) {
	cfg := Config{User: "bot", Password: "p@ss word", Host: "db", Port: "5432", Name: "tracker", SSLMode: "disable"}
	assert.Equal(t, "postgres://bot:p%40ss%20word@db:5432/tracker?sslmode=disable", cfg.DSN())
}
