package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func embedded(t *testing.T) fs.FS {
	t.Helper()
	sub, err := fs.Sub(EmbeddedMigrations, "migrations")
	require.NoError(t, err)
	return sub
}

func openAt(t *testing.T, path string, migrations fs.FS) *DB {
	t.Helper()
	db, err := New(path, migrations, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	require.NoError(t, db.Conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ?", name,
	).Scan(&count))
	return count == 1
}

func TestNew_AppliesEmbeddedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chatsync.db")
	db := openAt(t, path, embedded(t))

	assert.True(t, tableExists(t, db, "saved_session"))
	assert.True(t, tableExists(t, db, "last_scopes"))

	v, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "token file is owner-only")
	}
}

func TestMigrate_AppliesOnlyNewVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	v1 := fstest.MapFS{
		"001_init.sql": {Data: []byte("CREATE TABLE a (x TEXT);")},
		"README.md":    {Data: []byte("ignored")},
	}
	db := openAt(t, path, v1)
	require.NoError(t, db.Close())

	// 001 tekrar çalışsaydı "table a already exists" hatası verirdi.
	v2 := fstest.MapFS{
		"001_init.sql": v1["001_init.sql"],
		"002_more.sql": {Data: []byte("CREATE TABLE b (y TEXT); INSERT INTO b VALUES ('semi;colon');")},
	}
	db = openAt(t, path, v2)

	v, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.True(t, tableExists(t, db, "b"))
}

func TestMigrate_FailedMigrationLeavesNoTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	openAt(t, path, fstest.MapFS{"001_init.sql": {Data: []byte("CREATE TABLE a (x TEXT);")}})

	_, err := New(path, fstest.MapFS{
		"001_init.sql":   {Data: []byte("CREATE TABLE a (x TEXT);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE half (z TEXT); INSERT INTO missing VALUES (1);")},
	}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_broken.sql")

	db := openAt(t, path, fstest.MapFS{"001_init.sql": {Data: []byte("CREATE TABLE a (x TEXT);")}})
	v, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.False(t, tableExists(t, db, "half"), "partial migration is rolled back")
}

func TestMigrate_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	openAt(t, path, fstest.MapFS{
		"001_init.sql": {Data: []byte("CREATE TABLE a (x TEXT);")},
		"002_next.sql": {Data: []byte("CREATE TABLE b (y TEXT);")},
	})

	_, err := New(path, fstest.MapFS{"001_init.sql": {Data: []byte("CREATE TABLE a (x TEXT);")}}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestLoadMigrations_Validation(t *testing.T) {
	_, err := loadMigrations(fstest.MapFS{"init.sql": {Data: []byte("SELECT 1")}})
	assert.Error(t, err)

	_, err = loadMigrations(fstest.MapFS{
		"002_a.sql": {Data: []byte("SELECT 1")},
		"2_b.sql":   {Data: []byte("SELECT 1")},
	})
	assert.Error(t, err)

	ms, err := loadMigrations(fstest.MapFS{
		"010_late.sql":  {Data: []byte("SELECT 10")},
		"002_early.sql": {Data: []byte("SELECT 2")},
	})
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, []int{2, 10}, []int{ms[0].version, ms[1].version})
}

func TestWithTx(t *testing.T) {
	db := openAt(t, filepath.Join(t.TempDir(), "test.db"), fstest.MapFS{
		"001_init.sql": {Data: []byte("CREATE TABLE t (a TEXT)")},
	})
	ctx := context.Background()

	boom := errors.New("boom")
	err := WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t VALUES ('x')")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_ = WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
			_, _ = tx.ExecContext(ctx, "INSERT INTO t VALUES ('p')")
			panic("boom")
		})
	})

	require.NoError(t, WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t VALUES ('y')")
		return err
	}))

	var rows int
	require.NoError(t, db.Conn.QueryRow("SELECT COUNT(*) FROM t").Scan(&rows))
	assert.Equal(t, 1, rows, "rolled back inserts must not be visible")
}
