package db

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.db")
	conn, err := OpenAndMigrate(path)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn))

	var applied int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(1) FROM _migrations`).Scan(&applied))
	assert.Equal(t, 1, applied)

	for _, table := range []string{"users", "records", "games"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestMigrateFSOrderAndRollback(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer conn.Close()

	fsys := fstest.MapFS{
		"002_seed.sql": {Data: []byte(`INSERT INTO kv(k) VALUES ('a');`)},
		"001_kv.sql":   {Data: []byte(`CREATE TABLE kv (k TEXT PRIMARY KEY);`)},
		"notes.txt":    {Data: []byte(`not a migration`)},
	}
	require.NoError(t, migrateFS(conn, fsys))
	require.NoError(t, migrateFS(conn, fsys))

	var rows int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(1) FROM kv`).Scan(&rows))
	assert.Equal(t, 1, rows)

	fsys["003_broken.sql"] = &fstest.MapFile{Data: []byte(`INSERT INTO kv(k) VALUES ('b'); INSERT INTO nope VALUES (1);`)}
	assert.Error(t, migrateFS(conn, fsys))

	require.NoError(t, conn.QueryRow(`SELECT COUNT(1) FROM kv`).Scan(&rows))
	assert.Equal(t, 1, rows, "failed script rolled back")
	var applied int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(1) FROM _migrations`).Scan(&applied))
	assert.Equal(t, 2, applied)
}

func TestSelfManaged(t *testing.T) {
	assert.True(t, selfManaged("pragma foreign_keys = off;"))
	assert.True(t, selfManaged("BEGIN TRANSACTION; COMMIT;"))
	assert.False(t, selfManaged("CREATE TABLE t (x);"))
}
