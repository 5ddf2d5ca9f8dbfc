package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/careerlens/careerlens/internal/config"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://careerlens.turso.io",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://careerlens.turso.io?authToken=token123", dsn)
	})

	t.Run("URLWithExistingQuery", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://careerlens.turso.io?foo=bar",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://careerlens.turso.io?authToken=token123&foo=bar", dsn)
	})

	t.Run("PathWithFilePrefix", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: "file:./careerlens.db"})
		require.NoError(t, err)
		require.Equal(t, "file:./careerlens.db", dsn)
	})

	t.Run("PlainPathGetsFilePrefix", func(t *testing.T) {
		dir := t.TempDir()
		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: dir + "/data/careerlens.db"})
		require.NoError(t, err)
		require.Equal(t, "file:"+dir+"/data/careerlens.db", dsn)
		require.DirExists(t, dir+"/data")
	})

	t.Run("PathMissing", func(t *testing.T) {
		_, err := buildLibsqlDSN(config.StoreConfig{})
		require.Error(t, err)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: ":memory:"})
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})
}

func TestBuildSQLiteDSN(t *testing.T) {
	dsn, err := buildSQLiteDSN(config.StoreConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.Equal(t, ":memory:", dsn)

	_, err = buildSQLiteDSN(config.StoreConfig{})
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := New(nil, DriverPostgres)
	require.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?"))

	lite := New(nil, DriverSQLite)
	require.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(t.Context(), config.StoreConfig{Driver: "mysql"})
	require.ErrorContains(t, err, "unsupported store driver")

	_, err = Open(t.Context(), config.StoreConfig{Driver: "postgres"})
	require.ErrorContains(t, err, "url is required")
}

func TestNilStore(t *testing.T) {
	var s *Store
	require.NoError(t, s.Close())
	require.Equal(t, "", s.Driver())
	require.Error(t, s.Ping(t.Context()))
	require.Error(t, s.Migrate(t.Context()))
}
