package pool_test

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/go-dsrouter"
	"github.com/ice-blockchain/go-dsrouter/pool"
)

func TestDefaultDSN(t *testing.T) {
	tests := []struct {
		conn     dsrouter.ConnectionParams
		expected string
	}{
		{
			dsrouter.ConnectionParams{Driver: "sqlite3", Database: "/tmp/app.db"},
			"file:/tmp/app.db",
		},
		{
			dsrouter.ConnectionParams{Driver: "sqlite3", Database: ":memory:"},
			":memory:",
		},
		{
			dsrouter.ConnectionParams{
				Driver:   "sqlite3",
				Database: "app.db",
				Options:  map[string]string{"mode": "ro", "_busy_timeout": "5000"},
			},
			"file:app.db?_busy_timeout=5000&mode=ro",
		},
		{
			dsrouter.ConnectionParams{
				Driver:   "mysql",
				Host:     "db1",
				Port:     3306,
				Database: "app",
				User:     "app",
				Password: "secret",
				Options:  map[string]string{"parseTime": "true"},
			},
			"app:secret@tcp(db1:3306)/app?parseTime=true",
		},
		{
			dsrouter.ConnectionParams{Driver: "postgres", Host: "db2", Port: 5432, Database: "app", User: "app"},
			"postgres://app@db2:5432/app",
		},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			dsn, err := pool.DefaultDSN(dsrouter.Descriptor{ID: "m1", Conn: test.conn})
			require.NoError(t, err)
			require.Equal(t, test.expected, dsn)
		})
	}
}

func TestDefaultDSN_Errors(t *testing.T) {
	var configErr *dsrouter.ConfigError

	_, err := pool.DefaultDSN(dsrouter.Descriptor{ID: "m1", Conn: dsrouter.ConnectionParams{Driver: "sqlite3"}})
	require.ErrorAs(t, err, &configErr)

	_, err = pool.DefaultDSN(dsrouter.Descriptor{ID: "m1", Conn: dsrouter.ConnectionParams{Driver: "oracle"}})
	require.ErrorAs(t, err, &configErr)
	require.Equal(t, "m1", configErr.ID)
}

func TestSQLProvider_OpenErrors(t *testing.T) {
	provider := pool.NewSQLProvider()
	ctx := context.Background()
	var configErr *dsrouter.ConfigError

	_, err := provider.Open(ctx, dsrouter.Descriptor{ID: "m1"})
	require.ErrorAs(t, err, &configErr)

	_, err = provider.Open(ctx, dsrouter.Descriptor{
		ID:   "m1",
		Conn: dsrouter.ConnectionParams{Driver: "sqlite3", Database: "app.db"},
		Pool: dsrouter.PoolParams{Provider: "c3p0"},
	})
	require.ErrorAs(t, err, &configErr)

	_, err = provider.Open(ctx, dsrouter.Descriptor{
		ID:   "m1",
		Conn: dsrouter.ConnectionParams{Driver: "nodriver", Database: "app.db"},
	})
	require.Error(t, err)
}

func asString(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	s, _ := v.(string)
	return s
}

func TestSQLProvider_SQLite(t *testing.T) {
	ctx := context.Background()
	conn := dsrouter.ConnectionParams{
		Driver:   "sqlite3",
		Database: filepath.Join(t.TempDir(), "app.db"),
		Options:  map[string]string{"_busy_timeout": "5000"},
	}

	registry := dsrouter.NewRegistry()
	require.NoError(t, registry.Register(dsrouter.Descriptor{
		ID:      master,
		Role:    dsrouter.MasterRole,
		Conn:    conn,
		Pool:    dsrouter.PoolParams{MaxActive: 4, MaxIdle: 2, MinIdle: 2, Provider: dsrouter.ProviderDruid},
		Healthy: true,
	}))
	require.NoError(t, registry.Register(dsrouter.Descriptor{
		ID:      slave1,
		Role:    dsrouter.SlaveRole,
		Conn:    conn,
		Pool:    dsrouter.PoolParams{MaxActive: 4, MaxIdle: 2, Provider: dsrouter.ProviderHikari},
		Healthy: true,
	}))

	connPool, err := pool.Connect(ctx, registry, pool.NewSQLProvider(), pool.Opts{})
	require.NoError(t, err)
	defer connPool.Close()

	require.NoError(t, connPool.Ping(ctx, master))
	require.NoError(t, connPool.Ping(ctx, slave1))

	_, err = connPool.Write(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
	require.NoError(t, err)

	counts, err := connPool.BatchWrite(ctx, "INSERT INTO users (id, name) VALUES (?, ?)",
		[][]interface{}{{1, "alice"}, {2, "bob"}, {3, "carol"}})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 1, 1}, counts)

	affected, err := connPool.Write(ctx, "UPDATE users SET name = ? WHERE id = ?", "dave", 3)
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	rows, err := connPool.Read(ctx, "SELECT id, name FROM users ORDER BY id")
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, rows.Columns)
	require.Equal(t, 3, rows.Len())
	require.Equal(t, int64(1), rows.Values[0][0])
	require.Equal(t, "alice", asString(rows.Values[0][1]))
	require.Equal(t, "dave", asString(rows.Values[2][1]))

	// The batch stops at the duplicate key.
	counts, err = connPool.BatchWrite(ctx, "INSERT INTO users (id, name) VALUES (?, ?)",
		[][]interface{}{{4, "erin"}, {1, "frank"}, {5, "grace"}})
	require.Error(t, err)
	require.Equal(t, []int64{1}, counts)

	rows, err = connPool.ReadMaster(ctx, "SELECT count(*) FROM users")
	require.NoError(t, err)
	require.Equal(t, int64(4), rows.Values[0][0])

	require.NoError(t, connPool.Close())
}
