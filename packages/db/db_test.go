package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPetDB(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	client, err := NewClient(ctx, "sqlite://"+filepath.Join(t.TempDir(), "pets.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.Exec(ctx, `CREATE TABLE pets (id INTEGER PRIMARY KEY, name TEXT, status TEXT, weight REAL)`)
	require.NoError(t, err)
	n, err := client.Exec(ctx, `INSERT INTO pets (id, name, status, weight) VALUES (1017, 'doggie', 'available', 7.5), (1018, 'kitty', 'sold', 3.25)`)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	return client
}

func TestQuery_Rows(t *testing.T) {
	client := newPetDB(t)

	result, err := client.Query(context.Background(), "SELECT id, name, weight FROM pets ORDER BY id")
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "weight"}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, float64(1017), result.Rows[0]["id"])
	assert.Equal(t, "doggie", result.Rows[0]["name"])
	assert.Equal(t, 3.25, result.Rows[1]["weight"])
}

func TestQuery_NoRows(t *testing.T) {
	client := newPetDB(t)

	result, err := client.Query(context.Background(), "SELECT * FROM pets WHERE id = 1")
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func TestQuery_Error(t *testing.T) {
	client := newPetDB(t)

	_, err := client.Query(context.Background(), "SELECT * FROM owners")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query failed")
}

func TestRun(t *testing.T) {
	client := newPetDB(t)
	ctx := context.Background()

	got, err := client.Run(ctx, "  select name from pets where status = 'sold'")
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"name": "kitty"}}, got)

	got, err = client.Run(ctx, "DELETE FROM pets WHERE id = 1017")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"rowsAffected": float64(1)}, got)

	_, err = client.Run(ctx, "UPDATE nothing SET x = 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement failed")
}

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		name    string
		conn    string
		baseDir string
		dsn     string
		wantErr string
	}{
		{name: "double slash", conn: "sqlite:///tmp/a.db", dsn: "/tmp/a.db"},
		{name: "colon", conn: "sqlite:./a.db", dsn: "./a.db"},
		{name: "sqlite3", conn: "sqlite3://a.db", dsn: "a.db"},
		{name: "relative to base", conn: "sqlite://data/a.db", baseDir: "/suite", dsn: filepath.Join("/suite", "data/a.db")},
		{name: "memory", conn: "sqlite::memory:", baseDir: "/suite", dsn: ":memory:"},
		{name: "empty path", conn: "sqlite://", wantErr: "missing database path"},
		{name: "postgres", conn: "postgres://u@h/db", wantErr: "unsupported database scheme: postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := parseConnectionString(tt.conn, tt.baseDir)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "sqlite3", driver)
			assert.Equal(t, tt.dsn, dsn)
		})
	}
}

func TestPool(t *testing.T) {
	dir := t.TempDir()
	pool := NewPool(nil)
	ctx := context.Background()

	a, err := pool.Get(ctx, "sqlite://pool.db", dir)
	require.NoError(t, err)
	b, err := pool.Get(ctx, "sqlite://pool.db", dir)
	require.NoError(t, err)
	assert.Same(t, a, b)

	assert.NoError(t, pool.Close())
	c, err := pool.Get(ctx, "sqlite://pool.db", dir)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.NoError(t, pool.Close())
}
