package dbclient_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/dbclient"
	"canvasflow/internal/domain"
)

func sqliteFixture(t *testing.T) dbclient.Connector {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.db")
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT, age INTEGER);
		INSERT INTO people (name, age) VALUES ('ada', 36), ('alan', 41), ('grace', 85);`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	c, err := dbclient.NewConnector(&domain.DatabaseConnection{Driver: domain.DatabaseDriverSQLite, Host: path}, "")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLiteQuery(t *testing.T) {
	c := sqliteFixture(t)
	ctx := context.Background()
	require.NoError(t, c.TestConnection(ctx))

	rows, err := c.Query(ctx, "SELECT name, age FROM people ORDER BY id", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, rows.Columns)
	want := []map[string]any{
		{"name": "ada", "age": int64(36)},
		{"name": "alan", "age": int64(41)},
		{"name": "grace", "age": int64(85)},
	}
	if diff := cmp.Diff(want, rows.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteQueryLimit(t *testing.T) {
	c := sqliteFixture(t)
	rows, err := c.Query(context.Background(), "SELECT * FROM people", 2)
	require.NoError(t, err)
	assert.Len(t, rows.Records, 2)
}

func TestSQLiteRejectsWrites(t *testing.T) {
	c := sqliteFixture(t)
	_, err := c.Query(context.Background(), "DELETE FROM people", 0)
	assert.ErrorContains(t, err, "only read queries")
}

func TestSQLiteIntrospect(t *testing.T) {
	c := sqliteFixture(t)
	schema, err := c.Introspect(context.Background())
	require.NoError(t, err)
	require.Len(t, schema.Tables, 1)
	assert.Equal(t, "people", schema.Tables[0].Name)
	assert.Equal(t, []dbclient.ColumnInfo{
		{Name: "id", Type: "INTEGER"},
		{Name: "name", Type: "TEXT"},
		{Name: "age", Type: "INTEGER"},
	}, schema.Tables[0].Columns)
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := dbclient.NewConnector(&domain.DatabaseConnection{Driver: "oracle"}, "")
	assert.ErrorContains(t, err, "unsupported driver")
}
