package execute

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
	"github.com/Mando-03/nl2sql-mcp/pkg/sqlast"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT, region TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO customers (id, name, region) VALUES (1, 'Acme', 'east'), (2, 'Globex', 'west')`)
	require.NoError(t, err)
	return db
}

func TestExecute_RejectsNonSelect(t *testing.T) {
	db := openTestDB(t)
	g := New(db, schema.DialectSQLite, sqlast.New(nil, 16), Budget{})

	result := g.Execute(context.Background(), "DELETE FROM customers")
	assert.Equal(t, "error", result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeNonSelectStatement, result.Error.Code)
}

func TestExecute_RejectsMultiStatement(t *testing.T) {
	db := openTestDB(t)
	g := New(db, schema.DialectSQLite, sqlast.New(nil, 16), Budget{})

	result := g.Execute(context.Background(), "SELECT 1; SELECT 2;")
	assert.Equal(t, "error", result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeMultiStatement, result.Error.Code)
}

func TestExecute_RunsSelectAndReturnsRows(t *testing.T) {
	db := openTestDB(t)
	g := New(db, schema.DialectSQLite, sqlast.New(nil, 16), Budget{RowLimit: 10, MaxCellChars: 100})

	result := g.Execute(context.Background(), "SELECT id, name FROM customers ORDER BY id")
	require.Equal(t, "ok", result.Status)
	assert.Len(t, result.Rows, 2)
	assert.False(t, result.Truncated)
}

func TestExecute_TruncatesAtRowLimit(t *testing.T) {
	db := openTestDB(t)
	g := New(db, schema.DialectSQLite, sqlast.New(nil, 16), Budget{RowLimit: 1, MaxCellChars: 100})

	result := g.Execute(context.Background(), "SELECT id FROM customers ORDER BY id")
	require.Equal(t, "ok", result.Status)
	assert.Len(t, result.Rows, 1)
	assert.True(t, result.Truncated)
	assert.Equal(t, NextActionPaginate, result.NextAction)
}

func TestExecute_StripsTrailingSemicolon(t *testing.T) {
	db := openTestDB(t)
	g := New(db, schema.DialectSQLite, sqlast.New(nil, 16), Budget{RowLimit: 10})

	result := g.Execute(context.Background(), "SELECT id FROM customers;")
	assert.Equal(t, "ok", result.Status)
}

func TestTruncateCell_CapsLength(t *testing.T) {
	out := truncateCell("0123456789", 5)
	assert.Equal(t, "01234", out)
}

func TestTruncateCell_PassesThroughNonString(t *testing.T) {
	out := truncateCell(int64(42), 5)
	assert.Equal(t, int64(42), out)
}
