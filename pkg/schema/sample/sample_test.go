package sample

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewStrategy_DispatchesOnDialect(t *testing.T) {
	assert.Equal(t, "tablesample", NewStrategy(schema.DialectPostgres).Name())
	assert.Equal(t, "limit_scan", NewStrategy(schema.DialectMySQL).Name())
	assert.Equal(t, "limit_scan", NewStrategy(schema.DialectSQLite).Name())
}

func TestLimitScanStrategy_Sample_ReturnsFullRows(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO widgets (id, name) VALUES (1, 'a'), (2, 'b')`)
	require.NoError(t, err)

	strat := limitScanStrategy{quote: genericQuote}
	ts, err := strat.Sample(context.Background(), db, "main", "widgets", 10)
	require.NoError(t, err)
	assert.Equal(t, "full", ts.Sampled)
	assert.Len(t, ts.Rows, 2)
	assert.Contains(t, ts.Columns, "name")
}

func TestLimitScanStrategy_Sample_RespectsRowLimit(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := db.Exec(`INSERT INTO widgets (id) VALUES (?)`, i)
		require.NoError(t, err)
	}

	strat := limitScanStrategy{quote: genericQuote}
	ts, err := strat.Sample(context.Background(), db, "main", "widgets", 2)
	require.NoError(t, err)
	assert.Len(t, ts.Rows, 2)
}

func TestLimitScanStrategy_Sample_QueryErrorYieldsError(t *testing.T) {
	db := openTestDB(t)
	strat := limitScanStrategy{quote: genericQuote}
	_, err := strat.Sample(context.Background(), db, "main", "does_not_exist", 10)
	assert.Error(t, err)
}

func TestSampler_SampleAll_DrawsRowsForEachTable(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`CREATE TABLE a (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE b (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO a (id) VALUES (1)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO b (id) VALUES (1), (2)`)
	require.NoError(t, err)

	s := New(schema.DialectSQLite, 2, 100, 5*time.Second)
	schemaOf := func(key string) (string, string) { return "main", key }
	out, err := s.SampleAll(context.Background(), db, []string{"a", "b"}, schemaOf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "full", out["a"].Sampled)
	assert.Len(t, out["b"].Rows, 2)
	assert.Equal(t, "a", out["a"].TableKey)
}

func TestSampler_SampleAll_MissingTableYieldsNoneSample(t *testing.T) {
	db := openTestDB(t)
	s := New(schema.DialectSQLite, 2, 100, 5*time.Second)
	schemaOf := func(key string) (string, string) { return "main", key }
	out, err := s.SampleAll(context.Background(), db, []string{"missing"}, schemaOf)
	require.NoError(t, err)
	assert.Equal(t, "none", out["missing"].Sampled)
	assert.Equal(t, "missing", out["missing"].TableKey)
}

func TestScanRows_ReturnsColumnsAndByteSliceCoercedRows(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO widgets (id, name) VALUES (1, 'a')`)
	require.NoError(t, err)

	rows, err := db.Query(`SELECT * FROM widgets`)
	require.NoError(t, err)
	defer rows.Close()

	columns, data, scanErr := scanRows(rows)
	require.NoError(t, scanErr)
	assert.Len(t, data, 1)
	assert.Contains(t, columns, "name")
}
