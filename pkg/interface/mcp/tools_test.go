package mcp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mando-03/nl2sql-mcp/pkg/execute"
	"github.com/Mando-03/nl2sql-mcp/pkg/lifecycle"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

func newTestCoordinator(t *testing.T) *lifecycle.Coordinator {
	t.Helper()
	coord := lifecycle.New(lifecycle.Options{
		DSN:            fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Dialect:        schema.DialectSQLite,
		FastStartCap:   300,
		SampleWorkers:  2,
		SampleRowLimit: 50,
		SampleTimeout:  5 * time.Second,
	})
	require.NoError(t, coord.Start(context.Background()))
	t.Cleanup(func() { coord.Stop(time.Second) })
	return coord
}

func TestRegisterTools_RegistersCoreToolsAndGatesDebugTools(t *testing.T) {
	coord := newTestCoordinator(t)

	registry := NewToolRegistry()
	require.NoError(t, RegisterTools(registry, coord, execute.Budget{RowLimit: 10, MaxCellChars: 100}, false))

	names := map[string]bool{}
	for _, tool := range registry.List() {
		names[tool.Name] = true
	}
	assert.True(t, names["get_init_status"])
	assert.True(t, names["get_database_overview"])
	assert.True(t, names["plan_query_for_intent"])
	assert.True(t, names["get_table_info"])
	assert.True(t, names["execute_query"])
	assert.False(t, names["find_tables"], "debug tools must stay gated off by default")
	assert.False(t, names["find_columns"])
}

func TestRegisterTools_DebugToolsEnabled(t *testing.T) {
	coord := newTestCoordinator(t)
	registry := NewToolRegistry()
	require.NoError(t, RegisterTools(registry, coord, execute.Budget{RowLimit: 10, MaxCellChars: 100}, true))
	_, ok := registry.Get("find_tables")
	assert.True(t, ok)
	_, ok = registry.Get("find_columns")
	assert.True(t, ok)
}

func TestGetInitStatusTool_ReportsReadyPhase(t *testing.T) {
	coord := newTestCoordinator(t)
	tool := getInitStatusTool(coord)
	result, err := tool.Handler(context.Background(), nil)
	require.NoError(t, err)
	asMap, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, lifecycle.PhaseReady, asMap["phase"])
}

func TestGetDatabaseOverviewTool_ReportsZeroTablesForEmptyDatabase(t *testing.T) {
	coord := newTestCoordinator(t)
	tool := getDatabaseOverviewTool(coord)
	result, err := tool.Handler(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	asMap, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 0, asMap["table_count"])
}

func TestGetTableInfoTool_UnknownKeyReturnsStructuredError(t *testing.T) {
	coord := newTestCoordinator(t)
	tool := getTableInfoTool(coord)
	_, err := tool.Handler(context.Background(), map[string]interface{}{"table_key": "missing.table"})
	require.Error(t, err)
	sErr, ok := err.(*execute.StructuredError)
	require.True(t, ok)
	assert.Equal(t, execute.CodeInvalidTableKey, sErr.Code)
}

func TestFilterTableColumns_CapsEnumeratedValuesToMaxSampleValues(t *testing.T) {
	columns := []schema.ColumnProfile{
		{Name: "status", Role: schema.RoleCategory, EnumeratedValues: []string{"open", "closed", "pending"}},
	}
	got := filterTableColumns(columns, "", true, 1)
	require.Len(t, got, 1)
	assert.Len(t, got[0].EnumeratedValues, 1)
}

func TestFilterTableColumns_ExcludeSamplesStripsEnumeratedValues(t *testing.T) {
	columns := []schema.ColumnProfile{
		{Name: "status", Role: schema.RoleCategory, EnumeratedValues: []string{"open", "closed"}},
	}
	got := filterTableColumns(columns, "", false, 10)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].EnumeratedValues)
}

func TestFilterTableColumns_RoleFilterRestrictsColumns(t *testing.T) {
	columns := []schema.ColumnProfile{
		{Name: "id", Role: schema.RoleKey},
		{Name: "status", Role: schema.RoleCategory},
	}
	got := filterTableColumns(columns, "category", true, 10)
	require.Len(t, got, 1)
	assert.Equal(t, "status", got[0].Name)
}

func TestTableFilterCandidates_SurfacesEnumeratedAndRangeColumns(t *testing.T) {
	tp := &schema.TableProfile{
		Columns: []schema.ColumnProfile{
			{Name: "status", EnumeratedValues: []string{"open", "closed"}},
			{Name: "total", Range: &schema.ValueRange{Min: "0", Max: "100"}},
			{Name: "notes"},
		},
	}
	got := tableFilterCandidates(tp)
	require.Len(t, got, 2)
	assert.Equal(t, "status", got[0]["column"])
	assert.Equal(t, "equals_one_of", got[0]["suggested_shape"])
	assert.Equal(t, "total", got[1]["column"])
	assert.Equal(t, "between", got[1]["suggested_shape"])
}

func TestGetTableInfoTool_DeclaresSampleAndRelationshipParameters(t *testing.T) {
	coord := newTestCoordinator(t)
	tool := getTableInfoTool(coord)
	_, hasSamples := tool.Parameters.Properties["include_samples"]
	_, hasMax := tool.Parameters.Properties["max_sample_values"]
	_, hasLimit := tool.Parameters.Properties["relationship_limit"]
	assert.True(t, hasSamples)
	assert.True(t, hasMax)
	assert.True(t, hasLimit)
}

func TestExecuteQueryTool_RunsSelect(t *testing.T) {
	coord := newTestCoordinator(t)
	_, execErr := coord.DB().Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, execErr)
	_, execErr = coord.DB().Exec(`INSERT INTO widgets (id, name) VALUES (1, 'a')`)
	require.NoError(t, execErr)

	tool := executeQueryTool(coord, execute.Budget{RowLimit: 10, MaxCellChars: 100})
	result, err := tool.Handler(context.Background(), map[string]interface{}{"sql": "SELECT id, name FROM widgets"})
	require.NoError(t, err)
	res, ok := result.(execute.Result)
	require.True(t, ok)
	assert.Equal(t, "ok", res.Status)
	assert.Len(t, res.Rows, 1)
}

func TestIntParam_CoercesJSONFloat64(t *testing.T) {
	assert.Equal(t, 5, intParam(map[string]interface{}{"n": float64(5)}, "n", 0))
	assert.Equal(t, 7, intParam(map[string]interface{}{}, "n", 7))
}
