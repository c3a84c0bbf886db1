package reflect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

func TestNewAdapter_DispatchesOnDialect(t *testing.T) {
	pg, err := NewAdapter(schema.DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t, schema.DialectPostgres, pg.Dialect())

	mysql, err := NewAdapter(schema.DialectMySQL)
	require.NoError(t, err)
	assert.Equal(t, schema.DialectMySQL, mysql.Dialect())

	sqlite, err := NewAdapter(schema.DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t, schema.DialectSQLite, sqlite.Dialect())
}

func TestNewAdapter_RejectsUnsupportedDialect(t *testing.T) {
	_, err := NewAdapter(schema.Dialect("oracle"))
	assert.Error(t, err)
}

func TestFilterSchemas_DropsSystemSchemasAndAppliesIncludeExclude(t *testing.T) {
	all := []string{"public", "information_schema", "sales", "archive"}
	got := filterSchemas(all, nil, []string{"archive"})
	assert.Equal(t, []string{"public", "sales"}, got)

	got = filterSchemas(all, []string{"sales"}, nil)
	assert.Equal(t, []string{"sales"}, got)
}
