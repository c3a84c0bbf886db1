package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

func noAreaName(string) string { return "" }

func TestRun_BridgeTableHasTwoFKPrimaryKeys(t *testing.T) {
	tables := map[string]*schema.TableProfile{
		"public.order_items": {
			TableKey:   "public.order_items",
			PrimaryKey: []string{"order_id", "product_id"},
			ForeignKeys: []schema.ForeignKeyEdge{
				{LocalColumn: "order_id", RemoteTable: "public.orders", RemoteColumn: "id"},
				{LocalColumn: "product_id", RemoteTable: "public.products", RemoteColumn: "id"},
			},
		},
	}
	Run(tables, noAreaName)
	assert.Equal(t, schema.ArchetypeBridge, tables["public.order_items"].Archetype)
	assert.NotEmpty(t, tables["public.order_items"].Summary)
}

func TestRun_FactTableHasMultipleFKsAndAMetricColumn(t *testing.T) {
	tables := map[string]*schema.TableProfile{
		"public.orders": {
			TableKey: "public.orders",
			ForeignKeys: []schema.ForeignKeyEdge{
				{LocalColumn: "customer_id", RemoteTable: "public.customers", RemoteColumn: "id"},
				{LocalColumn: "store_id", RemoteTable: "public.stores", RemoteColumn: "id"},
			},
			MetricColumnCount: 1,
			Columns: []schema.ColumnProfile{
				{Name: "total", Role: schema.RoleMetric},
			},
		},
	}
	Run(tables, noAreaName)
	assert.Equal(t, schema.ArchetypeFact, tables["public.orders"].Archetype)
}

func TestRun_DimensionTableIsReferencedByAFactTable(t *testing.T) {
	tables := map[string]*schema.TableProfile{
		"public.orders": {
			TableKey: "public.orders",
			ForeignKeys: []schema.ForeignKeyEdge{
				{LocalColumn: "customer_id", RemoteTable: "public.customers", RemoteColumn: "id"},
				{LocalColumn: "store_id", RemoteTable: "public.stores", RemoteColumn: "id"},
			},
			MetricColumnCount: 1,
		},
		"public.customers": {
			TableKey:   "public.customers",
			PrimaryKey: []string{"id"},
			Columns: []schema.ColumnProfile{
				{Name: "name", Role: schema.RoleCategory},
			},
		},
	}
	Run(tables, noAreaName)
	assert.Equal(t, schema.ArchetypeFact, tables["public.orders"].Archetype)
	assert.Equal(t, schema.ArchetypeDimension, tables["public.customers"].Archetype)
}

func TestRun_SmallNoFKTableIsReference(t *testing.T) {
	tables := map[string]*schema.TableProfile{
		"public.countries": {
			TableKey:         "public.countries",
			RowCountEstimate: 250,
		},
	}
	Run(tables, noAreaName)
	assert.Equal(t, schema.ArchetypeReference, tables["public.countries"].Archetype)
}

func TestRun_DefaultsToOperational(t *testing.T) {
	tables := map[string]*schema.TableProfile{
		"public.audit_log": {
			TableKey:         "public.audit_log",
			RowCountEstimate: 5_000_000,
		},
	}
	Run(tables, noAreaName)
	assert.Equal(t, schema.ArchetypeOperational, tables["public.audit_log"].Archetype)
}

func TestRun_SummaryMentionsSubjectAreaName(t *testing.T) {
	tables := map[string]*schema.TableProfile{
		"public.customers": {
			TableKey:   "public.customers",
			PrimaryKey: []string{"id"},
		},
	}
	Run(tables, func(key string) string { return "Sales" })
	assert.Contains(t, tables["public.customers"].Summary, "Sales")
}
