package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
	"github.com/Mando-03/nl2sql-mcp/pkg/retrieval"
)

type stubGraph struct {
	adjacency map[string][]string
}

func (s stubGraph) Neighbors(key string) []string { return s.adjacency[key] }

func cardFixture() *schema.Card {
	return &schema.Card{
		Dialect: schema.DialectPostgres,
		Tables: map[string]*schema.TableProfile{
			"public.orders": {
				TableKey: "public.orders", Name: "orders", Summary: "Order header records.",
				PrimaryKey: []string{"id"},
				Archetype:  schema.ArchetypeFact,
				Columns: []schema.ColumnProfile{
					{Name: "id", Role: schema.RoleKey, IsPK: true},
					{Name: "customer_id", Role: schema.RoleID, IsFK: true, FKTable: "public.customers", FKColumn: "id"},
					{Name: "total", Role: schema.RoleMetric},
					{Name: "order_date", Role: schema.RoleDate},
				},
				ForeignKeys:       []schema.ForeignKeyEdge{{LocalColumn: "customer_id", RemoteTable: "public.customers", RemoteColumn: "id"}},
				MetricColumnCount: 1,
				DateColumnCount:   1,
			},
			"public.customers": {
				TableKey: "public.customers", Name: "customers", Summary: "Customer master records.",
				PrimaryKey: []string{"id"},
				Archetype:  schema.ArchetypeDimension,
				Columns: []schema.ColumnProfile{
					{Name: "id", Role: schema.RoleKey, IsPK: true},
					{Name: "region", Role: schema.RoleCategory, EnumeratedValues: []string{"east", "west"}},
				},
			},
		},
	}
}

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	card := cardFixture()
	engine := retrieval.New(card, nil)
	g := stubGraph{adjacency: map[string][]string{
		"public.orders":    {"public.customers"},
		"public.customers": {"public.orders"},
	}}
	return New(card, engine, g)
}

func TestPlan_ChoosesFactTableAsMain(t *testing.T) {
	p := newTestPlanner(t)
	plan := p.Plan(context.Background(), Request{Intent: "total orders by customer region"})
	assert.Equal(t, "public.orders", plan.MainTable)
}

func TestPlan_JoinPlanConnectsChosenTables(t *testing.T) {
	p := newTestPlanner(t)
	plan := p.Plan(context.Background(), Request{Intent: "total orders by customer region"})
	require.NotEmpty(t, plan.JoinPlan)
	found := false
	for _, e := range plan.JoinPlan {
		if (e.LeftTable == "public.orders" && e.RightTable == "public.customers") ||
			(e.LeftTable == "public.customers" && e.RightTable == "public.orders") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPlan_KeyColumnsIncludePKsAndFKs(t *testing.T) {
	p := newTestPlanner(t)
	plan := p.Plan(context.Background(), Request{Intent: "total orders by customer region"})
	assert.Contains(t, plan.KeyColumns, "public.orders.id")
	assert.Contains(t, plan.KeyColumns, "public.customers.id")
}

func TestPlan_FilterCandidatesSurfaceEnumeratedColumns(t *testing.T) {
	p := newTestPlanner(t)
	plan := p.Plan(context.Background(), Request{Intent: "total orders by customer region"})
	var foundRegion bool
	for _, f := range plan.FilterCandidates {
		if f.TableKey == "public.customers" && f.Column == "region" {
			foundRegion = true
			assert.Equal(t, "equals_one_of", f.SuggestedShape)
		}
	}
	assert.True(t, foundRegion)
}

func TestPlan_DraftSQLOmittedWhenClarificationsPresent(t *testing.T) {
	card := &schema.Card{
		Dialect: schema.DialectPostgres,
		Tables: map[string]*schema.TableProfile{
			"public.widgets": {
				TableKey: "public.widgets", Name: "widgets", PrimaryKey: []string{"id"},
				Columns: []schema.ColumnProfile{{Name: "id", Role: schema.RoleKey, IsPK: true}},
			},
		},
	}
	engine := retrieval.New(card, nil)
	g := stubGraph{adjacency: map[string][]string{}}
	p := New(card, engine, g)

	plan := p.Plan(context.Background(), Request{Intent: "widgets"})
	assert.NotEmpty(t, plan.Clarifications)
	assert.Empty(t, plan.DraftSQL)
}

func TestPlan_DraftSQLNeverUsesSelectStar(t *testing.T) {
	p := newTestPlanner(t)
	plan := p.Plan(context.Background(), Request{Intent: "total orders by customer region"})
	if plan.DraftSQL != "" {
		assert.NotContains(t, plan.DraftSQL, "SELECT *")
	}
}

func TestPlan_ConfidenceWithinBounds(t *testing.T) {
	p := newTestPlanner(t)
	plan := p.Plan(context.Background(), Request{Intent: "total orders by customer region"})
	assert.GreaterOrEqual(t, plan.Confidence, 0.0)
	assert.LessOrEqual(t, plan.Confidence, 1.0)
}

func TestPlan_WorkedScenarioMeetsSpecConfidenceThreshold(t *testing.T) {
	// Mirrors the specification's worked scenario 1: orders+customers with a
	// clear fact/dimension pair, a single date column, and a region filter.
	p := newTestPlanner(t)
	plan := p.Plan(context.Background(), Request{Intent: "total revenue by region for 2024"})
	assert.Equal(t, "public.orders", plan.MainTable)
	assert.Empty(t, plan.Clarifications)
	assert.GreaterOrEqual(t, plan.Confidence, 0.6)
	assert.NotEmpty(t, plan.DraftSQL)
}

func TestScoreDispersion_DividesByTop1AndUsesLowestRankedScore(t *testing.T) {
	tables := []RankedTable{
		{TableKey: "a", Score: 0.2},
		{TableKey: "b", Score: 0.15},
		{TableKey: "c", Score: 0.1},
	}
	got := scoreDispersion(tables)
	want := (0.2 - 0.1) / 0.2
	assert.InDelta(t, want, got, 1e-9)
}

func TestScoreDispersion_SingleCandidateHasNoSpread(t *testing.T) {
	tables := []RankedTable{{TableKey: "a", Score: 0.4}}
	assert.Equal(t, 0.0, scoreDispersion(tables))
}

func TestRoleCoverage_IsZeroHalfOrOne(t *testing.T) {
	all := map[string]*schema.TableProfile{
		"public.metric_only": {Columns: []schema.ColumnProfile{{Name: "amount", Role: schema.RoleMetric}}},
		"public.both":        {Columns: []schema.ColumnProfile{{Name: "amount", Role: schema.RoleMetric}, {Name: "d", Role: schema.RoleDate}}},
		"public.neither":     {Columns: []schema.ColumnProfile{{Name: "name", Role: schema.RoleCategory}}},
	}
	assert.Equal(t, 0.0, roleCoverage([]RankedTable{{TableKey: "public.neither"}}, all))
	assert.Equal(t, 0.5, roleCoverage([]RankedTable{{TableKey: "public.metric_only"}}, all))
	assert.Equal(t, 1.0, roleCoverage([]RankedTable{{TableKey: "public.both"}}, all))
}

func TestRolePriority_OrdersDateBeforeMetricBeforeCategoryBeforeKeyBeforeText(t *testing.T) {
	assert.Less(t, rolePriority[schema.RoleDate], rolePriority[schema.RoleMetric])
	assert.Less(t, rolePriority[schema.RoleMetric], rolePriority[schema.RoleCategory])
	assert.Less(t, rolePriority[schema.RoleCategory], rolePriority[schema.RoleKey])
	assert.Less(t, rolePriority[schema.RoleKey], rolePriority[schema.RoleText])
}

func TestPlan_IsDeterministicAcrossRepeatedCalls(t *testing.T) {
	p := newTestPlanner(t)
	plan1 := p.Plan(context.Background(), Request{Intent: "total orders by customer region"})
	plan2 := p.Plan(context.Background(), Request{Intent: "total orders by customer region"})
	assert.Equal(t, plan1.MainTable, plan2.MainTable)
	assert.Equal(t, plan1.JoinPlan, plan2.JoinPlan)
	assert.Equal(t, plan1.Confidence, plan2.Confidence)
}
