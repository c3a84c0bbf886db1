package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/embed"
)

func cardFixture() *schema.Card {
	return &schema.Card{
		Tables: map[string]*schema.TableProfile{
			"public.orders": {
				TableKey: "public.orders", Name: "orders", Summary: "Customer order header records.",
				Columns: []schema.ColumnProfile{{Name: "id"}, {Name: "total"}, {Name: "customer_id"}},
			},
			"public.order_archive": {
				TableKey: "public.order_archive", Name: "order_archive", Summary: "Archived historical orders.",
				Columns: []schema.ColumnProfile{{Name: "id"}, {Name: "total"}}, IsArchive: true,
			},
			"public.customers": {
				TableKey: "public.customers", Name: "customers", Summary: "Customer master records.",
				Columns: []schema.ColumnProfile{{Name: "id"}, {Name: "name"}},
			},
		},
	}
}

func TestFindTables_LexicalRanksRelevantTableFirst(t *testing.T) {
	e := New(cardFixture(), nil)
	results := e.FindTables(context.Background(), "customer orders", 10, StrategyLexical, 0.5)
	require.NotEmpty(t, results)
	assert.Equal(t, "public.orders", results[0].TableKey)
}

func TestFindTables_ArchivePenaltyAppliedWithoutCue(t *testing.T) {
	e := New(cardFixture(), nil)
	results := e.FindTables(context.Background(), "orders", 10, StrategyLexical, 0.5)

	var archiveScore, normalScore float64
	for _, r := range results {
		if r.TableKey == "public.order_archive" {
			archiveScore = r.Score
		}
		if r.TableKey == "public.orders" {
			normalScore = r.Score
		}
	}
	assert.Less(t, archiveScore, normalScore)
}

func TestFindTables_ArchiveCueLiftsPenalty(t *testing.T) {
	e := New(cardFixture(), nil)
	results := e.FindTables(context.Background(), "archived orders history", 10, StrategyLexical, 0.5)
	var found bool
	for _, r := range results {
		if r.TableKey == "public.order_archive" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestFindTables_FallsBackToLexicalWhenEmbeddingDisabled(t *testing.T) {
	e := New(cardFixture(), nil)
	results := e.FindTables(context.Background(), "customer", 10, StrategyCombined, 0.5)
	assert.NotEmpty(t, results)
}

func TestFindTables_CombinedUsesEmbeddingWhenAvailable(t *testing.T) {
	ctx := context.Background()
	sem, err := embed.Build(ctx, cardFixture(), embed.NewHashingEncoder(32))
	require.NoError(t, err)
	require.NotNil(t, sem)

	e := New(cardFixture(), sem)
	results := e.FindTables(ctx, "customer orders", 10, StrategyCombined, 0.5)
	assert.Len(t, results, 3)
}

func TestFindColumns_ExactMatchScoresHighest(t *testing.T) {
	e := New(cardFixture(), nil)
	results := e.FindColumns("id", 10, "")
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Contains(t, r.Column, "id")
	}
}

func TestFindColumns_RestrictsToTable(t *testing.T) {
	e := New(cardFixture(), nil)
	results := e.FindColumns("total", 10, "public.orders")
	for _, r := range results {
		assert.Equal(t, "public.orders", r.TableKey)
	}
}

type stubGraph struct {
	adjacency map[string][]string
}

func (s stubGraph) Neighbors(key string) []string { return s.adjacency[key] }

func TestExpand_PreservesAllSeeds(t *testing.T) {
	g := stubGraph{adjacency: map[string][]string{
		"public.orders":    {"public.customers"},
		"public.customers": {"public.orders"},
	}}
	tables := cardFixture().Tables
	seeds := map[string]float64{"public.orders": 0.9, "public.order_archive": 0.1}
	centrality := map[string]float64{"public.orders": 0.5, "public.customers": 0.3}

	out := Expand(g, tables, seeds, centrality, ExpandParams{Strategy: ExpandFKFollowing, MaxTables: 1})
	var seedKeys []string
	for _, et := range out {
		if et.IsSeed {
			seedKeys = append(seedKeys, et.TableKey)
		}
	}
	assert.ElementsMatch(t, []string{"public.orders", "public.order_archive"}, seedKeys)
}

func TestExpand_FKFollowingReachesDepthTwo(t *testing.T) {
	g := stubGraph{adjacency: map[string][]string{
		"public.orders":    {"public.customers"},
		"public.customers": {"public.orders", "public.order_archive"},
	}}
	tables := cardFixture().Tables
	seeds := map[string]float64{"public.orders": 1.0}
	centrality := map[string]float64{}

	out := Expand(g, tables, seeds, centrality, ExpandParams{Strategy: ExpandFKFollowing, MaxTables: 10})
	var keys []string
	for _, et := range out {
		keys = append(keys, et.TableKey)
	}
	assert.Contains(t, keys, "public.order_archive")
}

func TestExpand_SimpleStrategyStopsAtDirectNeighbors(t *testing.T) {
	g := stubGraph{adjacency: map[string][]string{
		"public.orders":    {"public.customers"},
		"public.customers": {"public.orders", "public.order_archive"},
	}}
	tables := cardFixture().Tables
	seeds := map[string]float64{"public.orders": 1.0}

	out := Expand(g, tables, seeds, nil, ExpandParams{Strategy: ExpandSimple, MaxTables: 10})
	var keys []string
	for _, et := range out {
		keys = append(keys, et.TableKey)
	}
	assert.Contains(t, keys, "public.customers")
	assert.NotContains(t, keys, "public.order_archive")
}

func TestArchetypeBonus_FavorsDimensionWhenSeedIsFactAndFactWhenSeedIsDimension(t *testing.T) {
	assert.Equal(t, 1.0, archetypeBonus(schema.ArchetypeFact, schema.ArchetypeDimension))
	assert.Equal(t, 1.0, archetypeBonus(schema.ArchetypeDimension, schema.ArchetypeFact))
	assert.Less(t, archetypeBonus(schema.ArchetypeDimension, schema.ArchetypeDimension),
		archetypeBonus(schema.ArchetypeFact, schema.ArchetypeDimension))
	assert.Less(t, archetypeBonus(schema.ArchetypeFact, schema.ArchetypeFact),
		archetypeBonus(schema.ArchetypeDimension, schema.ArchetypeFact))
}

func TestExpand_FactCandidateScoresHigherWhenSeedIsDimension(t *testing.T) {
	g := stubGraph{adjacency: map[string][]string{
		"public.customers": {"public.orders"},
		"public.orders":    {"public.customers"},
	}}
	tables := map[string]*schema.TableProfile{
		"public.customers": {TableKey: "public.customers", Archetype: schema.ArchetypeDimension},
		"public.orders":    {TableKey: "public.orders", Archetype: schema.ArchetypeFact},
	}
	seeds := map[string]float64{"public.customers": 1.0}
	centrality := map[string]float64{}

	out := Expand(g, tables, seeds, centrality, ExpandParams{Strategy: ExpandSimple, MaxTables: 10})
	var ordersScore float64
	for _, et := range out {
		if et.TableKey == "public.orders" {
			ordersScore = et.Score
		}
	}
	require.Greater(t, ordersScore, 0.0)
}

func TestExpand_StrictArchiveExcludeDropsArchiveTables(t *testing.T) {
	g := stubGraph{adjacency: map[string][]string{
		"public.orders": {"public.order_archive"},
	}}
	tables := cardFixture().Tables
	seeds := map[string]float64{"public.orders": 1.0}

	out := Expand(g, tables, seeds, nil, ExpandParams{Strategy: ExpandFKFollowing, MaxTables: 10, StrictArchiveExclude: true})
	for _, et := range out {
		assert.NotEqual(t, "public.order_archive", et.TableKey)
	}
}
