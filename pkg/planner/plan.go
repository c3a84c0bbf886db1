package planner

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
	"github.com/Mando-03/nl2sql-mcp/pkg/retrieval"
)

// graphOf is the subset of *graph.Graph the planner needs: FK-adjacency
// lookup for the Graph Expander's BFS, kept narrow so tests can stub it.
type graphOf interface {
	Neighbors(key string) []string
}

// Planner assembles Plan values from a Schema Card plus the Retrieval
// Engine and Graph Expander.
type Planner struct {
	card   *schema.Card
	engine *retrieval.Engine
	graph  graphOf
}

// New constructs a Planner bound to one Schema Card snapshot.
func New(card *schema.Card, engine *retrieval.Engine, graph graphOf) *Planner {
	return &Planner{card: card, engine: engine, graph: graph}
}

// Request is one plan_query_for_intent call's input.
type Request struct {
	Intent                 string
	MaxTables              int
	ColumnsPerTable         int
	RetrievalStrategy       retrieval.Strategy
	Alpha                   float64
	ExpandStrategy          retrieval.ExpandStrategy
	StrictArchiveExclude    bool
}

// Plan runs the ten-step planning algorithm against req.
func (p *Planner) Plan(ctx context.Context, req Request) *Plan {
	budget := Budget{MaxTables: req.MaxTables, ColumnsPerTable: req.ColumnsPerTable}
	if budget.MaxTables <= 0 {
		budget.MaxTables = 6
	}
	if budget.ColumnsPerTable <= 0 {
		budget.ColumnsPerTable = 8
	}

	// Step 1: retrieval + expansion.
	retrieved := p.engine.FindTables(ctx, req.Intent, budget.MaxTables*2, orStrategy(req.RetrievalStrategy), orAlpha(req.Alpha))
	seeds := make(map[string]float64, len(retrieved))
	for _, r := range retrieved {
		seeds[r.TableKey] = r.Score
	}

	centrality := map[string]float64{}
	for key, tp := range p.card.Tables {
		centrality[key] = tp.Centrality
	}

	expanded := retrieval.Expand(p.graph, p.card.Tables, seeds, centrality, retrieval.ExpandParams{
		Strategy:             orExpandStrategy(req.ExpandStrategy),
		MaxTables:            budget.MaxTables,
		StrictArchiveExclude: req.StrictArchiveExclude,
	})

	var clarifications []Clarification

	// Step 2: choose main_table — highest combined score, except that a fact
	// table anywhere in the expanded set is preferred.
	mainTable, ambiguous := p.chooseMainTable(expanded)
	if ambiguous {
		clarifications = append(clarifications, Clarification{
			Code: ClarifyAmbiguousMainTable, Message: "multiple top-scoring tables are equally plausible as the main table",
		})
	}

	chosenKeys := make([]string, 0, len(expanded))
	for _, e := range expanded {
		chosenKeys = append(chosenKeys, e.TableKey)
	}

	// Step 3: join_plan as an MST of FK edges connecting chosen tables to
	// main_table via BFS; orphans become UNJOINABLE_SUBSET clarifications.
	joinPlan, orphans := p.buildJoinPlan(mainTable, chosenKeys)
	for _, orphan := range orphans {
		clarifications = append(clarifications, Clarification{
			Code:    ClarifyUnjoinableSubset,
			Message: fmt.Sprintf("table %s has no foreign-key path to %s and was excluded from the join plan", orphan, mainTable),
		})
	}
	joined := map[string]bool{mainTable: true}
	for _, e := range joinPlan {
		joined[e.LeftTable] = true
		joined[e.RightTable] = true
	}

	var rankedTables []RankedTable
	for _, e := range expanded {
		if !joined[e.TableKey] {
			continue
		}
		tp := p.card.Tables[e.TableKey]
		var archetype schema.Archetype
		if tp != nil {
			archetype = tp.Archetype
		}
		rankedTables = append(rankedTables, RankedTable{
			TableKey: e.TableKey, Score: e.Score, Archetype: archetype, IsSeed: e.IsSeed,
		})
	}
	sort.Slice(rankedTables, func(i, j int) bool { return rankedTables[i].Score > rankedTables[j].Score })

	// Step 4: key_columns = PKs of chosen tables + FK columns used in the join.
	keyColumns := p.keyColumns(rankedTables, joinPlan)

	// Step 5: group_by_candidates from main table and its immediate dimension joins.
	groupBy, missingDateClar, multiDateClar := p.groupByCandidates(mainTable, joinPlan)
	if missingDateClar {
		clarifications = append(clarifications, Clarification{Code: ClarifyMissingDate, Message: "no date column found on the main table or its joined dimensions"})
	}
	if multiDateClar {
		clarifications = append(clarifications, Clarification{Code: ClarifyMultipleDateCols, Message: "multiple date columns are candidates for grouping; choose one explicitly"})
	}

	// Step 6: filter_candidates from enumerated-value/range columns.
	filters := p.filterCandidates(rankedTables)

	// Step 7: selected_columns = keys + up to budget.ColumnsPerTable by role priority.
	selected := p.selectedColumns(rankedTables, keyColumns, budget.ColumnsPerTable)

	if !hasMetric(p.card.Tables[mainTable]) {
		clarifications = append(clarifications, Clarification{Code: ClarifyMissingMetric, Message: "main table has no metric column; aggregation intent may be unsatisfiable"})
	}

	// Step 9: confidence.
	confidence := p.confidence(rankedTables, len(joinPlan), len(chosenKeys))

	plan := &Plan{
		PlanID:            uuid.NewString(),
		Intent:            req.Intent,
		MainTable:         mainTable,
		Tables:            rankedTables,
		JoinPlan:          joinPlan,
		KeyColumns:        keyColumns,
		GroupByCandidates: groupBy,
		FilterCandidates:  filters,
		SelectedColumns:   selected,
		Clarifications:    clarifications,
		Confidence:        confidence,
	}

	// Step 10: draft_sql only when clarifications empty and confidence >= 0.6.
	if len(clarifications) == 0 && confidence >= 0.6 {
		plan.DraftSQL = buildDraftSQL(plan, p.card.Dialect)
	}

	return plan
}

func orStrategy(s retrieval.Strategy) retrieval.Strategy {
	if s == "" {
		return retrieval.StrategyCombined
	}
	return s
}

func orAlpha(a float64) float64 {
	if a <= 0 {
		return 0.5
	}
	return a
}

func orExpandStrategy(s retrieval.ExpandStrategy) retrieval.ExpandStrategy {
	if s == "" {
		return retrieval.ExpandFKFollowing
	}
	return s
}

func (p *Planner) chooseMainTable(expanded []retrieval.ExpandedTable) (key string, ambiguous bool) {
	if len(expanded) == 0 {
		return "", false
	}
	best := expanded[0]
	for _, e := range expanded {
		if e.Score > best.Score {
			best = e
		}
	}
	// Prefer the first fact table in the expanded set, whatever its score;
	// ambiguity is still judged by ties at the best score.
	const tie = 1e-9
	var factCandidate string
	tiedCount := 0
	for _, e := range expanded {
		if math.Abs(e.Score-best.Score) <= tie {
			tiedCount++
		}
		if tp, ok := p.card.Tables[e.TableKey]; ok && tp.Archetype == schema.ArchetypeFact && factCandidate == "" {
			if math.Abs(e.Score-best.Score) <= tie || factCandidate == "" {
				factCandidate = e.TableKey
			}
		}
	}
	if factCandidate != "" {
		return factCandidate, tiedCount > 1
	}
	return best.TableKey, tiedCount > 1
}

func hasMetric(tp *schema.TableProfile) bool {
	return tp != nil && tp.MetricColumnCount > 0
}
