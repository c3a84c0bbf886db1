package planner

import (
	"fmt"
	"sort"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

// groupByCandidates collects category/date columns from mainTable and the
// dimension-archetype tables it directly joins to in joinPlan, fully
// qualified. It also reports whether zero or more than one date column was
// found, for the planner's clarification step.
func (p *Planner) groupByCandidates(mainTable string, joinPlan []JoinEdge) (candidates []string, missingDate, multipleDate bool) {
	isDimension := func(key string) bool {
		tp, ok := p.card.Tables[key]
		return ok && tp.Archetype == schema.ArchetypeDimension
	}
	immediate := map[string]bool{mainTable: true}
	for _, e := range joinPlan {
		if e.LeftTable == mainTable && isDimension(e.RightTable) {
			immediate[e.RightTable] = true
		}
		if e.RightTable == mainTable && isDimension(e.LeftTable) {
			immediate[e.LeftTable] = true
		}
	}

	var keys []string
	for k := range immediate {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dateCount := 0
	for _, key := range keys {
		tp, ok := p.card.Tables[key]
		if !ok {
			continue
		}
		for _, c := range tp.Columns {
			switch c.Role {
			case schema.RoleCategory:
				candidates = append(candidates, key+"."+c.Name)
			case schema.RoleDate:
				candidates = append(candidates, key+"."+c.Name)
				dateCount++
			}
		}
	}
	return candidates, dateCount == 0, dateCount > 1
}

// filterCandidates surfaces columns with enumerated values or numeric/date
// ranges as candidate predicate targets.
func (p *Planner) filterCandidates(tables []RankedTable) []FilterCandidate {
	var out []FilterCandidate
	for _, rt := range tables {
		tp, ok := p.card.Tables[rt.TableKey]
		if !ok {
			continue
		}
		for _, c := range tp.Columns {
			switch {
			case len(c.EnumeratedValues) > 0:
				out = append(out, FilterCandidate{
					TableKey: rt.TableKey, Column: c.Name, SuggestedShape: "equals_one_of", EnumeratedValues: c.EnumeratedValues,
				})
			case c.Range != nil:
				out = append(out, FilterCandidate{
					TableKey: rt.TableKey, Column: c.Name, SuggestedShape: "between", Range: c.Range,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TableKey != out[j].TableKey {
			return out[i].TableKey < out[j].TableKey
		}
		return out[i].Column < out[j].Column
	})
	return out
}

// rolePriority orders roles for selected_columns budget allocation:
// date, metric, category, key, text (key columns are always included
// regardless of this order via the keySet bypass in selectedColumns below;
// this ranking only governs the remaining, budget-capped columns).
var rolePriority = map[schema.Role]int{
	schema.RoleDate:     0,
	schema.RoleMetric:   1,
	schema.RoleCategory: 2,
	schema.RoleKey:      3,
	schema.RoleID:       4,
	schema.RoleText:     5,
}

// selectedColumns returns every key column plus, per table, up to
// columnsPerTable additional columns ordered by role priority.
func (p *Planner) selectedColumns(tables []RankedTable, keyColumns []string, columnsPerTable int) []SelectedColumn {
	keySet := map[string]bool{}
	for _, k := range keyColumns {
		keySet[k] = true
	}

	var out []SelectedColumn
	for _, rt := range tables {
		tp, ok := p.card.Tables[rt.TableKey]
		if !ok {
			continue
		}
		cols := append([]schema.ColumnProfile(nil), tp.Columns...)
		sort.Slice(cols, func(i, j int) bool {
			pi, pj := rolePriority[cols[i].Role], rolePriority[cols[j].Role]
			if pi != pj {
				return pi < pj
			}
			return cols[i].Name < cols[j].Name
		})

		count := 0
		for _, c := range cols {
			fq := rt.TableKey + "." + c.Name
			if keySet[fq] {
				out = append(out, SelectedColumn{TableKey: rt.TableKey, Column: c.Name, Role: c.Role})
				continue
			}
			if count >= columnsPerTable {
				continue
			}
			out = append(out, SelectedColumn{TableKey: rt.TableKey, Column: c.Name, Role: c.Role})
			count++
		}
	}
	return out
}

// confidence implements clamp(0.4*score_dispersion + 0.3*role_coverage +
// 0.3*graph_connectivity, 0, 1).
func (p *Planner) confidence(tables []RankedTable, joinEdgeCount, chosenCount int) float64 {
	dispersion := scoreDispersion(tables)
	coverage := roleCoverage(tables, p.card.Tables)
	connectivity := 1.0
	if chosenCount > 1 {
		connectivity = float64(joinEdgeCount) / float64(chosenCount-1)
	}
	if connectivity > 1 {
		connectivity = 1
	}

	c := 0.4*dispersion + 0.3*coverage + 0.3*connectivity
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// scoreDispersion implements (top1 - top_k) / top1, where top_k is the
// lowest-ranked score among the candidate set: a wide spread between the
// best and worst candidate means the retrieval step is confident about
// which tables matter, a narrow spread means it can't tell them apart.
func scoreDispersion(tables []RankedTable) float64 {
	if len(tables) == 0 {
		return 0
	}
	top1 := tables[0].Score
	if top1 <= 0 {
		return 0
	}
	topK := tables[len(tables)-1].Score
	d := (top1 - topK) / top1
	if d < 0 {
		d = 0
	}
	if d > 1 {
		d = 1
	}
	return d
}

// roleCoverage is the fraction of the required {metric, date} roles present
// among the chosen tables' columns, so it only ever takes {0, 0.5, 1}.
func roleCoverage(tables []RankedTable, all map[string]*schema.TableProfile) float64 {
	requiredRoles := []schema.Role{schema.RoleMetric, schema.RoleDate}
	found := map[schema.Role]bool{}
	for _, rt := range tables {
		tp, ok := all[rt.TableKey]
		if !ok {
			continue
		}
		for _, c := range tp.Columns {
			if c.Role == schema.RoleMetric || c.Role == schema.RoleDate {
				found[c.Role] = true
			}
		}
	}
	covered := 0
	for _, r := range requiredRoles {
		if found[r] {
			covered++
		}
	}
	return float64(covered) / float64(len(requiredRoles))
}

// buildDraftSQL renders a fully-qualified SELECT, never SELECT *, using the
// selected columns and join plan. The result is dialect-neutral ANSI SQL;
// the Execution Guardrail transpiles it to the active dialect before
// execution.
func buildDraftSQL(plan *Plan, dialect schema.Dialect) string {
	if plan.MainTable == "" || len(plan.SelectedColumns) == 0 {
		return ""
	}

	sql := "SELECT "
	for i, c := range plan.SelectedColumns {
		if i > 0 {
			sql += ", "
		}
		sql += fmt.Sprintf("%s.%s", c.TableKey, c.Column)
	}
	sql += fmt.Sprintf(" FROM %s", plan.MainTable)
	for _, e := range plan.JoinPlan {
		joinTable, joinCol := e.LeftTable, e.LeftColumn
		onTable, onCol := e.RightTable, e.RightColumn
		if e.LeftTable == plan.MainTable || tableIsJoinedAlready(plan, e.LeftTable) {
			joinTable, joinCol, onTable, onCol = e.RightTable, e.RightColumn, e.LeftTable, e.LeftColumn
		}
		sql += fmt.Sprintf(" JOIN %s ON %s.%s = %s.%s", joinTable, onTable, onCol, joinTable, joinCol)
	}
	return sql
}

func tableIsJoinedAlready(plan *Plan, table string) bool {
	if table == plan.MainTable {
		return true
	}
	for _, e := range plan.JoinPlan {
		if e.RightTable == table {
			return true
		}
	}
	return false
}
