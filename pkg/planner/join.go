package planner

import "sort"

// buildJoinPlan derives a spanning tree of FK edges connecting every table
// in chosenKeys to mainTable, via BFS from mainTable over the FK-adjacency
// graph restricted to chosenKeys. Ties (a table reachable through more than
// one already-visited neighbor) resolve by lexically-smallest neighbor
// table key, then lexically-smallest local column, for determinism.
// Tables unreachable from mainTable are returned as orphans and excluded
// from the join plan.
func (p *Planner) buildJoinPlan(mainTable string, chosenKeys []string) ([]JoinEdge, []string) {
	if mainTable == "" {
		return nil, nil
	}
	chosen := map[string]bool{}
	for _, k := range chosenKeys {
		chosen[k] = true
	}

	visited := map[string]bool{mainTable: true}
	queue := []string{mainTable}
	var edges []JoinEdge

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		candidates := p.fkEdgesBetween(cur, chosen, visited)
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].other != candidates[j].other {
				return candidates[i].other < candidates[j].other
			}
			return candidates[i].localCol < candidates[j].localCol
		})
		for _, c := range candidates {
			if visited[c.other] {
				continue
			}
			visited[c.other] = true
			queue = append(queue, c.other)
			edges = append(edges, c.edge)
		}
	}

	var orphans []string
	for _, k := range chosenKeys {
		if !visited[k] {
			orphans = append(orphans, k)
		}
	}
	sort.Strings(orphans)
	// edges is left in BFS-tree order (not re-sorted): each edge's "new"
	// endpoint was unvisited when discovered, so a SQL builder walking
	// edges in this order can always join against an already-introduced
	// table.
	return edges, orphans
}

type fkCandidate struct {
	other    string
	localCol string
	edge     JoinEdge
}

// fkEdgesBetween returns every FK edge connecting cur to an as-yet-unvisited
// table in chosen, in both directions (cur owns the FK, or a chosen table's
// FK points back at cur).
func (p *Planner) fkEdgesBetween(cur string, chosen, visited map[string]bool) []fkCandidate {
	var out []fkCandidate

	if tp, ok := p.card.Tables[cur]; ok {
		for _, fk := range tp.ForeignKeys {
			if !chosen[fk.RemoteTable] || visited[fk.RemoteTable] {
				continue
			}
			out = append(out, fkCandidate{
				other: fk.RemoteTable, localCol: fk.LocalColumn,
				edge: JoinEdge{LeftTable: cur, LeftColumn: fk.LocalColumn, RightTable: fk.RemoteTable, RightColumn: fk.RemoteColumn},
			})
		}
	}

	for key := range chosen {
		if visited[key] || key == cur {
			continue
		}
		tp, ok := p.card.Tables[key]
		if !ok {
			continue
		}
		for _, fk := range tp.ForeignKeys {
			if fk.RemoteTable != cur {
				continue
			}
			out = append(out, fkCandidate{
				other: key, localCol: fk.LocalColumn,
				edge: JoinEdge{LeftTable: key, LeftColumn: fk.LocalColumn, RightTable: cur, RightColumn: fk.RemoteColumn},
			})
		}
	}

	return out
}

// keyColumns collects PKs of every ranked table plus every FK column used
// in the join plan, fully qualified as "table_key.column".
func (p *Planner) keyColumns(tables []RankedTable, joinPlan []JoinEdge) []string {
	seen := map[string]bool{}
	var out []string
	add := func(tableKey, col string) {
		k := tableKey + "." + col
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, rt := range tables {
		if tp, ok := p.card.Tables[rt.TableKey]; ok {
			for _, pk := range tp.PrimaryKey {
				add(rt.TableKey, pk)
			}
		}
	}
	for _, e := range joinPlan {
		add(e.LeftTable, e.LeftColumn)
		add(e.RightTable, e.RightColumn)
	}
	sort.Strings(out)
	return out
}
