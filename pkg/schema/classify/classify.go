// Package classify implements the Classifier: assigning a table archetype
// and a one-line human-readable summary from already-profiled columns and
// graph structure.
package classify

import (
	"fmt"
	"strings"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

// classify assigns tp.Archetype and tp.Summary in place. referencedByFact
// reports whether at least one fact-archetype table has an FK pointing at
// tp (used by the dimension rule, which depends on archetypes assigned to
// other tables first — callers run this in two passes, see Run below).
func classify(tp *schema.TableProfile, referencedByFact bool) {
	pkSet := toSet(tp.PrimaryKey)
	fkColSet := map[string]bool{}
	for _, fk := range tp.ForeignKeys {
		fkColSet[fk.LocalColumn] = true
	}

	switch {
	case len(tp.ForeignKeys) == 2 && len(pkSet) > 0 && setsEqual(pkSet, fkColSet):
		tp.Archetype = schema.ArchetypeBridge
	case len(tp.ForeignKeys) >= 2 && tp.MetricColumnCount >= 1:
		tp.Archetype = schema.ArchetypeFact
	case len(tp.PrimaryKey) > 0 && referencedByFact:
		tp.Archetype = schema.ArchetypeDimension
	case tp.RowCountEstimate > 0 && tp.RowCountEstimate <= 10000 && len(tp.ForeignKeys) == 0:
		tp.Archetype = schema.ArchetypeReference
	default:
		tp.Archetype = schema.ArchetypeOperational
	}

	tp.Summary = summarize(tp)
}

// Run classifies every table in two passes: the first pass assigns
// fact/bridge/reference/operational (which never depend on other tables'
// archetypes), the second assigns dimension where a first-pass fact table
// references it. subjectAreaName resolves a table's subject-area display
// name for the summary sentence.
func Run(tables map[string]*schema.TableProfile, subjectAreaName func(tableKey string) string) {
	for _, tp := range tables {
		classify(tp, false)
	}

	referenced := map[string]bool{}
	for _, tp := range tables {
		if tp.Archetype != schema.ArchetypeFact {
			continue
		}
		for _, fk := range tp.ForeignKeys {
			referenced[fk.RemoteTable] = true
		}
	}

	for key, tp := range tables {
		if tp.Archetype == schema.ArchetypeOperational || tp.Archetype == schema.ArchetypeReference {
			classify(tp, referenced[key])
		}
	}

	for _, tp := range tables {
		tp.Summary = summarizeWithArea(tp, subjectAreaName(tp.TableKey))
	}
}

func summarize(tp *schema.TableProfile) string {
	return summarizeWithArea(tp, tp.SubjectArea)
}

func summarizeWithArea(tp *schema.TableProfile, areaName string) string {
	roles := dominantRoles(tp)
	area := areaName
	if area == "" {
		area = "an unassigned subject area"
	}
	return fmt.Sprintf("A %s table with %s, part of %s.", tp.Archetype, roles, area)
}

func dominantRoles(tp *schema.TableProfile) string {
	counts := map[schema.Role]int{}
	for _, c := range tp.Columns {
		counts[c.Role]++
	}
	var parts []string
	if counts[schema.RoleMetric] > 0 {
		parts = append(parts, fmt.Sprintf("%d metric column(s)", counts[schema.RoleMetric]))
	}
	if counts[schema.RoleDate] > 0 {
		parts = append(parts, fmt.Sprintf("%d date column(s)", counts[schema.RoleDate]))
	}
	if counts[schema.RoleCategory] > 0 {
		parts = append(parts, fmt.Sprintf("%d category column(s)", counts[schema.RoleCategory]))
	}
	if len(parts) == 0 {
		return "no notable measure or dimension columns"
	}
	return strings.Join(parts, ", ")
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
