package retrieval

import (
	"sort"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

// ExpandStrategy selects how the seed table set is grown along FK edges.
type ExpandStrategy string

const (
	ExpandFKFollowing ExpandStrategy = "fk_following"
	ExpandSimple      ExpandStrategy = "simple"
)

// ExpandParams bounds one expansion call.
type ExpandParams struct {
	Strategy             ExpandStrategy
	MaxTables            int
	StrictArchiveExclude bool
}

// ExpandedTable is one table in the expansion result: every seed is
// included verbatim with its retrieval score and hop 0; every FK-reachable
// addition carries its computed utility and hop distance.
type ExpandedTable struct {
	TableKey string
	Score    float64
	Hop      int
	IsSeed   bool
}

// Expand grows seeds (table_key -> retrieval score) along FK edges up to a
// BFS depth of 2 under fk_following, or direct neighbors only under simple,
// selecting the top params.MaxTables by combined score while always
// preserving every seed.
func Expand(g graphOf, tables map[string]*schema.TableProfile, seeds map[string]float64, centrality map[string]float64, params ExpandParams) []ExpandedTable {
	maxDepth := 1
	if params.Strategy == ExpandFKFollowing {
		maxDepth = 2
	}

	type visit struct {
		key  string
		hop  int
		seed string // originating seed table_key, for the archetype-symmetry bonus
	}
	seen := map[string]int{}     // table_key -> hop at first visit
	originOf := map[string]string{} // table_key -> seed that first reached it
	var order []string
	var queue []visit
	for key := range seeds {
		seen[key] = 0
		originOf[key] = key
		order = append(order, key)
	}
	sort.Strings(order) // deterministic BFS seed ordering
	for _, key := range order {
		queue = append(queue, visit{key: key, hop: 0, seed: key})
	}

	for i := 0; i < len(queue); i++ {
		v := queue[i]
		if v.hop >= maxDepth {
			continue
		}
		neighbors := g.Neighbors(v.key)
		for _, n := range neighbors {
			if _, ok := seen[n]; ok {
				continue
			}
			if params.StrictArchiveExclude {
				if tp, ok := tables[n]; ok && tp.IsArchive {
					continue
				}
			}
			seen[n] = v.hop + 1
			originOf[n] = v.seed
			queue = append(queue, visit{key: n, hop: v.hop + 1, seed: v.seed})
		}
	}

	var out []ExpandedTable
	for key, hop := range seen {
		if seedScore, isSeed := seeds[key]; isSeed {
			out = append(out, ExpandedTable{TableKey: key, Score: seedScore, Hop: 0, IsSeed: true})
			continue
		}
		seedArchetype := schema.Archetype("")
		if tp, ok := tables[originOf[key]]; ok {
			seedArchetype = tp.Archetype
		}
		u := utility(key, hop, seedArchetype, tables, centrality)
		out = append(out, ExpandedTable{TableKey: key, Score: u, Hop: hop, IsSeed: false})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsSeed != out[j].IsSeed {
			return out[i].IsSeed // seeds sort first, always preserved
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TableKey < out[j].TableKey
	})

	if params.MaxTables > 0 && len(out) > params.MaxTables {
		seedCount := 0
		for _, t := range out {
			if t.IsSeed {
				seedCount++
			}
		}
		limit := params.MaxTables
		if limit < seedCount {
			limit = seedCount // never drop a seed even if budget is tighter
		}
		if len(out) > limit {
			out = out[:limit]
		}
	}

	return out
}

// utility computes the fk_following/simple expansion score:
// 0.5*seed_proximity + 0.3*archetype_bonus + 0.2*centrality.
func utility(key string, hop int, seedArchetype schema.Archetype, tables map[string]*schema.TableProfile, centrality map[string]float64) float64 {
	seedProximity := 1.0 / float64(1+hop)

	candidateArchetype := schema.Archetype("")
	if tp, ok := tables[key]; ok {
		candidateArchetype = tp.Archetype
	}

	cent := centrality[key]

	return 0.5*seedProximity + 0.3*archetypeBonus(seedArchetype, candidateArchetype) + 0.2*cent
}

// archetypeBonus favors dimensions when the expansion originated from a fact
// seed and, symmetrically, favors facts when it originated from a dimension
// seed: each table tends to be interesting relative to the other side of a
// star-schema join, not in isolation. Reference and bridge tables carry a
// flat bonus regardless of the seed, since lookup and junction tables are
// broadly useful joins no matter what kicked off the expansion.
func archetypeBonus(seedArchetype, candidateArchetype schema.Archetype) float64 {
	switch candidateArchetype {
	case schema.ArchetypeReference:
		return 1.0
	case schema.ArchetypeBridge:
		return 0.6
	case schema.ArchetypeDimension:
		if seedArchetype == schema.ArchetypeFact {
			return 1.0
		}
		return 0.5
	case schema.ArchetypeFact:
		if seedArchetype == schema.ArchetypeDimension {
			return 1.0
		}
		return 0.5
	default:
		return 0.0
	}
}
