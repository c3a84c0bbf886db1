// Package graph implements the Graph Builder: constructing the FK graph,
// computing centrality, detecting communities, and merging them into
// named subject areas.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"

	schemapkg "github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

// Params bounds community merging behavior.
type Params struct {
	MinAreaSize       int
	MergeArchiveAreas bool
}

// Graph wraps a gonum weighted undirected graph together with the
// table-key <-> node-id bijection needed to use it from table-key-keyed
// callers (the Graph Expander reuses this directly for BFS).
type Graph struct {
	g        *simple.WeightedUndirectedGraph
	idOf     map[string]int64
	keyOf    map[int64]string
	adjacency map[string][]string
}

// Build constructs the FK graph from table profiles: one node per table,
// one edge per FK relationship, weighted by the number of FK columns
// connecting the pair.
func Build(tables map[string]*schemapkg.TableProfile) *Graph {
	g := simple.NewWeightedUndirectedGraph(0, 0)
	idOf := map[string]int64{}
	keyOf := map[int64]string{}

	var keys []string
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic node ID assignment
	for i, k := range keys {
		id := int64(i)
		idOf[k] = id
		keyOf[id] = k
		g.AddNode(simple.Node(id))
	}

	weight := map[[2]int64]float64{}
	for _, k := range keys {
		tp := tables[k]
		for _, fk := range tp.ForeignKeys {
			remoteID, ok := idOf[fk.RemoteTable]
			if !ok {
				continue // FK target outside the reflected set; not part of the graph
			}
			localID := idOf[k]
			if localID == remoteID {
				continue
			}
			a, b := localID, remoteID
			if a > b {
				a, b = b, a
			}
			weight[[2]int64{a, b}]++
		}
	}
	for pair, w := range weight {
		g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(pair[0]), T: simple.Node(pair[1]), W: w})
	}

	adjacency := make(map[string][]string, len(keys))
	for _, k := range keys {
		id := idOf[k]
		nodes := g.From(id)
		for nodes.Next() {
			adjacency[k] = append(adjacency[k], keyOf[nodes.Node().ID()])
		}
		sort.Strings(adjacency[k])
	}

	return &Graph{g: g, idOf: idOf, keyOf: keyOf, adjacency: adjacency}
}

// Neighbors returns the FK-adjacent table keys of key, sorted for
// determinism.
func (gr *Graph) Neighbors(key string) []string {
	return gr.adjacency[key]
}

// Centrality computes eigenvector centrality over the whole graph, falling
// back to plain degree centrality (normalized by the max degree) when
// eigenvector iteration fails to produce a usable result.
func (gr *Graph) Centrality() map[string]float64 {
	out := make(map[string]float64, len(gr.idOf))

	eig := safeEigenvector(gr.g)
	if eig != nil {
		for key, id := range gr.idOf {
			out[key] = eig[id]
		}
		return out
	}

	maxDegree := 0.0
	degrees := make(map[string]float64, len(gr.idOf))
	for key, id := range gr.idOf {
		d := float64(gr.g.From(id).Len())
		degrees[key] = d
		if d > maxDegree {
			maxDegree = d
		}
	}
	for key, d := range degrees {
		if maxDegree > 0 {
			out[key] = d / maxDegree
		}
	}
	return out
}

// safeEigenvector runs gonum's eigenvector centrality and discards the
// result if it produced NaN/Inf values, which network.Eigenvector can do
// on a disconnected or degenerate graph instead of returning an error.
func safeEigenvector(g graph.Graph) (result map[int64]float64) {
	defer func() {
		if recover() != nil {
			result = nil
		}
	}()
	scores := network.Eigenvector(g)
	for _, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
	}
	if len(scores) == 0 {
		return nil
	}
	return scores
}

// SubjectAreas partitions the graph into communities via greedy modularity
// optimization, merges communities smaller than params.MinAreaSize into
// their nearest neighbor by shared edges, optionally coalesces
// majority-archive communities, and assigns a stable ID plus a name drawn
// from the highest-centrality member table.
func (gr *Graph) SubjectAreas(tables map[string]*schemapkg.TableProfile, centrality map[string]float64, params Params) map[string]schemapkg.SubjectArea {
	raw := gr.detectCommunities()
	merged := gr.mergeSmall(raw, params.MinAreaSize)
	if params.MergeArchiveAreas {
		merged = gr.mergeArchiveMajority(merged, tables)
	}

	out := make(map[string]schemapkg.SubjectArea, len(merged))
	for _, members := range merged {
		id := areaID(members)
		name := areaName(members, centrality)
		out[id] = schemapkg.SubjectArea{
			ID:     id,
			Name:   name,
			Tables: members,
		}
	}
	return out
}

func (gr *Graph) detectCommunities() (out [][]string) {
	defer func() {
		if recover() != nil {
			out = gr.singletonCommunities() // fall through to singleton communities on any internal panic
		}
	}()

	reduced := community.Modularize(gr.g, 1.0, nil)
	if reduced == nil {
		return gr.singletonCommunities()
	}

	groups := reduced.Communities()
	out = make([][]string, 0, len(groups))
	for _, grp := range groups {
		var members []string
		for _, n := range grp {
			if key, ok := gr.keyOf[n.ID()]; ok {
				members = append(members, key)
			}
		}
		if len(members) > 0 {
			sort.Strings(members)
			out = append(out, members)
		}
	}
	if len(out) == 0 {
		return gr.singletonCommunities()
	}
	return out
}

func (gr *Graph) singletonCommunities() [][]string {
	var out [][]string
	for key := range gr.idOf {
		out = append(out, []string{key})
	}
	return out
}

// mergeSmall folds communities smaller than minSize into whichever other
// community they share the most edges with.
func (gr *Graph) mergeSmall(communities [][]string, minSize int) [][]string {
	if minSize <= 1 {
		return communities
	}
	memberOf := map[string]int{}
	for i, c := range communities {
		for _, k := range c {
			memberOf[k] = i
		}
	}

	merged := make([][]string, len(communities))
	copy(merged, communities)
	absorbed := map[int]bool{}

	for i := range communities {
		c := merged[i]
		if len(c) >= minSize || absorbed[i] {
			continue
		}
		target := -1
		bestShared := 0
		counts := map[int]int{}
		for _, k := range c {
			for _, n := range gr.Neighbors(k) {
				if j, ok := memberOf[n]; ok && j != i {
					counts[j]++
				}
			}
		}
		for j, n := range counts {
			if n > bestShared {
				bestShared = n
				target = j
			}
		}
		if target == -1 {
			continue // no edges out: stays its own (small) area
		}
		merged[target] = append(merged[target], c...)
		for _, k := range c {
			memberOf[k] = target
		}
		merged[i] = nil
		absorbed[i] = true
	}

	var out [][]string
	for _, c := range merged {
		if len(c) > 0 {
			sort.Strings(c)
			out = append(out, c)
		}
	}
	return out
}

func (gr *Graph) mergeArchiveMajority(communities [][]string, tables map[string]*schemapkg.TableProfile) [][]string {
	var archiveIdx []int
	var normal [][]string
	for i, c := range communities {
		archiveCount := 0
		for _, k := range c {
			if tp, ok := tables[k]; ok && tp.IsArchive {
				archiveCount++
			}
		}
		if archiveCount*2 > len(c) {
			archiveIdx = append(archiveIdx, i)
		} else {
			normal = append(normal, c)
		}
	}
	if len(archiveIdx) <= 1 {
		return communities
	}
	var coalesced []string
	for _, i := range archiveIdx {
		coalesced = append(coalesced, communities[i]...)
	}
	sort.Strings(coalesced)
	return append(normal, coalesced)
}

func areaID(members []string) string {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return "area_" + hex.EncodeToString(sum[:])[:12]
}

func areaName(members []string, centrality map[string]float64) string {
	best := members[0]
	bestScore := -1.0
	for _, m := range members {
		if c := centrality[m]; c > bestScore {
			bestScore = c
			best = m
		}
	}
	parts := strings.SplitN(best, ".", 2)
	name := best
	if len(parts) == 2 {
		name = parts[1]
	}
	return strings.Title(strings.ReplaceAll(name, "_", " "))
}
