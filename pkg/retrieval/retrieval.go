// Package retrieval implements the Retrieval Engine and Graph Expander:
// ranking tables against a free-text query via lexical and/or embedding
// scoring, then expanding the seed set along foreign-key edges.
package retrieval

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/embed"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/graph"
)

// Strategy selects how a query is scored against tables.
type Strategy string

const (
	StrategyLexical         Strategy = "lexical"
	StrategyEmbeddingTable  Strategy = "embedding_table"
	StrategyEmbeddingColumn Strategy = "embedding_column"
	StrategyCombined        Strategy = "combined"
)

var tokenRe = regexp.MustCompile(`[^a-z0-9]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "for": true, "and": true,
	"or": true, "in": true, "on": true, "to": true, "by": true, "with": true,
	"is": true, "are": true, "show": true, "me": true, "get": true, "find": true,
}

var archiveCueTokens = map[string]bool{
	"archive": true, "archived": true, "history": true, "historical": true,
	"audit": true, "log": true, "logs": true, "backup": true,
}

func tokenize(text string) []string {
	raw := tokenRe.Split(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if t == "" || stopWords[t] {
			continue
		}
		out = append(out, t)
	}
	return out
}

func termFreq(tokens []string) map[string]float64 {
	out := map[string]float64{}
	for _, t := range tokens {
		out[t]++
	}
	return out
}

func cosineTF(a, b map[string]float64) float64 {
	var dot, magA, magB float64
	for k, v := range a {
		dot += v * b[k]
		magA += v * v
	}
	for _, v := range b {
		magB += v * v
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// ScoreComponents breaks a table's combined score into its contributing
// parts, for callers (find_tables debug tool, planner) that want to show
// their work.
type ScoreComponents struct {
	Lexical   float64 `json:"lexical"`
	Embedding float64 `json:"embedding"`
	Combined  float64 `json:"combined"`
}

// TableResult is one ranked table in a retrieval result set.
type TableResult struct {
	TableKey   string          `json:"table_key"`
	Score      float64         `json:"score"`
	Components ScoreComponents `json:"components"`
}

// ColumnResult is one ranked column in a find_columns result set.
type ColumnResult struct {
	TableKey string  `json:"table_key"`
	Column   string  `json:"column"`
	Score    float64 `json:"score"`
}

// Engine ranks tables and columns against a query text using the Schema
// Card's lexical content and, when available, the Semantic Index.
type Engine struct {
	card     *schema.Card
	semantic *embed.Semantic // nil when embeddings are disabled
	tableTF  map[string]map[string]float64
}

// New builds a retrieval engine over a card, pre-computing each table's
// term-frequency vector once so repeated queries don't re-tokenize.
func New(card *schema.Card, semantic *embed.Semantic) *Engine {
	tf := make(map[string]map[string]float64, len(card.Tables))
	for key, tp := range card.Tables {
		tf[key] = termFreq(tokenize(searchableText(tp)))
	}
	return &Engine{card: card, semantic: semantic, tableTF: tf}
}

func searchableText(tp *schema.TableProfile) string {
	var parts []string
	parts = append(parts, tp.Name, tp.Summary, tp.SubjectArea)
	for _, c := range tp.Columns {
		parts = append(parts, c.Name)
	}
	return strings.Join(parts, " ")
}

// FindTables ranks every table in the card against query using strategy,
// returning the top k results. alpha weights lexical vs. embedding scoring
// in the combined strategy (ignored otherwise).
func (e *Engine) FindTables(ctx context.Context, query string, k int, strategy Strategy, alpha float64) []TableResult {
	if strategy == "" {
		strategy = StrategyLexical
	}
	useEmbedding := strategy != StrategyLexical
	if useEmbedding && e.semantic == nil {
		strategy = StrategyLexical // silent fallback: embeddings unavailable
		useEmbedding = false
	}

	queryTokens := tokenize(query)
	queryTF := termFreq(queryTokens)
	hasArchiveCue := false
	for _, t := range queryTokens {
		if archiveCueTokens[t] {
			hasArchiveCue = true
			break
		}
	}

	var queryVec []float32
	if useEmbedding && e.semantic.Encoder.Enabled() {
		v, err := e.semantic.Encoder.Encode(ctx, query)
		if err == nil {
			queryVec = v
		}
	}

	lexical := make(map[string]float64, len(e.tableTF))
	embedding := make(map[string]float64, len(e.tableTF))
	for key, tf := range e.tableTF {
		lexical[key] = cosineTF(queryTF, tf)
	}
	if queryVec != nil {
		switch strategy {
		case StrategyEmbeddingColumn, StrategyCombined:
			embedding = e.columnMaxPool(queryVec)
		case StrategyEmbeddingTable:
			embedding = e.tableEmbeddingScores(queryVec)
		}
		if strategy == StrategyCombined && len(embedding) == 0 {
			embedding = e.tableEmbeddingScores(queryVec)
		}
	}

	lexical = minMaxNormalize(lexical)
	embedding = minMaxNormalize(embedding)

	out := make([]TableResult, 0, len(e.card.Tables))
	for key, tp := range e.card.Tables {
		lex := lexical[key]
		emb := embedding[key]

		var combined float64
		switch strategy {
		case StrategyLexical:
			combined = lex
		case StrategyEmbeddingTable, StrategyEmbeddingColumn:
			combined = emb
		case StrategyCombined:
			combined = alpha*lex + (1-alpha)*emb
		}

		if tp.IsArchive && !hasArchiveCue {
			combined *= 0.5
		}

		out = append(out, TableResult{
			TableKey: key,
			Score:    combined,
			Components: ScoreComponents{
				Lexical: lex, Embedding: emb, Combined: combined,
			},
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TableKey < out[j].TableKey
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// FindColumns ranks every column whose name contains keyword (case
// insensitive), optionally restricted to one table, by a simple substring
// affinity score. This backs the find_columns debug tool and is
// intentionally simpler than table retrieval: it is a name-lookup utility,
// not a semantic search.
func (e *Engine) FindColumns(keyword string, limit int, byTable string) []ColumnResult {
	kw := strings.ToLower(keyword)
	var out []ColumnResult
	for key, tp := range e.card.Tables {
		if byTable != "" && key != byTable {
			continue
		}
		for _, c := range tp.Columns {
			lower := strings.ToLower(c.Name)
			if !strings.Contains(lower, kw) {
				continue
			}
			score := 1.0
			if lower == kw {
				score = 2.0
			} else if strings.HasPrefix(lower, kw) {
				score = 1.5
			}
			out = append(out, ColumnResult{TableKey: key, Column: c.Name, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].TableKey != out[j].TableKey {
			return out[i].TableKey < out[j].TableKey
		}
		return out[i].Column < out[j].Column
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (e *Engine) columnMaxPool(queryVec []float32) map[string]float64 {
	out := map[string]float64{}
	results := e.semantic.Index.Search(queryVec, 0, true)
	for _, r := range results {
		if r.Score > out[r.TableKey] {
			out[r.TableKey] = r.Score
		}
	}
	return out
}

func (e *Engine) tableEmbeddingScores(queryVec []float32) map[string]float64 {
	out := map[string]float64{}
	results := e.semantic.Index.Search(queryVec, 0, false)
	for _, r := range results {
		out[r.TableKey] = r.Score
	}
	return out
}

func minMaxNormalize(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return scores
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range scores {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		out := make(map[string]float64, len(scores))
		for k := range scores {
			out[k] = 0
		}
		return out
	}
	out := make(map[string]float64, len(scores))
	for k, v := range scores {
		out[k] = (v - min) / (max - min)
	}
	return out
}

// graphOf is implemented by *graph.Graph; declared here so the Expander
// below can be unit-tested against a stub without pulling in gonum.
type graphOf interface {
	Neighbors(key string) []string
}

var _ graphOf = (*graph.Graph)(nil)
