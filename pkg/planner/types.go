// Package planner implements the Query Planner: assembling a structured,
// dialect-agnostic plan for a natural-language intent from the Retrieval
// Engine and Graph Expander's outputs.
package planner

import "github.com/Mando-03/nl2sql-mcp/pkg/schema"

// Clarification is a single ambiguity the planner could not resolve on its
// own, surfaced to the caller instead of guessed at.
type Clarification struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Clarification codes.
const (
	ClarifyAmbiguousMainTable  = "AMBIGUOUS_MAIN_TABLE"
	ClarifyMissingDate         = "MISSING_DATE_COLUMN"
	ClarifyMissingMetric       = "MISSING_METRIC_COLUMN"
	ClarifyMultipleDateCols    = "MULTIPLE_DATE_CANDIDATES"
	ClarifyUnjoinableSubset    = "UNJOINABLE_SUBSET"
)

// JoinEdge is one edge of the derived join plan.
type JoinEdge struct {
	LeftTable   string `json:"left_table"`
	LeftColumn  string `json:"left_column"`
	RightTable  string `json:"right_table"`
	RightColumn string `json:"right_column"`
}

// RankedTable is one table considered for the plan, with its retrieval and
// expansion score components preserved for the caller to inspect.
type RankedTable struct {
	TableKey   string                       `json:"table_key"`
	Score      float64                      `json:"score"`
	Archetype  schema.Archetype             `json:"archetype"`
	IsSeed     bool                         `json:"is_seed"`
}

// FilterCandidate is a column suggested as a WHERE predicate target.
type FilterCandidate struct {
	TableKey        string   `json:"table_key"`
	Column          string   `json:"column"`
	SuggestedShape  string   `json:"suggested_shape"` // "equals_one_of" | "between"
	EnumeratedValues []string `json:"enumerated_values,omitempty"`
	Range           *schema.ValueRange `json:"range,omitempty"`
}

// SelectedColumn is one column chosen for the draft SQL's select list.
type SelectedColumn struct {
	TableKey string     `json:"table_key"`
	Column   string     `json:"column"`
	Role     schema.Role `json:"role"`
}

// Plan is the Query Planner's output: a structured, fully-resolved plan a
// caller can review, refine via clarifications, or execute as draft_sql.
type Plan struct {
	PlanID             string            `json:"plan_id"`
	Intent             string            `json:"intent"`
	MainTable          string            `json:"main_table"`
	Tables             []RankedTable     `json:"tables"`
	JoinPlan           []JoinEdge        `json:"join_plan"`
	KeyColumns         []string          `json:"key_columns"`
	GroupByCandidates  []string          `json:"group_by_candidates"`
	FilterCandidates   []FilterCandidate `json:"filter_candidates"`
	SelectedColumns    []SelectedColumn  `json:"selected_columns"`
	Clarifications     []Clarification   `json:"clarifications"`
	Confidence         float64           `json:"confidence"`
	DraftSQL           string            `json:"draft_sql,omitempty"`
}

// Budget bounds plan construction.
type Budget struct {
	MaxTables        int
	ColumnsPerTable  int
}
