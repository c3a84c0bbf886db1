package mcp

import (
	"context"
	"fmt"

	"github.com/Mando-03/nl2sql-mcp/pkg/execute"
	"github.com/Mando-03/nl2sql-mcp/pkg/lifecycle"
	"github.com/Mando-03/nl2sql-mcp/pkg/planner"
	"github.com/Mando-03/nl2sql-mcp/pkg/retrieval"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

// RegisterTools wires the seven tools defined for this service onto
// registry, bound to coordinator for schema/planning state and to
// execBudget for the execute_query guardrail. debugToolsEnabled gates
// find_tables/find_columns, which exist for evaluation and harness use
// rather than the LLM-facing product surface.
func RegisterTools(registry ToolRegistry, coord *lifecycle.Coordinator, execBudget execute.Budget, debugToolsEnabled bool) error {
	tools := []Tool{
		getInitStatusTool(coord),
		getDatabaseOverviewTool(coord),
		planQueryForIntentTool(coord),
		getTableInfoTool(coord),
		executeQueryTool(coord, execBudget),
	}
	if debugToolsEnabled {
		tools = append(tools, findTablesTool(coord), findColumnsTool(coord))
	}
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("registering tool %s: %w", t.Name, err)
		}
	}
	return nil
}

func notReadyError() error {
	return &execute.StructuredError{
		Category: execute.CategoryReadiness, Code: execute.CodeServiceNotReady,
		Message: "schema intelligence is not yet ready", Recoverable: true,
	}
}

func getInitStatusTool(coord *lifecycle.Coordinator) Tool {
	return Tool{
		Name:        "get_init_status",
		Description: "Reports the lifecycle coordinator's readiness phase and last build outcome.",
		Parameters:  ToolParameters{Type: "object"},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			s := coord.State()
			return map[string]interface{}{
				"phase":         s.Phase,
				"attempts":      s.Attempts,
				"started_at":    s.StartedAt,
				"completed_at":  s.CompletedAt,
				"error_message": s.ErrorMessage,
			}, nil
		},
	}
}

func getDatabaseOverviewTool(coord *lifecycle.Coordinator) Tool {
	return Tool{
		Name:        "get_database_overview",
		Description: "Summarizes the active Schema Card: dialect, schemas, table count, and subject areas.",
		Parameters: ToolParameters{
			Type: "object",
			Properties: map[string]Property{
				"include_subject_areas": {Type: "boolean", Description: "Include the subject-area summaries.", Default: true},
				"area_limit":            {Type: "integer", Description: "Maximum number of subject areas to return (0 = all).", Default: 0},
			},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			card, ok := coord.Card()
			if !ok {
				return nil, notReadyError()
			}
			includeAreas := boolParam(params, "include_subject_areas", true)
			limit := intParam(params, "area_limit", 0)

			result := map[string]interface{}{
				"dialect":     card.Dialect,
				"schemas":     card.Schemas,
				"table_count": card.TableCount(),
				"partial":     card.Partial,
			}
			if includeAreas {
				areas := make([]schema.SubjectArea, 0, len(card.SubjectAreas))
				for _, a := range card.SubjectAreas {
					areas = append(areas, a)
				}
				if limit > 0 && len(areas) > limit {
					areas = areas[:limit]
				}
				result["subject_areas"] = areas
			}
			return result, nil
		},
	}
}

func planQueryForIntentTool(coord *lifecycle.Coordinator) Tool {
	return Tool{
		Name:        "plan_query_for_intent",
		Description: "Builds a structured, dialect-agnostic query plan for a natural-language request.",
		Parameters: ToolParameters{
			Type: "object",
			Properties: map[string]Property{
				"request":      {Type: "string", Description: "The natural-language intent to plan for."},
				"detail_level": {Type: "string", Description: "brief | standard | full", Enum: []string{"brief", "standard", "full"}, Default: "standard"},
			},
			Required: []string{"request"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			if !coord.Ready() {
				return nil, notReadyError()
			}
			p, err := coord.Planner()
			if err != nil {
				return nil, err
			}
			intent, _ := params["request"].(string)
			req := planner.Request{Intent: intent}
			if budget, ok := params["budget"].(map[string]interface{}); ok {
				req.MaxTables = intParam(budget, "tables", 0)
				req.ColumnsPerTable = intParam(budget, "columns_per_table", 0)
			}
			return p.Plan(ctx, req), nil
		},
	}
}

func getTableInfoTool(coord *lifecycle.Coordinator) Tool {
	return Tool{
		Name:        "get_table_info",
		Description: "Returns detailed profile information for one table: columns, keys, foreign keys, and representative values.",
		Parameters: ToolParameters{
			Type: "object",
			Properties: map[string]Property{
				"table_key":          {Type: "string", Description: "Schema-qualified table key, e.g. public.orders."},
				"include_samples":    {Type: "boolean", Description: "Include representative enumerated values per column.", Default: true},
				"column_role_filter": {Type: "string", Description: "Restrict returned columns to one role.", Enum: []string{"key", "id", "date", "metric", "category", "text"}},
				"max_sample_values":  {Type: "integer", Description: "Cap on representative values returned per column (0 = no cap).", Default: 10},
				"relationship_limit": {Type: "integer", Description: "Cap on foreign keys returned (0 = no cap).", Default: 0},
			},
			Required: []string{"table_key"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			card, ok := coord.Card()
			if !ok {
				return nil, notReadyError()
			}
			key, _ := params["table_key"].(string)
			tp, found := card.Tables[key]
			if !found {
				return nil, &execute.StructuredError{
					Category: execute.CategoryInput, Code: execute.CodeInvalidTableKey,
					Message: fmt.Sprintf("no table with key %q in the active schema card", key), Recoverable: true,
				}
			}
			includeSamples := boolParam(params, "include_samples", true)
			maxSampleValues := intParam(params, "max_sample_values", 10)
			relationshipLimit := intParam(params, "relationship_limit", 0)
			roleFilter, _ := params["column_role_filter"].(string)

			columns := filterTableColumns(tp.Columns, roleFilter, includeSamples, maxSampleValues)

			foreignKeys := tp.ForeignKeys
			if relationshipLimit > 0 && len(foreignKeys) > relationshipLimit {
				foreignKeys = foreignKeys[:relationshipLimit]
			}

			return map[string]interface{}{
				"table_key":          tp.TableKey,
				"archetype":          tp.Archetype,
				"summary":            tp.Summary,
				"subject_area":       tp.SubjectArea,
				"primary_key":        tp.PrimaryKey,
				"foreign_keys":       foreignKeys,
				"columns":            columns,
				"row_count_estimate": tp.RowCountEstimate,
				"is_archive":         tp.IsArchive,
				"common_filters":     tableFilterCandidates(tp),
			}, nil
		},
	}
}

// filterTableColumns applies column_role_filter, then either strips or caps
// each retained column's EnumeratedValues per include_samples/max_sample_values.
func filterTableColumns(columns []schema.ColumnProfile, roleFilter string, includeSamples bool, maxSampleValues int) []schema.ColumnProfile {
	out := make([]schema.ColumnProfile, 0, len(columns))
	for _, c := range columns {
		if roleFilter != "" && string(c.Role) != roleFilter {
			continue
		}
		if !includeSamples {
			c.EnumeratedValues = nil
		} else if maxSampleValues > 0 && len(c.EnumeratedValues) > maxSampleValues {
			c.EnumeratedValues = c.EnumeratedValues[:maxSampleValues]
		}
		out = append(out, c)
	}
	return out
}

// tableFilterCandidates surfaces columns with enumerated values or numeric/date
// ranges as candidate predicate targets for a single table, the same rule
// planner.filterCandidates applies across a whole plan's chosen tables.
func tableFilterCandidates(tp *schema.TableProfile) []map[string]interface{} {
	var out []map[string]interface{}
	for _, c := range tp.Columns {
		switch {
		case len(c.EnumeratedValues) > 0:
			out = append(out, map[string]interface{}{
				"column": c.Name, "suggested_shape": "equals_one_of", "enumerated_values": c.EnumeratedValues,
			})
		case c.Range != nil:
			out = append(out, map[string]interface{}{
				"column": c.Name, "suggested_shape": "between", "range": c.Range,
			})
		}
	}
	return out
}

func findTablesTool(coord *lifecycle.Coordinator) Tool {
	return Tool{
		Name:        "find_tables",
		Description: "Debug tool: ranks tables against a free-text query, exposing per-component scores.",
		Parameters: ToolParameters{
			Type: "object",
			Properties: map[string]Property{
				"query":    {Type: "string"},
				"limit":    {Type: "integer", Default: 10},
				"approach": {Type: "string", Enum: []string{"lexical", "embedding_table", "embedding_column", "combined"}, Default: "combined"},
				"alpha":    {Type: "number", Default: 0.5},
			},
			Required: []string{"query"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			if !coord.Ready() {
				return nil, notReadyError()
			}
			eng, err := coord.Retrieval()
			if err != nil {
				return nil, err
			}
			query, _ := params["query"].(string)
			limit := intParam(params, "limit", 10)
			strategy := retrieval.Strategy(stringParam(params, "approach", string(retrieval.StrategyCombined)))
			alpha := floatParam(params, "alpha", 0.5)
			return eng.FindTables(ctx, query, limit, strategy, alpha), nil
		},
	}
}

func findColumnsTool(coord *lifecycle.Coordinator) Tool {
	return Tool{
		Name:        "find_columns",
		Description: "Debug tool: ranks columns by keyword match, optionally restricted to one table.",
		Parameters: ToolParameters{
			Type: "object",
			Properties: map[string]Property{
				"keyword":  {Type: "string"},
				"limit":    {Type: "integer", Default: 10},
				"by_table": {Type: "string"},
			},
			Required: []string{"keyword"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			if !coord.Ready() {
				return nil, notReadyError()
			}
			eng, err := coord.Retrieval()
			if err != nil {
				return nil, err
			}
			keyword, _ := params["keyword"].(string)
			limit := intParam(params, "limit", 10)
			byTable := stringParam(params, "by_table", "")
			return eng.FindColumns(keyword, limit, byTable), nil
		},
	}
}

func executeQueryTool(coord *lifecycle.Coordinator, budget execute.Budget) Tool {
	return Tool{
		Name:        "execute_query",
		Description: "Executes a caller-supplied SQL statement through the SELECT-only guardrail and returns bounded rows.",
		Parameters: ToolParameters{
			Type:       "object",
			Properties: map[string]Property{"sql": {Type: "string"}},
			Required:   []string{"sql"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			if !coord.Ready() {
				return nil, notReadyError()
			}
			card, _ := coord.Card()
			g := execute.New(coord.DB(), card.Dialect, coord.SQLAST(), budget)
			sqlText, _ := params["sql"].(string)
			return g.Execute(ctx, sqlText), nil
		},
	}
}

func boolParam(params map[string]interface{}, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func intParam(params map[string]interface{}, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func floatParam(params map[string]interface{}, key string, def float64) float64 {
	if v, ok := params[key].(float64); ok {
		return v
	}
	return def
}

func stringParam(params map[string]interface{}, key string, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}
