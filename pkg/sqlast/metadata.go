package sqlast

import (
	"encoding/json"
	"fmt"
	"sort"
)

// extractMetadataFromJSON walks libpg_query's JSON parse-tree shape
// looking for "relname" keys (table references, under RangeVar nodes) and
// ColumnRef "fields" entries (column references, each a {"String":{"sval":
// "..."}} leaf). Walking the generic JSON shape rather than typed protobuf
// nodes keeps this resilient to the exact generated struct layout.
func extractMetadataFromJSON(raw string) (Metadata, error) {
	var tree any
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		return Metadata{}, fmt.Errorf("decoding parse tree json: %w", err)
	}

	tables := map[string]bool{}
	columns := map[string]bool{}
	walkNode(tree, tables, columns)

	meta := Metadata{}
	for t := range tables {
		meta.Tables = append(meta.Tables, t)
	}
	for c := range columns {
		meta.Columns = append(meta.Columns, c)
	}
	sort.Strings(meta.Tables)
	sort.Strings(meta.Columns)
	return meta, nil
}

func walkNode(node any, tables, columns map[string]bool) {
	switch v := node.(type) {
	case map[string]any:
		if relname, ok := v["relname"].(string); ok {
			tables[relname] = true
		}
		if fields, ok := v["fields"].([]any); ok {
			if col, ok := lastColumnName(fields); ok {
				columns[col] = true
			}
		}
		for _, child := range v {
			walkNode(child, tables, columns)
		}
	case []any:
		for _, child := range v {
			walkNode(child, tables, columns)
		}
	}
}

// lastColumnName extracts the final "String.sval" leaf of a ColumnRef's
// "fields" list — for "table.column" references the last field is the
// column name; for a bare column reference the single field is the name.
func lastColumnName(fields []any) (string, bool) {
	if len(fields) == 0 {
		return "", false
	}
	last := fields[len(fields)-1]
	m, ok := last.(map[string]any)
	if !ok {
		return "", false
	}
	strNode, ok := m["String"].(map[string]any)
	if !ok {
		return "", false
	}
	str, ok := strNode["sval"].(string)
	if !ok || str == "" {
		return "", false
	}
	return str, true
}
