package execute

import (
	"encoding/json"
	"fmt"
	"strings"

	pgquery "github.com/pganalyze/pg_query_go/v6"
)

// enforceSelectOnly strips trailing semicolons and verifies that
// sqlText is exactly one SELECT statement (a CTE-wrapped SELECT is
// permitted; any DDL, DML, or procedural statement, or more than one
// top-level statement, is rejected).
func enforceSelectOnly(sqlText string) (normalized string, sErr *StructuredError) {
	normalized = strings.TrimRight(strings.TrimSpace(sqlText), ";")
	normalized = strings.TrimSpace(normalized)

	raw, err := pgquery.ParseToJSON(normalized)
	if err != nil {
		return "", &StructuredError{
			Category: CategoryParse, Code: CodeParseError,
			Message: fmt.Sprintf("failed to parse statement: %v", err), Recoverable: true,
		}
	}

	var tree struct {
		Stmts []struct {
			Stmt map[string]json.RawMessage `json:"stmt"`
		} `json:"stmts"`
	}
	if jsonErr := json.Unmarshal([]byte(raw), &tree); jsonErr != nil {
		return "", &StructuredError{
			Category: CategoryParse, Code: CodeParseError,
			Message: fmt.Sprintf("failed to inspect parse tree: %v", jsonErr), Recoverable: true,
		}
	}

	if len(tree.Stmts) != 1 {
		return "", &StructuredError{
			Category: CategorySafety, Code: CodeMultiStatement,
			Message: "input contains more than one statement", Recoverable: false,
		}
	}

	root := tree.Stmts[0].Stmt
	if _, ok := root["SelectStmt"]; !ok {
		return "", &StructuredError{
			Category: CategorySafety, Code: CodeNonSelectStatement,
			Message: "only SELECT statements may be executed", Recoverable: false,
		}
	}

	return normalized, nil
}
