package execute

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
	"github.com/Mando-03/nl2sql-mcp/pkg/sqlast"
)

// ColumnDescriptor describes one returned column's shape.
type ColumnDescriptor struct {
	Name       string `json:"name"`
	VendorType string `json:"vendor_type"`
}

// Result is the Execute Result returned to a caller.
type Result struct {
	NormalizedSQL    string                   `json:"normalized_sql"`
	ValidationNotes  []sqlast.ValidationNote  `json:"validation_notes,omitempty"`
	Columns          []ColumnDescriptor       `json:"columns,omitempty"`
	Rows             []map[string]interface{} `json:"rows,omitempty"`
	Truncated        bool                     `json:"truncated"`
	Status           string                   `json:"status"` // "ok" | "error"
	Error            *StructuredError         `json:"error,omitempty"`
	NextAction       NextAction               `json:"next_action"`
}

// Budget bounds one execution.
type Budget struct {
	RowLimit     int
	MaxCellChars int
}

// Guardrail executes caller-supplied SQL against the live database, after
// enforcing SELECT-only, transpiling to the active dialect, and validating.
type Guardrail struct {
	db      *sql.DB
	dialect schema.Dialect
	ast     *sqlast.Service
	budget  Budget
}

// New constructs a Guardrail bound to one live connection and SQL-AST
// service.
func New(db *sql.DB, dialect schema.Dialect, ast *sqlast.Service, budget Budget) *Guardrail {
	if budget.RowLimit <= 0 {
		budget.RowLimit = 200
	}
	if budget.MaxCellChars <= 0 {
		budget.MaxCellChars = 2000
	}
	return &Guardrail{db: db, dialect: dialect, ast: ast, budget: budget}
}

// Execute runs the full guardrail pipeline against sqlText.
func (g *Guardrail) Execute(ctx context.Context, sqlText string) Result {
	normalized, sErr := enforceSelectOnly(sqlText)
	if sErr != nil {
		return errorResult(sqlText, sErr, NextActionRefinePlan)
	}

	transpiled, err := g.ast.Transpile(normalized, schema.DialectGeneric, g.dialect)
	if err != nil {
		transpiled = normalized // the default translator has no generic -> dialect rewrite; run the text as-is
	}

	validation := g.ast.Validate(transpiled, g.dialect)
	if !validation.Valid {
		return errorResult(sqlText, &StructuredError{
			Category: CategoryParse, Code: CodeParseError,
			Message: validation.Error, Recoverable: true,
		}, NextActionRefinePlan)
	}

	result, runErr := g.run(ctx, transpiled)
	if runErr != nil {
		fixes := g.ast.AssistError(transpiled, runErr.Error(), g.dialect)
		var hints []string
		for _, f := range fixes {
			if f.Suggestion != "" {
				hints = append(hints, f.Suggestion)
			} else {
				hints = append(hints, f.Message)
			}
		}
		category, code := classifyDriverError(runErr)
		return errorResult(sqlText, &StructuredError{
			Category: category, Code: code, Message: runErr.Error(), Hints: hints, Recoverable: true,
		}, NextActionRefinePlan)
	}

	result.NormalizedSQL = transpiled
	result.ValidationNotes = validation.Notes
	result.Status = "ok"
	result.NextAction = NextActionNone
	if result.Truncated {
		result.NextAction = NextActionPaginate
	}
	return result
}

func (g *Guardrail) run(ctx context.Context, sqlText string) (Result, error) {
	tx, err := g.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Result{}, fmt.Errorf("beginning read-only transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only; rollback is always safe after commit or error

	probeLimit := g.budget.RowLimit + 1
	bounded := boundWithLimit(sqlText, probeLimit)

	rows, err := tx.QueryContext(ctx, bounded)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return Result{}, err
	}
	columns := make([]ColumnDescriptor, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = ColumnDescriptor{Name: ct.Name(), VendorType: ct.DatabaseTypeName()}
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(colTypes))
		ptrs := make([]interface{}, len(colTypes))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		row := make(map[string]interface{}, len(colTypes))
		for i, ct := range colTypes {
			row[ct.Name()] = truncateCell(values[i], g.budget.MaxCellChars)
		}
		out = append(out, row)
		if len(out) >= probeLimit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	truncated := false
	if len(out) > g.budget.RowLimit {
		out = out[:g.budget.RowLimit]
		truncated = true
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("committing read-only transaction: %w", err)
	}

	return Result{Columns: columns, Rows: out, Truncated: truncated}, nil
}

// boundWithLimit wraps sqlText so the probe row beyond row_limit is
// fetched without the driver having to stream an unbounded result set.
func boundWithLimit(sqlText string, probeLimit int) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS guardrail_probe LIMIT %d", sqlText, probeLimit)
}

func truncateCell(v interface{}, maxChars int) interface{} {
	b, ok := v.([]byte)
	if ok {
		v = string(b)
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}

func classifyDriverError(err error) (Category, string) {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "context deadline exceeded"):
		return CategoryRuntime, CodeTimeout
	case strings.Contains(msg, "does not exist") || strings.Contains(msg, "unknown column") || strings.Contains(msg, "no such column"):
		return CategoryParse, CodeUnresolvedIdentifier
	case strings.Contains(msg, "type") && (strings.Contains(msg, "mismatch") || strings.Contains(msg, "cannot cast") || strings.Contains(msg, "invalid input syntax")):
		return CategoryRuntime, CodeTypeMismatch
	default:
		return CategoryRuntime, CodeDriverError
	}
}

func errorResult(original string, sErr *StructuredError, next NextAction) Result {
	return Result{
		NormalizedSQL: original,
		Status:        "error",
		Error:         sErr,
		NextAction:    next,
	}
}
