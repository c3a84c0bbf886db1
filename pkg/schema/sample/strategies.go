package sample

import (
	"context"
	"database/sql"
	"fmt"
)

func scanRows(rows *sql.Rows) ([]string, []map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return columns, out, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return columns, out, rows.Err()
}

func pgQuote(ident string) string      { return `"` + ident + `"` }
func genericQuote(ident string) string { return "`" + ident + "`" }

// tableSampleStrategy uses Postgres's native TABLESAMPLE SYSTEM operator,
// falling back to a plain LIMIT scan if the table is too small for the
// sampling clause to return anything (TABLESAMPLE is percentage-based).
type tableSampleStrategy struct {
	quote func(string) string
}

func (s tableSampleStrategy) Name() string { return "tablesample" }

func (s tableSampleStrategy) Sample(ctx context.Context, db *sql.DB, schemaName, tableName string, rowLimit int) (*TableSample, error) {
	q := fmt.Sprintf(`SELECT * FROM %s.%s TABLESAMPLE SYSTEM (10) LIMIT %d`,
		s.quote(schemaName), s.quote(tableName), rowLimit)

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fallbackLimitScan(ctx, db, schemaName, tableName, rowLimit, s.quote)
	}
	defer rows.Close()

	columns, data, err := scanRows(rows)
	if err != nil {
		// Return whatever rows were read before the scan failed (e.g. a
		// context deadline mid-stream) rather than discarding them.
		return &TableSample{Columns: columns, Rows: data, Sampled: "partial"}, nil
	}
	if len(data) == 0 {
		// Small table or unlucky sample percentage: fall back to a full scan.
		return fallbackLimitScan(ctx, db, schemaName, tableName, rowLimit, s.quote)
	}

	status := "full"
	if ctx.Err() != nil {
		status = "partial"
	}
	return &TableSample{Columns: columns, Rows: data, Sampled: status}, nil
}

func fallbackLimitScan(ctx context.Context, db *sql.DB, schemaName, tableName string, rowLimit int, quote func(string) string) (*TableSample, error) {
	q := fmt.Sprintf(`SELECT * FROM %s.%s LIMIT %d`, quote(schemaName), quote(tableName), rowLimit)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sampling %s.%s: %w", schemaName, tableName, err)
	}
	defer rows.Close()

	columns, data, err := scanRows(rows)
	if err != nil {
		return &TableSample{Columns: columns, Rows: data, Sampled: "partial"}, nil
	}
	status := "full"
	if ctx.Err() != nil {
		status = "partial"
	}
	return &TableSample{Columns: columns, Rows: data, Sampled: status}, nil
}

// limitScanStrategy is the dialect-agnostic deterministic limited scan used
// for dialects without a native sampling operator (mysql, sqlite).
type limitScanStrategy struct {
	quote func(string) string
}

func (s limitScanStrategy) Name() string { return "limit_scan" }

func (s limitScanStrategy) Sample(ctx context.Context, db *sql.DB, schemaName, tableName string, rowLimit int) (*TableSample, error) {
	return fallbackLimitScan(ctx, db, schemaName, tableName, rowLimit, s.quote)
}
