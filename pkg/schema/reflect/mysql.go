package reflect

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

type mysqlAdapter struct {
	db *sql.DB
}

func (a *mysqlAdapter) Dialect() schema.Dialect { return schema.DialectMySQL }

func (a *mysqlAdapter) Connect(ctx context.Context, dsn string) error {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("opening mysql connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging mysql: %w", err)
	}
	a.db = db
	return nil
}

func (a *mysqlAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *mysqlAdapter) DB() *sql.DB { return a.db }

func (a *mysqlAdapter) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema', 'mysql', 'performance_schema', 'sys')
		ORDER BY schema_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (a *mysqlAdapter) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name`, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (a *mysqlAdapter) IntrospectTable(ctx context.Context, schemaName, tableName string) (RawTable, error) {
	t := RawTable{Schema: schemaName, Name: tableName, Key: schemaName + "." + tableName}

	colRows, err := a.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, column_key
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, schemaName, tableName)
	if err != nil {
		return t, fmt.Errorf("listing columns: %w", err)
	}
	defer colRows.Close()

	for colRows.Next() {
		var name, vendorType, nullable, columnKey string
		if err := colRows.Scan(&name, &vendorType, &nullable, &columnKey); err != nil {
			return t, fmt.Errorf("scanning column: %w", err)
		}
		isPK := columnKey == "PRI"
		if isPK {
			t.PrimaryKey = append(t.PrimaryKey, name)
		}
		t.Columns = append(t.Columns, RawColumn{
			Name:       name,
			VendorType: vendorType,
			Nullable:   nullable == "YES",
			IsPK:       isPK,
		})
	}
	if err := colRows.Err(); err != nil {
		return t, err
	}

	fkRows, err := a.db.QueryContext(ctx, `
		SELECT column_name, referenced_table_schema, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND table_name = ? AND referenced_table_name IS NOT NULL`,
		schemaName, tableName)
	if err == nil {
		defer fkRows.Close()
		for fkRows.Next() {
			var localCol, remoteSchema, remoteTable, remoteCol string
			if fkRows.Scan(&localCol, &remoteSchema, &remoteTable, &remoteCol) == nil {
				t.ForeignKeys = append(t.ForeignKeys, RawForeignKey{
					LocalColumn:  localCol,
					RemoteTable:  remoteSchema + "." + remoteTable,
					RemoteColumn: remoteCol,
				})
			}
		}
	}

	var estimate sql.NullInt64
	row := a.db.QueryRowContext(ctx, `
		SELECT table_rows FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?`, schemaName, tableName)
	if row.Scan(&estimate) == nil && estimate.Valid {
		t.RowEstimate = estimate.Int64
	}

	return t, nil
}
