package reflect

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

type postgresAdapter struct {
	db *sql.DB
}

func (a *postgresAdapter) Dialect() schema.Dialect { return schema.DialectPostgres }

func (a *postgresAdapter) Connect(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("opening postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging postgres: %w", err)
	}
	a.db = db
	return nil
}

func (a *postgresAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *postgresAdapter) DB() *sql.DB { return a.db }

func (a *postgresAdapter) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT LIKE 'pg_%' AND schema_name <> 'information_schema'
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

func (a *postgresAdapter) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
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

func (a *postgresAdapter) IntrospectTable(ctx context.Context, schemaName, tableName string) (RawTable, error) {
	t := RawTable{Schema: schemaName, Name: tableName, Key: schemaName + "." + tableName}

	colRows, err := a.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schemaName, tableName)
	if err != nil {
		return t, fmt.Errorf("listing columns: %w", err)
	}
	defer colRows.Close()

	pkSet := map[string]bool{}
	pkRows, err := a.db.QueryContext(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'PRIMARY KEY'`,
		schemaName, tableName)
	if err == nil {
		defer pkRows.Close()
		for pkRows.Next() {
			var c string
			if pkRows.Scan(&c) == nil {
				pkSet[c] = true
				t.PrimaryKey = append(t.PrimaryKey, c)
			}
		}
	}

	for colRows.Next() {
		var name, vendorType, nullable string
		if err := colRows.Scan(&name, &vendorType, &nullable); err != nil {
			return t, fmt.Errorf("scanning column: %w", err)
		}
		t.Columns = append(t.Columns, RawColumn{
			Name:       name,
			VendorType: vendorType,
			Nullable:   nullable == "YES",
			IsPK:       pkSet[name],
		})
	}
	if err := colRows.Err(); err != nil {
		return t, err
	}

	fkRows, err := a.db.QueryContext(ctx, `
		SELECT kcu.column_name, ccu.table_schema, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'FOREIGN KEY'`,
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
		SELECT reltuples::bigint FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2`, schemaName, tableName)
	if row.Scan(&estimate) == nil && estimate.Valid && estimate.Int64 > 0 {
		t.RowEstimate = estimate.Int64
	}

	return t, nil
}
