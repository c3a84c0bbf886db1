package reflect

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

// sqliteAdapter has no schema concept; it reports a single synthetic
// schema ("main") so the rest of the pipeline's schema-qualified table-key
// convention still applies.
type sqliteAdapter struct {
	db *sql.DB
}

const sqliteSchema = "main"

func (a *sqliteAdapter) Dialect() schema.Dialect { return schema.DialectSQLite }

func (a *sqliteAdapter) Connect(ctx context.Context, dsn string) error {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("opening sqlite connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging sqlite: %w", err)
	}
	a.db = db
	return nil
}

func (a *sqliteAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *sqliteAdapter) DB() *sql.DB { return a.db }

func (a *sqliteAdapter) ListSchemas(ctx context.Context) ([]string, error) {
	return []string{sqliteSchema}, nil
}

func (a *sqliteAdapter) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
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

func (a *sqliteAdapter) IntrospectTable(ctx context.Context, schemaName, tableName string) (RawTable, error) {
	t := RawTable{Schema: schemaName, Name: tableName, Key: schemaName + "." + tableName}

	colRows, err := a.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, tableName))
	if err != nil {
		return t, fmt.Errorf("listing columns: %w", err)
	}
	defer colRows.Close()

	for colRows.Next() {
		var cid int
		var name, vendorType string
		var notNull, pk int
		var dflt sql.NullString
		if err := colRows.Scan(&cid, &name, &vendorType, &notNull, &dflt, &pk); err != nil {
			return t, fmt.Errorf("scanning column: %w", err)
		}
		isPK := pk > 0
		if isPK {
			t.PrimaryKey = append(t.PrimaryKey, name)
		}
		t.Columns = append(t.Columns, RawColumn{
			Name:       name,
			VendorType: vendorType,
			Nullable:   notNull == 0,
			IsPK:       isPK,
		})
	}
	if err := colRows.Err(); err != nil {
		return t, err
	}

	fkRows, err := a.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%q)`, tableName))
	if err == nil {
		defer fkRows.Close()
		for fkRows.Next() {
			var id, seq int
			var refTable, from, to, onUpdate, onDelete, match string
			if fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match) == nil {
				t.ForeignKeys = append(t.ForeignKeys, RawForeignKey{
					LocalColumn:  from,
					RemoteTable:  sqliteSchema + "." + refTable,
					RemoteColumn: to,
				})
			}
		}
	}

	var estimate sql.NullInt64
	row := a.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, tableName))
	if row.Scan(&estimate) == nil && estimate.Valid {
		t.RowEstimate = estimate.Int64
	}

	return t, nil
}
