// Package reflect implements the Reflection Adapter: enumerating schemas,
// tables, columns, keys, and foreign keys through a dialect-specific
// database/sql connection behind a single shared interface.
package reflect

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

// RawColumn is a column as reported by the driver, before profiling.
type RawColumn struct {
	Name       string
	VendorType string
	Nullable   bool
	IsPK       bool
}

// RawForeignKey is a foreign key as reported by the driver.
type RawForeignKey struct {
	LocalColumn  string
	RemoteTable  string
	RemoteColumn string
}

// RawTable is a table as reported by the driver, before profiling.
type RawTable struct {
	Schema      string
	Name        string
	Key         string // "<schema>.<name>"
	Columns     []RawColumn
	PrimaryKey  []string
	ForeignKeys []RawForeignKey
	RowEstimate int64
	Warning     string // set when reflection of this table partially failed
}

// RawSchema is the Reflection Adapter's output: the structural skeleton of
// the database before any sampling or profiling has happened.
type RawSchema struct {
	Dialect schema.Dialect
	Schemas []string
	Tables  []RawTable
}

// ReflectionError is returned only when zero tables were reflectable.
type ReflectionError struct {
	Reason string
}

func (e *ReflectionError) Error() string {
	return fmt.Sprintf("reflection failed: %s", e.Reason)
}

// Options bounds and filters a reflect pass.
type Options struct {
	IncludeSchemas []string
	ExcludeSchemas []string
	MaxTables      int
	Workers        int
}

// systemSchemas lists vendor schemas dropped from every dialect's reflection
// pass unless explicitly included.
var systemSchemas = map[string]bool{
	"information_schema": true,
	"pg_catalog":         true,
	"sys":                true,
	"mysql":              true,
	"performance_schema": true,
	"sqlite_master":      true,
}

// Adapter is the dialect-specific introspection backend. One implementation
// exists per supported dialect (postgres, mysql, sqlite); each is a thin
// wrapper over database/sql plus dialect-specific catalog queries.
type Adapter interface {
	Dialect() schema.Dialect
	Connect(ctx context.Context, dsn string) error
	Close() error
	DB() *sql.DB

	// ListSchemas returns user schemas, excluding vendor system schemas.
	ListSchemas(ctx context.Context) ([]string, error)
	// ListTables returns the bare table names within a schema.
	ListTables(ctx context.Context, schemaName string) ([]string, error)
	// IntrospectTable fetches columns, primary key, foreign keys, and a row
	// estimate for a single table. Returning an error here causes the
	// caller to record a partial-reflection warning rather than fail.
	IntrospectTable(ctx context.Context, schemaName, tableName string) (RawTable, error)
}

// NewAdapter constructs the adapter for the given dialect.
func NewAdapter(d schema.Dialect) (Adapter, error) {
	switch d {
	case schema.DialectPostgres:
		return &postgresAdapter{}, nil
	case schema.DialectMySQL:
		return &mysqlAdapter{}, nil
	case schema.DialectSQLite:
		return &sqliteAdapter{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect for reflection: %s", d)
	}
}

// Reflect runs a bounded, partially-fault-tolerant reflection pass: schemas
// and tables are enumerated sequentially, but per-table introspection fans
// out across a bounded worker pool: a broken table is recorded as a warning
// rather than failing the pass, and other tables proceed while a slow one
// runs, though the pass still waits for every table to finish.
func Reflect(ctx context.Context, a Adapter, opts Options) (*RawSchema, error) {
	schemas, err := a.ListSchemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	schemas = filterSchemas(schemas, opts.IncludeSchemas, opts.ExcludeSchemas)

	type tableRef struct{ schemaName, tableName string }
	var refs []tableRef
	for _, s := range schemas {
		names, err := a.ListTables(ctx, s)
		if err != nil {
			continue // a whole schema failing to list is a partial-reflection case, not fatal
		}
		for _, n := range names {
			refs = append(refs, tableRef{s, n})
			if opts.MaxTables > 0 && len(refs) >= opts.MaxTables {
				break
			}
		}
		if opts.MaxTables > 0 && len(refs) >= opts.MaxTables {
			break
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}

	tables := make([]RawTable, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			t, err := a.IntrospectTable(gctx, ref.schemaName, ref.tableName)
			if err != nil {
				tables[i] = RawTable{
					Schema:  ref.schemaName,
					Name:    ref.tableName,
					Key:     ref.schemaName + "." + ref.tableName,
					Warning: fmt.Sprintf("introspection failed: %v", err),
				}
				return nil // recorded as a warning, not a fatal error
			}
			tables[i] = t
			return nil
		})
	}
	// The goroutines above never return an error, so Wait returns nil here;
	// a cancelled ctx shows up as per-table introspection warnings instead.
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reflection cancelled: %w", err)
	}

	reflectable := 0
	for _, t := range tables {
		if t.Warning == "" {
			reflectable++
		}
	}
	if reflectable == 0 && len(tables) > 0 {
		return nil, &ReflectionError{Reason: "zero tables were reflectable"}
	}
	if len(tables) == 0 {
		return &RawSchema{Dialect: a.Dialect(), Schemas: schemas, Tables: nil}, nil
	}

	return &RawSchema{Dialect: a.Dialect(), Schemas: schemas, Tables: tables}, nil
}

func filterSchemas(all, include, exclude []string) []string {
	excludeSet := map[string]bool{}
	for _, e := range exclude {
		excludeSet[e] = true
	}
	includeSet := map[string]bool{}
	for _, i := range include {
		includeSet[i] = true
	}

	var out []string
	for _, s := range all {
		if systemSchemas[s] {
			continue
		}
		if len(includeSet) > 0 && !includeSet[s] {
			continue
		}
		if excludeSet[s] {
			continue
		}
		out = append(out, s)
	}
	return out
}
