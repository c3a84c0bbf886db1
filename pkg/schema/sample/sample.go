// Package sample implements the Sampler: drawing a bounded, representative
// row sample per table within a time budget, using the dialect's native
// sample operator where available.
package sample

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

// TableSample is the bounded set of rows drawn for one table, plus whether
// the draw completed or was cut short by its deadline.
type TableSample struct {
	TableKey string
	Columns  []string
	Rows     []map[string]interface{}
	Sampled  string // "full" | "partial" | "none"
}

// Strategy draws a sample for a single table. One implementation exists per
// dialect sampling capability: native TABLESAMPLE for postgres and a plain
// LIMIT scan for every other dialect.
type Strategy interface {
	Name() string
	Sample(ctx context.Context, db *sql.DB, schemaName, tableName string, rowLimit int) (*TableSample, error)
}

// NewStrategy returns the sampling strategy appropriate for a dialect.
func NewStrategy(d schema.Dialect) Strategy {
	switch d {
	case schema.DialectPostgres:
		return tableSampleStrategy{quote: pgQuote}
	default:
		return limitScanStrategy{quote: genericQuote}
	}
}

// Sampler draws row samples across many tables concurrently, each bounded
// by its own per-table deadline derived from the overall sample timeout.
type Sampler struct {
	strategy Strategy
	workers  int
	rowLimit int
	timeout  time.Duration
}

// New constructs a Sampler for the given dialect and budget.
func New(d schema.Dialect, workers, rowLimit int, timeout time.Duration) *Sampler {
	if workers <= 0 {
		workers = 8
	}
	return &Sampler{strategy: NewStrategy(d), workers: workers, rowLimit: rowLimit, timeout: timeout}
}

// SampleAll draws a sample for every given table key, never retaining rows
// beyond what the caller does with the returned map — callers must derive
// statistics and discard the raw rows promptly.
func (s *Sampler) SampleAll(ctx context.Context, db *sql.DB, tableKeys []string, schemaOf func(string) (string, string)) (map[string]*TableSample, error) {
	out := make(map[string]*TableSample, len(tableKeys))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, key := range tableKeys {
		key := key
		g.Go(func() error {
			schemaName, tableName := schemaOf(key)
			tctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			ts, err := s.strategy.Sample(tctx, db, schemaName, tableName, s.rowLimit)
			if err != nil {
				ts = &TableSample{TableKey: key, Sampled: "none"}
			}
			ts.TableKey = key

			mu.Lock()
			out[key] = ts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sampling cancelled: %w", err)
	}
	return out, nil
}
