package card

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/classify"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/graph"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/profile"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/reflect"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/sample"
)

// BuildParams bounds the build pipeline.
type BuildParams struct {
	Profile       profile.Params
	Graph         graph.Params
	Version       string
	SampleWorkers int
}

// Fast assembles a Card directly from a RawSchema without sampling: columns
// get their reflected shape only (no role/pattern/range derivation beyond
// what structure alone implies), tables are classified from that unsampled
// shape and get no subject area yet. This backs the Lifecycle Coordinator's fast-start phase so the
// service can answer get_database_overview before the full enrichment pass
// completes.
func Fast(raw *reflect.RawSchema, params BuildParams) *schema.Card {
	tables := make(map[string]*schema.TableProfile, len(raw.Tables))
	var fks []schema.ForeignKeyEdge

	for _, t := range raw.Tables {
		tp := profile.Profile(t, nil, params.Profile)
		tables[t.Key] = &tp
		fks = append(fks, tp.ForeignKeys...)
	}

	classify.Run(tables, func(string) string { return "" })

	c := &schema.Card{
		Dialect:     raw.Dialect,
		Schemas:     raw.Schemas,
		Tables:      tables,
		ForeignKeys: fks,
		Partial:     true,
		Meta:        schema.BuildMeta{Version: params.Version},
	}
	c.ReflectionHash = ReflectionHash(tables, profileParamMap(params.Profile))
	return c
}

// Enrich builds the full Card: samples every table, profiles every column
// against its sample, builds the FK graph, computes centrality, partitions
// subject areas, and classifies every table's archetype. It supersedes a
// Fast-built card but is safe to call standalone, e.g. for a rebuild
// triggered by a manual refresh request.
func Enrich(ctx context.Context, raw *reflect.RawSchema, db *sql.DB, sampler *sample.Sampler, params BuildParams) (*schema.Card, error) {
	byKey := make(map[string]reflect.RawTable, len(raw.Tables))
	tableKeys := make([]string, 0, len(raw.Tables))
	for _, t := range raw.Tables {
		byKey[t.Key] = t
		tableKeys = append(tableKeys, t.Key)
	}

	var samples map[string]*sample.TableSample
	if sampler != nil && db != nil {
		s, err := sampler.SampleAll(ctx, db, tableKeys, func(key string) (string, string) {
			t := byKey[key]
			return t.Schema, t.Name
		})
		if err != nil {
			return nil, fmt.Errorf("sampling for enrichment: %w", err)
		}
		samples = s
	}

	tables := make(map[string]*schema.TableProfile, len(raw.Tables))
	for _, t := range raw.Tables {
		tp := profile.Profile(t, samples[t.Key], params.Profile)
		tables[t.Key] = &tp
	}

	gr := graph.Build(tables)
	centrality := gr.Centrality()
	for key, tp := range tables {
		tp.Centrality = centrality[key]
	}

	areas := gr.SubjectAreas(tables, centrality, params.Graph)
	areaOf := map[string]string{}
	for id, a := range areas {
		for _, tk := range a.Tables {
			areaOf[tk] = id
		}
	}
	for key, tp := range tables {
		tp.SubjectArea = areaOf[key]
	}

	classify.Run(tables, func(tableKey string) string {
		if id, ok := areaOf[tableKey]; ok {
			return areas[id].Name
		}
		return ""
	})

	var fks []schema.ForeignKeyEdge
	for _, tp := range tables {
		fks = append(fks, tp.ForeignKeys...)
	}

	c := &schema.Card{
		Dialect:      raw.Dialect,
		Schemas:      raw.Schemas,
		SubjectAreas: areas,
		Tables:       tables,
		ForeignKeys:  fks,
		Partial:      false,
		Meta:         schema.BuildMeta{Version: params.Version},
	}
	c.ReflectionHash = ReflectionHash(tables, profileParamMap(params.Profile))
	return c, nil
}

func profileParamMap(p profile.Params) map[string]string {
	return map[string]string{
		"value_constraint_threshold": fmt.Sprintf("%d", p.ValueConstraintThreshold),
	}
}
