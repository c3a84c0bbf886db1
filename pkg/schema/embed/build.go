package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

// Semantic wraps an Encoder and Index as a single capability: callers ask
// whether embedding is available and, if so, get an index already
// populated from a Card. When the encoder is disabled, Build returns a nil
// *Semantic and callers fall back to lexical-only retrieval.
type Semantic struct {
	Encoder Encoder
	Index   Index
}

// Build constructs a populated Semantic from a Card, or returns (nil, nil)
// if encoder is disabled. Table text is "name + summary + column-name bag";
// column text is "table-name + column-name + role".
func Build(ctx context.Context, c *schema.Card, encoder Encoder) (*Semantic, error) {
	if encoder == nil || !encoder.Enabled() {
		return nil, nil
	}

	idx := NewBruteForceIndex()
	for key, tp := range c.Tables {
		tableText := tableSearchText(tp)
		vec, err := encoder.Encode(ctx, tableText)
		if err != nil {
			return nil, fmt.Errorf("embedding table %s: %w", key, err)
		}
		idx.Upsert(Vector{TableKey: key, Values: vec})

		for _, col := range tp.Columns {
			colText := fmt.Sprintf("%s %s %s", tp.Name, col.Name, col.Role)
			cvec, err := encoder.Encode(ctx, colText)
			if err != nil {
				return nil, fmt.Errorf("embedding column %s.%s: %w", key, col.Name, err)
			}
			idx.Upsert(Vector{TableKey: key, Column: col.Name, Values: cvec})
		}
	}

	return &Semantic{Encoder: encoder, Index: idx}, nil
}

func tableSearchText(tp *schema.TableProfile) string {
	var names []string
	for _, c := range tp.Columns {
		names = append(names, c.Name)
	}
	return strings.Join(append([]string{tp.Name, tp.Summary}, names...), " ")
}
