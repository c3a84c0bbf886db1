// Package embed implements the Embedder and Semantic Index: an optional
// text-to-vector capability and a brute-force cosine-similarity index over
// table and column vectors. Both degrade to "disabled" cleanly so retrieval
// can fall back to lexical scoring when no encoder is wired in.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"
	"strings"
)

// Encoder turns text into a fixed-width vector. Implementations may be
// disabled (no real embedding model available), in which case Enabled
// returns false and Encode must not be called.
type Encoder interface {
	Enabled() bool
	Dimensions() int
	Encode(ctx context.Context, text string) ([]float32, error)
}

// NoopEncoder is always disabled; it is the zero-config default when no
// embedding model is configured.
type NoopEncoder struct{}

func (NoopEncoder) Enabled() bool        { return false }
func (NoopEncoder) Dimensions() int      { return 0 }
func (NoopEncoder) Encode(context.Context, string) ([]float32, error) {
	return nil, nil
}

// HashingEncoder is a deterministic, dependency-free local fallback: it
// hashes each token into a fixed-width vector (a simplified feature-hashing
// scheme), giving every environment a usable, if weak, embedding signal
// without requiring a real model to be wired in.
type HashingEncoder struct {
	dims int
}

// NewHashingEncoder constructs a HashingEncoder with the given vector width.
func NewHashingEncoder(dims int) *HashingEncoder {
	if dims <= 0 {
		dims = 64
	}
	return &HashingEncoder{dims: dims}
}

func (h *HashingEncoder) Enabled() bool   { return true }
func (h *HashingEncoder) Dimensions() int { return h.dims }

func (h *HashingEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		sum := sha256.Sum256([]byte(tok))
		idx := binary.BigEndian.Uint64(sum[:8]) % uint64(h.dims)
		sign := float32(1)
		if sum[8]%2 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}
	normalize(vec)
	return vec, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}

// Vector is one embedded entity: a table (Column == "") or a column within
// a table.
type Vector struct {
	TableKey string
	Column   string // empty for a table-level vector
	Values   []float32
}

func (v Vector) key() string {
	if v.Column == "" {
		return v.TableKey
	}
	return v.TableKey + "." + v.Column
}

// Index is an approximate/exact nearest-neighbor lookup over embedded
// vectors. The default implementation is an in-process brute-force
// cosine-similarity scan, sufficient for the table/column counts a single
// database's schema card holds; a vector-database-backed implementation
// (e.g. pgvector) can satisfy the same interface for larger deployments.
type Index interface {
	Upsert(v Vector)
	Search(query []float32, topK int, columnOnly bool) []ScoredVector
	Len() int
}

// ScoredVector is one Index.Search result.
type ScoredVector struct {
	Vector
	Score float64
}

// BruteForceIndex is the default Index: no external service, bounded by
// the number of tables/columns in a schema card (a few thousand at most).
type BruteForceIndex struct {
	vectors map[string]Vector
}

// NewBruteForceIndex constructs an empty index.
func NewBruteForceIndex() *BruteForceIndex {
	return &BruteForceIndex{vectors: map[string]Vector{}}
}

func (idx *BruteForceIndex) Upsert(v Vector) {
	idx.vectors[v.key()] = v
}

func (idx *BruteForceIndex) Len() int { return len(idx.vectors) }

func (idx *BruteForceIndex) Search(query []float32, topK int, columnOnly bool) []ScoredVector {
	if len(query) == 0 {
		return nil
	}
	var out []ScoredVector
	for _, v := range idx.vectors {
		if columnOnly && v.Column == "" {
			continue
		}
		if !columnOnly && v.Column != "" {
			continue
		}
		out = append(out, ScoredVector{Vector: v, Score: cosine(query, v.Values)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].key() < out[j].key() // deterministic tie-break
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
