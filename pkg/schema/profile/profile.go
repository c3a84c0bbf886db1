// Package profile implements the Profiler: deriving per-column role,
// semantic tags, null-rate, distinct-ratio, surface patterns, and value
// constraints from a bounded row sample.
package profile

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/reflect"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/sample"
)

// Params bounds the profiler's behavior; mirrors the budget fields that
// matter to profiling specifically.
type Params struct {
	ValueConstraintThreshold int
}

var (
	emailRe   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	urlRe     = regexp.MustCompile(`^https?://[^\s]+$`)
	phoneRe   = regexp.MustCompile(`^\+?[0-9()\-.\s]{7,}$`)
	percentRe = regexp.MustCompile(`^-?\d+(\.\d+)?\s?%$`)

	idSuffixRe = regexp.MustCompile(`(?i)(^id$|_id$|guid$|uuid$)`)
)

// gazetteer is a small, deterministic word-list used for semantic tagging.
// It is intentionally tiny: the profiler's job is to surface an obvious
// hint, not to run real NER.
var gazetteer = map[string]schema.SemanticTag{
	"smith": schema.TagPerson, "johnson": schema.TagPerson, "garcia": schema.TagPerson,
	"inc": schema.TagOrganization, "llc": schema.TagOrganization, "corp": schema.TagOrganization,
	"ltd": schema.TagOrganization, "group": schema.TagOrganization,
	"usa": schema.TagLocation, "london": schema.TagLocation, "york": schema.TagLocation,
	"california": schema.TagLocation, "texas": schema.TagLocation,
}

var temporalTypes = []string{"date", "time", "timestamp", "datetime", "timestamptz"}
var numericTypes = []string{"int", "serial", "numeric", "decimal", "float", "double", "real", "money", "bigint", "smallint"}
var textTypes = []string{"char", "text", "varchar", "clob", "string"}
var measureHints = []string{"amount", "total", "price", "cost", "qty", "quantity", "revenue", "balance", "count", "sum", "rate", "score"}

// Profile derives a ColumnProfile for every column of a table from its raw
// reflected shape plus its drawn sample, following the ordered role rules.
func Profile(t reflect.RawTable, s *sample.TableSample, params Params) schema.TableProfile {
	tp := schema.TableProfile{
		TableKey:       t.Key,
		Schema:         t.Schema,
		Name:           t.Name,
		PrimaryKey:     append([]string(nil), t.PrimaryKey...),
		RowCountEstimate: t.RowEstimate,
		ReflectWarning: t.Warning,
	}

	pkSet := toSet(t.PrimaryKey)
	fkByCol := map[string]reflect.RawForeignKey{}
	for _, fk := range t.ForeignKeys {
		fkByCol[fk.LocalColumn] = fk
		tp.ForeignKeys = append(tp.ForeignKeys, schema.ForeignKeyEdge{
			LocalColumn:  fk.LocalColumn,
			RemoteTable:  fk.RemoteTable,
			RemoteColumn: fk.RemoteColumn,
		})
	}

	sampleSize := 0
	var sampleRows []map[string]interface{}
	if s != nil {
		sampleRows = s.Rows
		sampleSize = len(sampleRows)
	}

	threshold := params.ValueConstraintThreshold
	if threshold <= 0 {
		threshold = 50
	}

	for _, c := range t.Columns {
		cp := schema.ColumnProfile{
			TableKey:   t.Key,
			Name:       c.Name,
			VendorType: c.VendorType,
			Nullable:   c.Nullable,
			IsPK:       pkSet[c.Name],
		}
		if fk, ok := fkByCol[c.Name]; ok {
			cp.IsFK = true
			cp.FKTable = fk.RemoteTable
			cp.FKColumn = fk.RemoteColumn
		}

		values, nullCount, distinctCount := columnValues(sampleRows, c.Name)
		if sampleSize > 0 {
			cp.NullRate = float64(nullCount) / float64(sampleSize)
			cp.DistinctRatio = float64(distinctCount) / float64(sampleSize)
		}
		cp.Sampled = "none"
		if s != nil {
			cp.Sampled = s.Sampled
		}

		cp.Role = inferRole(c, cp, distinctCount, sampleSize, params)

		strVals := stringValues(values)
		cp.Patterns = detectPatterns(strVals)
		cp.SemanticTags = detectSemanticTags(strVals)

		if cp.Role == schema.RoleCategory && distinctCount > 0 && distinctCount <= threshold {
			cp.EnumeratedValues = distinctStrings(strVals, threshold)
		}
		if rng, ok := valueRange(values); ok {
			cp.Range = &rng
		}

		tp.Columns = append(tp.Columns, cp)
		if cp.Role == schema.RoleMetric {
			tp.MetricColumnCount++
		}
		if cp.Role == schema.RoleDate {
			tp.DateColumnCount++
		}
	}

	tp.IsArchive = isArchiveName(t.Name)
	tp.IsAuditLike = tp.IsArchive

	return tp
}

// inferRole assigns a column role following the ordered rules. The category
// rule is the literal spec formula distinct_ratio <= threshold/sample_size,
// which (since distinct_ratio = distinctCount/sampleSize) reduces to the
// same absolute distinctCount<=threshold comparison the enumeration gate
// uses below, keeping role assignment and enumeration in lockstep.
func inferRole(c reflect.RawColumn, cp schema.ColumnProfile, distinctCount, sampleSize int, params Params) schema.Role {
	if cp.IsPK {
		return schema.RoleKey
	}
	if cp.IsFK || idSuffixRe.MatchString(c.Name) {
		return schema.RoleID
	}
	if typeMatches(c.VendorType, temporalTypes) {
		return schema.RoleDate
	}
	if typeMatches(c.VendorType, numericTypes) && cp.DistinctRatio > 0.2 && nameSuggestsMeasure(c.Name) {
		return schema.RoleMetric
	}
	threshold := params.ValueConstraintThreshold
	if threshold <= 0 {
		threshold = 50
	}
	if sampleSize > 0 && distinctCount > 0 && distinctCount <= threshold {
		return schema.RoleCategory
	}
	if typeMatches(c.VendorType, textTypes) {
		return schema.RoleText
	}
	return schema.RoleCategory
}

func typeMatches(vendorType string, candidates []string) bool {
	lower := strings.ToLower(vendorType)
	for _, c := range candidates {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

func nameSuggestsMeasure(name string) bool {
	lower := strings.ToLower(name)
	for _, h := range measureHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

func isArchiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, tok := range []string{"archive", "history", "hist", "audit", "log", "backup"} {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}

func columnValues(rows []map[string]interface{}, col string) (values []interface{}, nullCount, distinctCount int) {
	seen := map[string]bool{}
	for _, row := range rows {
		v, ok := row[col]
		if !ok || v == nil {
			nullCount++
			continue
		}
		values = append(values, v)
		key := fmt.Sprintf("%v", v)
		if !seen[key] {
			seen[key] = true
			distinctCount++
		}
	}
	return values, nullCount, distinctCount
}

func stringValues(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func detectPatterns(values []string) []schema.SurfacePattern {
	found := map[schema.SurfacePattern]bool{}
	for _, v := range values {
		switch {
		case emailRe.MatchString(v):
			found[schema.PatternEmail] = true
		case urlRe.MatchString(v):
			found[schema.PatternURL] = true
		case percentRe.MatchString(v):
			found[schema.PatternPercent] = true
		case phoneRe.MatchString(v) && strings.ContainsAny(v, "0123456789"):
			found[schema.PatternPhone] = true
		}
	}
	var out []schema.SurfacePattern
	for p := range found {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func detectSemanticTags(values []string) []schema.SemanticTag {
	found := map[schema.SemanticTag]bool{}
	for _, v := range values {
		for _, word := range strings.Fields(strings.ToLower(v)) {
			word = strings.Trim(word, ".,;:")
			if tag, ok := gazetteer[word]; ok {
				found[tag] = true
			}
		}
	}
	var out []schema.SemanticTag
	for t := range found {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func distinctStrings(values []string, cap int) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
			if len(out) >= cap {
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func valueRange(values []interface{}) (schema.ValueRange, bool) {
	var nums []float64
	var strs []string
	for _, v := range values {
		switch t := v.(type) {
		case float64:
			nums = append(nums, t)
		case int64:
			nums = append(nums, float64(t))
		case string:
			if f, err := strconv.ParseFloat(t, 64); err == nil {
				nums = append(nums, f)
			} else {
				strs = append(strs, t)
			}
		}
	}
	if len(nums) > 0 {
		min, max := nums[0], nums[0]
		for _, n := range nums {
			if n < min {
				min = n
			}
			if n > max {
				max = n
			}
		}
		return schema.ValueRange{Min: strconv.FormatFloat(min, 'f', -1, 64), Max: strconv.FormatFloat(max, 'f', -1, 64)}, true
	}
	if len(strs) > 0 {
		sort.Strings(strs)
		return schema.ValueRange{Min: strs[0], Max: strs[len(strs)-1]}, true
	}
	return schema.ValueRange{}, false
}
