// Package sqlast implements the SQL-AST Service: parsing, validation,
// dialect transpilation, metadata extraction, and parse-error assistance
// over a real SQL grammar.
package sqlast

import (
	"fmt"
	"strings"
	"sync"

	pgquery "github.com/pganalyze/pg_query_go/v6"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

// ValidationNote is a non-fatal observation surfaced alongside a successful
// validation (e.g. an implicit cast, a deprecated syntax form).
type ValidationNote struct {
	Message string `json:"message"`
}

// ValidateResult is the outcome of Validate.
type ValidateResult struct {
	Valid bool             `json:"valid"`
	Notes []ValidationNote `json:"notes,omitempty"`
	Error string           `json:"error,omitempty"`
}

// Metadata is the outcome of ExtractMetadata: every table and column
// reference found in a statement.
type Metadata struct {
	Tables  []string `json:"tables"`
	Columns []string `json:"columns"`
}

// Fix is one suggested correction from AssistError.
type Fix struct {
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// DialectTranslator transpiles a statement between dialects. The default
// implementation is a same-dialect passthrough: real cross-dialect
// rewriting is an external collaborator's concern, out of scope here.
type DialectTranslator interface {
	Transpile(sql string, from, to schema.Dialect) (string, error)
}

// PassthroughTranslator returns the input unchanged when from == to or the
// target is generic, and reports an error otherwise, since no real
// translator is wired in by default.
type PassthroughTranslator struct{}

func (PassthroughTranslator) Transpile(sql string, from, to schema.Dialect) (string, error) {
	if from == to || to == schema.DialectGeneric {
		return sql, nil
	}
	return "", fmt.Errorf("no dialect translator wired in for %s -> %s; only same-dialect passthrough is supported", from, to)
}

// Service is the SQL-AST Service. One instance is shared across requests;
// its parse cache is safe for concurrent use.
type Service struct {
	translator DialectTranslator
	cache      *lru
	mu         sync.Mutex

	knownIdentifiers []string // table and column names, for AssistError fuzzy matching
}

// New constructs a Service. translator may be nil, in which case
// PassthroughTranslator is used.
func New(translator DialectTranslator, cacheCapacity int) *Service {
	if translator == nil {
		translator = PassthroughTranslator{}
	}
	return &Service{translator: translator, cache: newLRU(cacheCapacity)}
}

// SetKnownIdentifiers refreshes the identifier list AssistError fuzzy-
// matches against, typically every table and column name in the active
// Schema Card.
func (s *Service) SetKnownIdentifiers(card *schema.Card) {
	var ids []string
	for key, tp := range card.Tables {
		ids = append(ids, key, tp.Name)
		for _, c := range tp.Columns {
			ids = append(ids, c.Name)
		}
	}
	s.mu.Lock()
	s.knownIdentifiers = ids
	s.mu.Unlock()
}

func cacheKey(sql string, dialect schema.Dialect) string {
	return string(dialect) + "\x00" + sql
}

// parse parses sql (treated under the postgres-family grammar for every
// dialect, since that is the only real grammar wired in) and caches the
// result.
func (s *Service) parse(sqlText string, dialect schema.Dialect) (*pgquery.ParseResult, error) {
	key := cacheKey(sqlText, dialect)
	s.mu.Lock()
	if cached, ok := s.cache.get(key); ok {
		s.mu.Unlock()
		return cached.(*pgquery.ParseResult), nil
	}
	s.mu.Unlock()

	tree, err := pgquery.Parse(sqlText)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache.put(key, tree)
	s.mu.Unlock()
	return tree, nil
}

// Validate parses sql under dialect and reports whether it is syntactically
// valid, with any non-fatal notes.
func (s *Service) Validate(sqlText string, dialect schema.Dialect) ValidateResult {
	tree, err := s.parse(sqlText, dialect)
	if err != nil {
		return ValidateResult{Valid: false, Error: err.Error()}
	}
	var notes []ValidationNote
	if len(tree.GetStmts()) > 1 {
		notes = append(notes, ValidationNote{Message: "statement contains multiple top-level SQL statements"})
	}
	return ValidateResult{Valid: true, Notes: notes}
}

// Transpile rewrites sql from one dialect to another via the configured
// DialectTranslator.
func (s *Service) Transpile(sqlText string, from, to schema.Dialect) (string, error) {
	return s.translator.Transpile(sqlText, from, to)
}

// AutoTranspile detects the source dialect by parse trial (postgres-family
// grammar is tried first, since it is the only wired grammar; dialects with
// no native parser are accepted as "generic" without a trial) then
// transpiles to target.
func (s *Service) AutoTranspile(sqlText string, target schema.Dialect) (string, error) {
	if _, err := s.parse(sqlText, schema.DialectGeneric); err != nil {
		return "", fmt.Errorf("auto-detecting source dialect: %w", err)
	}
	return s.Transpile(sqlText, schema.DialectGeneric, target)
}

// Optimize applies dialect-aware rewrites via the configured translator.
// With the default passthrough translator this is a no-op beyond
// validation, since real query optimization is an external collaborator's
// concern.
func (s *Service) Optimize(sqlText string, dialect schema.Dialect) (string, error) {
	if _, err := s.parse(sqlText, dialect); err != nil {
		return "", fmt.Errorf("optimizing: %w", err)
	}
	return sqlText, nil
}

// ExtractMetadata returns every table and column reference found in sql.
func (s *Service) ExtractMetadata(sqlText string) (Metadata, error) {
	raw, err := pgquery.ParseToJSON(sqlText)
	if err != nil {
		return Metadata{}, fmt.Errorf("parsing for metadata extraction: %w", err)
	}
	return extractMetadataFromJSON(raw)
}

// AssistError suggests fixes for a driver-reported error, fuzzy-matching
// any identifier named in driverMessage against known schema identifiers
// within edit distance 2.
func (s *Service) AssistError(sqlText, driverMessage string, dialect schema.Dialect) []Fix {
	var fixes []Fix

	if _, err := s.parse(sqlText, dialect); err != nil {
		fixes = append(fixes, Fix{Message: fmt.Sprintf("statement failed to parse: %v", err)})
		return fixes
	}

	candidate := extractUnresolvedIdentifier(driverMessage)
	if candidate == "" {
		fixes = append(fixes, Fix{Message: driverMessage})
		return fixes
	}

	s.mu.Lock()
	known := append([]string(nil), s.knownIdentifiers...)
	s.mu.Unlock()

	match, dist := closestMatch(candidate, known)
	if match != "" && dist <= 2 {
		fixes = append(fixes, Fix{
			Message:    fmt.Sprintf("%q is not a known identifier", candidate),
			Suggestion: fmt.Sprintf("did you mean %q?", match),
		})
	} else {
		fixes = append(fixes, Fix{Message: fmt.Sprintf("%q is not a known identifier and no close match was found", candidate)})
	}
	return fixes
}

// extractUnresolvedIdentifier pulls a quoted or bare identifier out of a
// typical driver "column does not exist" / "relation does not exist"
// message. Best-effort: returns "" if nothing identifiable is found.
func extractUnresolvedIdentifier(msg string) string {
	lower := strings.ToLower(msg)
	markers := []string{"column \"", "relation \"", "table \"", "column ", "relation ", "table "}
	for _, marker := range markers {
		idx := strings.Index(lower, marker)
		if idx == -1 {
			continue
		}
		rest := msg[idx+len(marker):]
		rest = strings.TrimPrefix(rest, "\"")
		end := strings.IndexAny(rest, "\" \n")
		if end == -1 {
			end = len(rest)
		}
		ident := strings.TrimSpace(rest[:end])
		if ident != "" {
			return ident
		}
	}
	return ""
}
