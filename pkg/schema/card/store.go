// Package card implements the Schema Card Store: an immutable, versioned,
// atomically-swapped materialization of a reflected and profiled database,
// fingerprinted for use as a cache key by downstream components.
package card

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

// Store holds the single active Card for a process. Reads always observe
// either the previous or the newly-installed card, never a torn value.
type Store struct {
	current atomic.Pointer[schema.Card]
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Get returns the active card, or (nil, false) if none has been installed.
func (s *Store) Get() (*schema.Card, bool) {
	c := s.current.Load()
	if c == nil {
		return nil, false
	}
	return c, true
}

// Put installs a new card, atomically superseding any previous one.
func (s *Store) Put(c *schema.Card) {
	s.current.Store(c)
}

// Fingerprint returns the active card's fingerprint, or "" if none is
// installed.
func (s *Store) Fingerprint() string {
	c := s.current.Load()
	if c == nil {
		return ""
	}
	return c.Fingerprint
}

// ConnectionFingerprint derives a stable cache-key fingerprint from a DSN
// without embedding the DSN itself (which may carry credentials) in any
// cache path or log line.
func ConnectionFingerprint(dialect schema.Dialect, dsn string) string {
	sum := sha256.Sum256([]byte(string(dialect) + "|" + dsn))
	return hex.EncodeToString(sum[:])[:16]
}

// ReflectionHash computes a content hash over structure and profiling
// parameters only: table/column names, types, keys, FK edges, roles, and
// archetypes. It deliberately excludes sampled values, enumerated value
// lists, ranges, and any timestamp, so that two builds from an unchanged
// schema produce an identical hash regardless of sampled data drift.
func ReflectionHash(tables map[string]*schema.TableProfile, params map[string]string) string {
	type colFingerprint struct {
		Name, VendorType string
		Nullable, IsPK, IsFK bool
		FKTable, FKColumn string
		Role schema.Role
	}
	type tableFingerprint struct {
		Key        string
		PrimaryKey []string
		Columns    []colFingerprint
		Archetype  schema.Archetype
	}

	var keys []string
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var structural []tableFingerprint
	for _, k := range keys {
		tp := tables[k]
		tf := tableFingerprint{Key: tp.TableKey, PrimaryKey: append([]string(nil), tp.PrimaryKey...), Archetype: tp.Archetype}
		for _, c := range tp.Columns {
			tf.Columns = append(tf.Columns, colFingerprint{
				Name: c.Name, VendorType: c.VendorType, Nullable: c.Nullable,
				IsPK: c.IsPK, IsFK: c.IsFK, FKTable: c.FKTable, FKColumn: c.FKColumn, Role: c.Role,
			})
		}
		structural = append(structural, tf)
	}

	var paramKeys []string
	for k := range params {
		paramKeys = append(paramKeys, k)
	}
	sort.Strings(paramKeys)
	orderedParams := make([]string, 0, len(paramKeys)*2)
	for _, k := range paramKeys {
		orderedParams = append(orderedParams, k, params[k])
	}

	payload, err := json.Marshal(struct {
		Tables []tableFingerprint
		Params []string
	}{structural, orderedParams})
	if err != nil {
		// Marshaling a value built entirely from this package's own structs
		// cannot fail; this guards the return type rather than a real
		// runtime condition.
		return ""
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Serialize renders a card to its portable, round-trippable byte form.
func Serialize(c *schema.Card) ([]byte, error) {
	envelope := struct {
		SchemaVersion int          `json:"schema_version"`
		Card          *schema.Card `json:"card"`
	}{SchemaVersion: 1, Card: c}
	return json.MarshalIndent(envelope, "", "  ")
}

// Deserialize parses a card from its portable byte form.
func Deserialize(data []byte) (*schema.Card, error) {
	var envelope struct {
		SchemaVersion int          `json:"schema_version"`
		Card          *schema.Card `json:"card"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding schema card: %w", err)
	}
	if envelope.SchemaVersion != 1 {
		return nil, fmt.Errorf("unsupported schema card version %d", envelope.SchemaVersion)
	}
	return envelope.Card, nil
}

// Persist writes a card to path if path is non-empty.
func Persist(path string, c *schema.Card) error {
	if path == "" {
		return nil
	}
	data, err := Serialize(c)
	if err != nil {
		return fmt.Errorf("serializing schema card: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing schema card to %s: %w", path, err)
	}
	return nil
}

// Load reads a previously persisted card from path, if it exists.
func Load(path string) (*schema.Card, bool, error) {
	if path == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading schema card from %s: %w", path, err)
	}
	c, err := Deserialize(data)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}
