package schema

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration. It is loaded from an
// optional YAML file and then layered with environment variable overrides,
// the same two-stage pattern used throughout this codebase's config layer.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Budget     BudgetConfig     `yaml:"budget"`
	Cache      CacheConfig      `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DatabaseConfig describes the single connection target.
type DatabaseConfig struct {
	DSN     string  `yaml:"dsn"`
	Dialect Dialect `yaml:"dialect"`
}

// BudgetConfig bounds reflection, sampling, and execution work.
type BudgetConfig struct {
	MaxTables          int           `yaml:"max_tables"`
	FastStartMaxTables int           `yaml:"fast_start_max_tables"`
	PerTableRows       int           `yaml:"per_table_rows"`
	SampleTimeout      time.Duration `yaml:"sample_timeout"`
	RowLimit           int           `yaml:"row_limit"`
	MaxCellChars       int           `yaml:"max_cell_chars"`
	ValueConstraintThreshold int     `yaml:"value_constraint_threshold"`
	MinAreaSize        int           `yaml:"min_area_size"`
	MergeArchiveAreas  bool          `yaml:"merge_archive_areas"`
	ColumnsPerTable    int           `yaml:"columns_per_table"`
	IntrospectWorkers  int           `yaml:"introspect_workers"`
}

// CacheConfig controls the Schema Card store's persistence behavior.
type CacheConfig struct {
	PersistPath string `yaml:"persist_path"` // empty disables persistence
}

// ObservabilityConfig toggles ambient behaviors that are not core spec
// functionality but are carried regardless per this codebase's conventions.
type ObservabilityConfig struct {
	Debug       bool   `yaml:"debug"`
	LogLevel    string `yaml:"log_level"`
	EmbedModel  string `yaml:"embed_model"` // "" disables the embedder
	DebugTools  bool   `yaml:"debug_tools"` // exposes find_tables / find_columns
}

// DefaultConfig returns conservative defaults matching the budgets implied
// by the specification (fast-start cap of 300 tables, etc).
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dialect: DialectGeneric,
		},
		Budget: BudgetConfig{
			MaxTables:          2000,
			FastStartMaxTables: 300,
			PerTableRows:       500,
			SampleTimeout:      5 * time.Second,
			RowLimit:           1000,
			MaxCellChars:       512,
			ValueConstraintThreshold: 50,
			MinAreaSize:        2,
			MergeArchiveAreas:  true,
			ColumnsPerTable:    8,
			IntrospectWorkers:  8,
		},
		Cache: CacheConfig{},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

// LoadConfig reads an optional YAML file at path (skipped silently if path
// is empty or the file does not exist) and then applies environment
// variable overrides on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SCHEMA_MCP_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("SCHEMA_MCP_DIALECT"); v != "" {
		c.Database.Dialect = Dialect(v)
	}
	if v := getIntEnv("SCHEMA_MCP_ROW_LIMIT", 0); v > 0 {
		c.Budget.RowLimit = v
	}
	if v := getIntEnv("SCHEMA_MCP_MAX_CELL_CHARS", 0); v > 0 {
		c.Budget.MaxCellChars = v
	}
	if v := getIntEnv("SCHEMA_MCP_SAMPLE_ROWS", 0); v > 0 {
		c.Budget.PerTableRows = v
	}
	if v := getDurationEnv("SCHEMA_MCP_SAMPLE_TIMEOUT", 0); v > 0 {
		c.Budget.SampleTimeout = v
	}
	if v := os.Getenv("SCHEMA_MCP_EMBED_MODEL"); v != "" {
		c.Observability.EmbedModel = v
	}
	if v := os.Getenv("SCHEMA_MCP_DEBUG_TOOLS"); v != "" {
		c.Observability.DebugTools = getBoolEnv("SCHEMA_MCP_DEBUG_TOOLS", false)
	}
	if v := os.Getenv("SCHEMA_MCP_CACHE_PATH"); v != "" {
		c.Cache.PersistPath = v
	}
}

// Validate rejects configurations that cannot start the service.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required (set SCHEMA_MCP_DSN or database.dsn)")
	}
	if c.Budget.RowLimit <= 0 {
		return fmt.Errorf("budget.row_limit must be positive")
	}
	if c.Budget.MaxCellChars <= 0 {
		return fmt.Errorf("budget.max_cell_chars must be positive")
	}
	return nil
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
