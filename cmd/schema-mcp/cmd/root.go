package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

var (
	cfgFile string
	debug   bool
	logger  *zap.Logger
)

// exitCode distinguishes configuration failures (2) from fatal
// initialization failures (3), per the CLI's documented exit codes.
type exitCode int

const (
	exitConfig exitCode = 2
	exitFatal  exitCode = 3
)

type cliError struct {
	code exitCode
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func configError(err error) error { return &cliError{code: exitConfig, err: err} }
func fatalError(err error) error  { return &cliError{code: exitFatal, err: err} }

// ExitCodeFor maps an error returned from Execute to a process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return int(ce.code)
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "schema-mcp",
	Short: "Schema intelligence and guarded query execution over MCP",
	Long: `schema-mcp reflects a relational database, builds a Schema Card,
and exposes query-planning and guarded-execution tools to an LLM client
over a stdio JSON-RPC transport.`,
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if debug {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := config.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (optional)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug-level logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*schema.Config, error) {
	cfg, err := schema.LoadConfig(cfgFile)
	if err != nil {
		return nil, configError(err)
	}
	return cfg, nil
}
