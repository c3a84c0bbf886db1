package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mando-03/nl2sql-mcp/pkg/execute"
	"github.com/Mando-03/nl2sql-mcp/pkg/interface/mcp"
	"github.com/Mando-03/nl2sql-mcp/pkg/lifecycle"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the schema-mcp service over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

func runServe(ctx context.Context, cfg *schema.Config) error {
	coord := lifecycle.New(lifecycle.Options{
		DSN:             cfg.Database.DSN,
		Dialect:         cfg.Database.Dialect,
		FastStartCap:    cfg.Budget.FastStartMaxTables,
		SampleWorkers:   cfg.Budget.IntrospectWorkers,
		SampleRowLimit:  cfg.Budget.PerTableRows,
		SampleTimeout:   cfg.Budget.SampleTimeout,
		EncoderDims:     256,
		EnableEmbedding: cfg.Observability.EmbedModel != "",
		CachePath:       cfg.Cache.PersistPath,
		Logger:          logger,
	})

	startCtx, cancelStart := context.WithTimeout(ctx, 60*time.Second)
	defer cancelStart()
	if err := coord.Start(startCtx); err != nil {
		return fatalError(fmt.Errorf("starting lifecycle coordinator: %w", err))
	}

	registry := mcp.NewToolRegistry()
	execBudget := execute.Budget{RowLimit: cfg.Budget.RowLimit, MaxCellChars: cfg.Budget.MaxCellChars}
	if err := mcp.RegisterTools(registry, coord, execBudget, cfg.Observability.DebugTools); err != nil {
		return fatalError(fmt.Errorf("registering tools: %w", err))
	}

	server := mcp.NewServer(mcp.ServerInfo{Name: "schema-mcp", Version: rootCmd.Version}, registry, logger)
	protocol := mcp.NewProtocol(server)
	transport := mcp.NewStdioTransport()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancelRun()
	}()

	serveErr := transport.Start(runCtx, protocol)
	coord.Stop(5 * time.Second)
	if serveErr != nil && runCtx.Err() == nil {
		return fatalError(fmt.Errorf("transport error: %w", serveErr))
	}
	return nil
}
