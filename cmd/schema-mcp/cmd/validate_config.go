package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate the configuration without starting the service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("config ok: dialect=%s row_limit=%d fast_start_max_tables=%d\n",
			cfg.Database.Dialect, cfg.Budget.RowLimit, cfg.Budget.FastStartMaxTables)
		return nil
	},
}
