package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/observability"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the integration store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		observability.CLILogger.Info("Store migrated",
			zap.String("driver", db.Driver()),
			zap.String("path", cfg.Store.Path))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "store schema is current (%s)\n", db.Driver())
		return err
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
