package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/hookgate/hookgate/internal/errors"
	"github.com/hookgate/hookgate/internal/integrations"
	"github.com/hookgate/hookgate/internal/observability"
)

var healthCheckStore bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check to verify the application can start successfully.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		logger.Info("✅ Version information available")

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		logger.Info("✅ Configuration valid")

		for _, route := range integrations.Catalog() {
			if _, ok := integrations.SchemaFor(route.Type); !ok {
				ExitWithCode(logger, foundry.ExitConfigInvalid, "Payload schema missing",
					errwrap.NewConfigInvalidError("no payload schema for "+string(route.Type)))
				return
			}
		}
		logger.Info("✅ Payload schemas compiled", zap.Int("routes", len(integrations.Catalog())))

		if healthCheckStore {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			db, err := openStore(ctx, cfg)
			if err != nil {
				ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Store unavailable", err)
				return
			}
			pingErr := db.Ping(ctx)
			_ = db.Close()
			if pingErr != nil {
				ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Store ping failed", pingErr)
				return
			}
			logger.Info("✅ Store reachable", zap.String("driver", cfg.Store.Driver))
		}

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&healthCheckStore, "store", false, "also open and ping the integration store")
}
