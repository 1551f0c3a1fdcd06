package commands

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// migrateCmd creates the tables for SQL backends
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create ledger and user tables",
	Long: `Create the accounts, statements and users tables for the configured
backend. Running it again is a no-op. The memory backend has nothing to migrate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for i := len(store.closers) - 1; i >= 0; i-- {
			store.closers[i]()
		}
	}()

	if len(store.migrations) == 0 {
		logger.Info("nothing to migrate", zap.String("backend", cfg.Backend))
		return nil
	}
	if err := store.migrate(ctx); err != nil {
		return err
	}
	logger.Info("migration finished", zap.String("backend", cfg.Backend))
	return nil
}
