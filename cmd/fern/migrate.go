package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/database"
)

func migrateCmd(envFiles *[]string) *cobra.Command {
	var version uint
	var force int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply the migrations in DB_MIGRATION_FOLDER_PATH to the configured database.

Examples:
  fern migrate
  fern migrate --version 1
  fern migrate --force 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFiles...)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("version") {
				cfg.DatabaseMigrationVersion = version
			}
			if cmd.Flags().Changed("force") {
				cfg.DatabaseMigrationForce = force
			}
			return migrate(cmd.Context(), cfg)
		},
	}

	cmd.Flags().UintVar(&version, "version", 0, "migrate to this version instead of the latest")
	cmd.Flags().IntVar(&force, "force", 0, "force the recorded version before migrating")

	return cmd
}

func migrate(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, sync, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sync()

	a := newApp(cfg, logger)
	db, err := database.Open(ctx, a.databaseConfig(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return a.migrationService().MigratePostgres(db.SQLDB(), cfg.DatabaseName)
}
