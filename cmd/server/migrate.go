package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/logger"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Apply, roll back or inspect the embedded database migrations.`,
	}

	cmd.AddCommand(
		newMigrateSubcommand("up", "Run all pending migrations"),
		newMigrateSubcommand("down", "Roll back the latest migration"),
		newMigrateSubcommand("status", "Show migration status"),
	)

	return cmd
}

func newMigrateSubcommand(command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   command,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), command)
		},
	}
}

func runMigrate(ctx context.Context, command string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.LoadConfig()
	appLogger := logger.New(cfg)

	db, err := database.OpenMigrationDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	appLogger.Info("🗂️ [Migrate] Running migrations", "command", command, "database", cfg.PostgreSQLDatabase)
	if err := database.Migrate(ctx, db, command); err != nil {
		appLogger.Error("❌ [Migrate] Migration failed", "command", command, "error", err)
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	appLogger.Info("✅ [Migrate] Done", "command", command)
	return nil
}
