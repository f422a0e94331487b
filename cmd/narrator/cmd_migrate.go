package main

import (
	"github.com/bobarin/narrator/internal/config"
	"github.com/bobarin/narrator/internal/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE:  runMigrate,
	}
	cmd.Flags().Bool("status", false, "Print migration status instead of applying")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")

	cfg, err := config.LoadDatabase()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, "migrate")
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if status {
		return database.MigrationStatus()
	}
	return database.Migrate(logger)
}
