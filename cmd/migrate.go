package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/frahmantamala/expense-approval/db"
	"github.com/frahmantamala/expense-approval/pkg/logger"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "to run db migration files under db/migrations directory",
	}
	migrateRollback bool
	migrateStatus   bool
	migrateDir      string
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
	migrateCmd.Flags().BoolVarP(&migrateStatus, "status", "s", false, "print the applied state of every migration")
	migrateCmd.PersistentFlags().StringVarP(&migrateDir, "dir", "d", "", "sql migrations directory on disk (defaults to the embedded set)")
}

func runMigration(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	log := logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	conn, err := goose.OpenDBWithDriver("pgx", cfg.Database.Source)
	if err != nil {
		return fmt.Errorf("goose: failed to open DB: %w", err)
	}
	defer conn.Close()

	goose.SetTableName("schema_migrations")

	dir := "migrations"
	if migrateDir != "" {
		if _, err := os.Stat(migrateDir); err != nil {
			return fmt.Errorf("migrations directory: %w", err)
		}
		goose.SetBaseFS(nil)
		dir = migrateDir
	} else {
		goose.SetBaseFS(db.Migrations)
	}

	command := "up"
	switch {
	case migrateRollback:
		command = "down"
	case migrateStatus:
		command = "status"
	}

	log.Info("running migrations", "command", command, "dir", dir)
	if err := goose.RunContext(ctx, command, conn, dir); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}

	version, err := goose.GetDBVersionContext(ctx, conn)
	if err != nil {
		return fmt.Errorf("goose version: %w", err)
	}
	log.Info("migrations complete", "command", command, "version", version)
	return nil
}
