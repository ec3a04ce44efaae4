package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/config"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres"
)

func newMigrateCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		newMigrateUpCmd(opts),
		newMigrateDownCmd(opts),
		newMigrateStatusCmd(opts),
		newMigrateForceCmd(opts),
	)
	return cmd
}

func migrateTargets(opts *RootOptions) (dbURL, path string, err error) {
	var cfg *config.Config
	cfg, err = loadConfig(opts)
	if err != nil {
		return "", "", err
	}
	return cfg.Database.DSN(), cfg.Database.MigrationPath, nil
}

func newMigrateUpCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, path, err := migrateTargets(opts)
			if err != nil {
				return err
			}
			if err := postgres.RunMigrations(dbURL, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newMigrateDownCmd(opts *RootOptions) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, path, err := migrateTargets(opts)
			if err != nil {
				return err
			}
			if err := postgres.RollbackMigration(dbURL, path, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newMigrateStatusCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, path, err := migrateTargets(opts)
			if err != nil {
				return err
			}
			version, dirty, err := postgres.MigrationStatus(dbURL, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %d dirty: %t\n", version, dirty)
			return nil
		},
	}
}

func newMigrateForceCmd(opts *RootOptions) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "force",
		Short: "Force the schema version without running migrations",
		Long:  "Overrides the recorded schema version. Only use this to recover from a dirty migration state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, path, err := migrateTargets(opts)
			if err != nil {
				return err
			}
			if version < 0 {
				return fmt.Errorf("--version must be >= 0, got %d", version)
			}
			if err := postgres.ForceMigrationVersion(dbURL, path, version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version forced to %d\n", version)
			return nil
		},
	}

	cmd.Flags().IntVar(&version, "version", -1, "schema version to record")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}
