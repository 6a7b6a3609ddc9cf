package main

import (
	"github.com/bher20/gmeter/internal/config"
	"github.com/bher20/gmeter/internal/migrate"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	run := func(fn func(cmd *cobra.Command, driver, dsn string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return fn(cmd, cfg.Storage.Driver, cfg.Storage.DSN)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: run(func(cmd *cobra.Command, driver, dsn string) error {
				return migrate.Up(cmd.Context(), driver, dsn)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: run(func(cmd *cobra.Command, driver, dsn string) error {
				return migrate.Down(cmd.Context(), driver, dsn)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: run(func(cmd *cobra.Command, driver, dsn string) error {
				return migrate.Status(cmd.Context(), driver, dsn)
			}),
		},
	)
	return cmd
}
