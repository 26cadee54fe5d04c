package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opspanel/backend/internal/infrastructure/db"
)

var migrateSteps int

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(p *process) error {
			return db.RunMigrations(p.db, p.log)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the newest applied migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateSteps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		return withDatabase(func(p *process) error {
			return db.Rollback(p.db, migrateSteps, p.log)
		})
	},
}

var migrateCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the newest applied revision",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(p *process) error {
			rev, err := db.CurrentRevision(p.db)
			if err != nil {
				return err
			}
			if rev == "" {
				rev = "<empty>"
			}
			fmt.Fprintln(cmd.OutOrStdout(), rev)
			return nil
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to revert")

	MigrateCmd.AddCommand(migrateUpCmd)
	MigrateCmd.AddCommand(migrateDownCmd)
	MigrateCmd.AddCommand(migrateCurrentCmd)
}

func withDatabase(fn func(p *process) error) error {
	p, err := openProcess(context.Background(), "migrate", false)
	if err != nil {
		return err
	}
	defer p.close()
	return fn(p)
}
