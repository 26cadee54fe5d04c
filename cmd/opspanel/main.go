package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opspanel/backend/cmd/opspanel/commands"
)

var rootCmd = &cobra.Command{
	Use:   "opspanel",
	Short: "Operations admin panel backend",
	Long: `opspanel runs the admin panel backend processes.

Available commands:
  serve    - HTTP API and /metrics
  beat     - periodic task scheduler (one active instance via leader lock)
  worker   - task worker pool
  migrate  - apply or revert schema migrations

Configuration comes from OPSPANEL_* environment variables (a .env file in the
working directory is loaded first) and an optional YAML file given by --config.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "optional YAML config file")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.BeatCmd)
	rootCmd.AddCommand(commands.WorkerCmd)
	rootCmd.AddCommand(commands.MigrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
