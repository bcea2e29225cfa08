package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quartzbi/beacon/cmd/beacon/commands"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/logger"
)

var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Beacon - Alert and report scheduler",
	Long: `Beacon - Scheduled alert evaluation and report delivery.

Beacon executes the alert and report schedules of a BI deployment: it
evaluates alert queries, renders chart and dashboard artifacts, and
delivers notifications to email, Slack, S3, and webhook recipients.

Available commands:
  serve   - Start the scheduler daemon (ticker + worker pool)
  run     - Execute one schedule immediately
  config  - Manage configuration
  db      - Manage database operations
  version - Show version information

Examples:
  beacon serve                 # Start the scheduler daemon
  beacon serve --dry-run       # Log notifications instead of delivering
  beacon run 42                # Execute schedule 42 now
  beacon db stats              # Show execution statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize global logger before any command runs
		// Skip for commands that only print to stdout
		if cmd.Name() != "show" && cmd.Name() != "version" {
			if err := logger.Initialize(false); err != nil {
				return errors.Wrap(err, "failed to initialize logger")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
