package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/report"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the Beacon database",
	Long: `Manage database operations.

Examples:
  beacon db migrate   # Apply pending schema migrations
  beacon db stats     # Show schedule and execution log statistics`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()
		fmt.Println("Database is up to date")
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show schedule and execution log statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()

	var totalSchedules, activeSchedules, alertSchedules int
	err = database.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(active), 0),
			COALESCE(SUM(kind = 'Alert'), 0)
		FROM report_schedules
	`).Scan(&totalSchedules, &activeSchedules, &alertSchedules)
	if err != nil {
		return errors.Wrap(err, "failed to query schedule stats")
	}

	logs := report.NewLogStore(database)
	byState, err := logs.CountByState(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to query execution log stats")
	}

	fmt.Printf("Database Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:    %s\n", cfg.Database.Path)
	fmt.Printf("Total Schedules:  %d\n", totalSchedules)
	fmt.Printf("Active Schedules: %d\n", activeSchedules)
	fmt.Printf("Alerts:           %d\n", alertSchedules)
	fmt.Printf("Reports:          %d\n", totalSchedules-alertSchedules)
	fmt.Println()

	fmt.Printf("Execution Log by State:\n")
	for _, state := range []report.State{
		report.StateNoop, report.StateWorking, report.StateSuccess,
		report.StateError, report.StateGrace,
	} {
		fmt.Printf("  %-8s %d\n", state, byState[state])
	}

	return nil
}
