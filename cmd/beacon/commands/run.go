package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/report"
	"github.com/quartzbi/beacon/trigger"
)

// RunCmd executes a single schedule immediately, bypassing the cron check.
var RunCmd = &cobra.Command{
	Use:   "run <schedule-id>",
	Short: "Execute one schedule immediately",
	Long: `Execute one schedule right now, bypassing the cron trigger.

The execution goes through the full state machine: an alert is evaluated,
artifacts are built, and notifications are delivered. Combine with
--dry-run to log notifications instead of sending them.

Examples:
  beacon run 42             # Execute schedule 42 now
  beacon run 42 --dry-run   # Execute without delivering notifications`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scheduleID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid schedule id %q", args[0])
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		if dryRun {
			cfg.Delivery.DryRun = true
		}

		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		machine, err := buildMachine(cfg, database)
		if err != nil {
			return err
		}

		firing := trigger.Firing{
			ScheduleID:  scheduleID,
			ScheduledAt: time.Now().UTC(),
			ExecutionID: uuid.New().String(),
		}

		fmt.Printf("Executing schedule %d (execution %s)\n", scheduleID, firing.ExecutionID)

		if err := machine.Run(context.Background(), firing); err != nil {
			if errors.Is(err, report.ErrPreviousWorking) {
				fmt.Printf("Skipped: a previous execution is still working\n")
				return nil
			}
			return err
		}

		fmt.Printf("Execution complete\n")
		return nil
	},
}

func init() {
	RunCmd.Flags().Bool("dry-run", false, "Log notifications instead of delivering them")
}
