package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quartzbi/beacon/alerting"
	"github.com/quartzbi/beacon/artifact"
	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/dataplane"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/logger"
	"github.com/quartzbi/beacon/notify"
	"github.com/quartzbi/beacon/report"
	"github.com/quartzbi/beacon/runner"
	"github.com/quartzbi/beacon/trigger"
)

// ServeCmd runs the scheduler daemon: the trigger ticker plus the worker pool.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the alert and report scheduler daemon",
	Long: `Start the scheduler daemon in foreground mode.

The daemon will:
- Scan active schedules for due cron firings
- Execute due alerts and reports through the worker pool
- Deliver notifications to the configured channels
- Run until interrupted (Ctrl+C) with graceful shutdown`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, _ := cmd.Flags().GetInt("workers")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		if workers > 0 {
			cfg.Scheduler.Workers = workers
		}
		if dryRun {
			cfg.Delivery.DryRun = true
		}

		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		machine, err := buildMachine(cfg, database)
		if err != nil {
			return err
		}

		pool := runner.NewPool(ctx, machine, cfg.Scheduler, logger.Logger)
		pool.Start()

		schedules := report.NewStore(database)
		tickerCfg := trigger.TickerConfig{
			Interval: time.Duration(cfg.Scheduler.TickerIntervalSeconds) * time.Second,
		}
		ticker := trigger.NewTicker(ctx, trigger.New(schedules), pool, tickerCfg, logger.Logger)
		ticker.Start()

		fmt.Printf("Beacon scheduler started\n")
		fmt.Printf("  Workers: %d\n", cfg.Scheduler.Workers)
		fmt.Printf("  Tick interval: %v\n", tickerCfg.Interval)
		fmt.Printf("  Executor policy: %v\n", cfg.Scheduler.Executors)
		if cfg.Delivery.DryRun {
			fmt.Printf("  Dry run: notifications will be logged, not delivered\n")
		}
		fmt.Printf("\nPress Ctrl+C for graceful shutdown\n\n")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		fmt.Printf("\nShutting down...\n")

		// Stop components in reverse order of startup
		ticker.Stop()
		pool.Stop()
		cancel()

		fmt.Printf("Beacon scheduler stopped\n")
		return nil
	},
}

// buildMachine wires the execution core: stores, data plane client,
// evaluator, artifact builder, and the channel registry.
func buildMachine(cfg *config.Config, database *sql.DB) (*runner.Machine, error) {
	schedules := report.NewStore(database)
	logs := report.NewLogStore(database)

	client := dataplane.NewClient(cfg.DataPlane, cfg.App.BaseURL, cfg.Alerts.MutateQuery, logger.Logger)
	evaluator := alerting.NewEvaluator(client, cfg, logger.Logger)
	builder := artifact.NewBuilder(client, client, client, cfg, logger.Logger)

	registry, err := registerChannels(cfg)
	if err != nil {
		return nil, err
	}
	sender := notify.NewSender(registry, cfg.Delivery.DryRun, logger.Logger)

	return runner.NewMachine(
		schedules, logs, evaluator, builder, sender,
		cfg.Scheduler.Executors,
		time.Duration(cfg.Scheduler.WorkingTimeoutSecondsDflt)*time.Second,
		logger.Logger,
	), nil
}

func init() {
	ServeCmd.Flags().Int("workers", 0, "Override scheduler.workers")
	ServeCmd.Flags().Bool("dry-run", false, "Log notifications instead of delivering them")
}

// registerChannels builds the channel registry from delivery config. Only
// configured channels are registered; unconfigured recipient types fail
// delivery with a client-classed error.
func registerChannels(cfg *config.Config) (*notify.Registry, error) {
	registry := notify.NewRegistry()

	if cfg.Delivery.Email.Host != "" {
		registry.Register(report.RecipientEmail, notify.NewEmailChannel(cfg.Delivery.Email))
	}
	if cfg.Delivery.Slack.Token != "" {
		registry.Register(report.RecipientSlack, notify.NewSlackChannel(cfg.Delivery.Slack))
	}
	if cfg.Delivery.S3.Region != "" {
		s3Channel, err := notify.NewS3Channel(cfg.Delivery.S3)
		if err != nil {
			return nil, err
		}
		registry.Register(report.RecipientS3, s3Channel)
	}
	// Unsigned webhooks are not allowed; without a secret the channel
	// stays unregistered and webhook recipients fail client-classed.
	if cfg.Delivery.Webhook.Secret != "" {
		registry.Register(report.RecipientWebhook, notify.NewWebhookChannel(cfg.Delivery.Webhook))
	}

	return registry, nil
}
