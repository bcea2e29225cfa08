package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Beacon configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  "Display the merged configuration: defaults, config file, and environment overrides. Secrets are redacted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}

		redact(cfg)

		output, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to format configuration")
		}
		fmt.Println(string(output))
		return nil
	},
}

// redact blanks credentials before printing
func redact(cfg *config.Config) {
	if cfg.Delivery.Email.Password != "" {
		cfg.Delivery.Email.Password = "***"
	}
	if cfg.Delivery.Slack.Token != "" {
		cfg.Delivery.Slack.Token = "***"
	}
	if cfg.Delivery.S3.SecretKey != "" {
		cfg.Delivery.S3.SecretKey = "***"
	}
	if cfg.Delivery.Webhook.Secret != "" {
		cfg.Delivery.Webhook.Secret = "***"
	}
	if cfg.DataPlane.ServiceToken != "" {
		cfg.DataPlane.ServiceToken = "***"
	}
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
}
