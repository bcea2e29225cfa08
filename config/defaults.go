package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "beacon.db")

	// App defaults
	v.SetDefault("app.base_url", "http://localhost:8088")

	// Data plane defaults; api_base_url falls back to app.base_url at wiring
	v.SetDefault("data_plane.api_base_url", "")
	v.SetDefault("data_plane.timeout_seconds", 600)

	// Scheduler defaults
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.ticker_interval_seconds", 20)   // Scan well under the minute boundary
	v.SetDefault("scheduler.executors", []string{"owner"})
	v.SetDefault("scheduler.alert_min_interval_minutes", 1)
	v.SetDefault("scheduler.report_min_interval_minutes", 1)
	v.SetDefault("scheduler.data_plane_requests_per_min", 60)
	v.SetDefault("scheduler.working_timeout_seconds", 3600)

	// Alert evaluation defaults
	v.SetDefault("alerts.query_max_tries", 1)
	v.SetDefault("alerts.query_timeout_seconds", 180)
	v.SetDefault("alerts.mutate_query", false)
	v.SetDefault("alerts.attach_reports", true)

	// Screenshot defaults
	v.SetDefault("screenshot.chart_width", 800)
	v.SetDefault("screenshot.chart_height", 600)
	v.SetDefault("screenshot.dashboard_width", 1600)
	v.SetDefault("screenshot.dashboard_height", 1200)
	v.SetDefault("screenshot.min_custom_width", 600)
	v.SetDefault("screenshot.max_custom_width", 2400)
	v.SetDefault("screenshot.timeout_seconds", 300)

	// Delivery defaults
	v.SetDefault("delivery.dry_run", false)
	v.SetDefault("delivery.email.port", 25)
	v.SetDefault("delivery.email.ssl", false)
	v.SetDefault("delivery.webhook.timeout_seconds", 30)
	v.SetDefault("delivery.webhook.allow_private_networks", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("delivery.email.password", "BEACON_SMTP_PASSWORD")
	v.BindEnv("delivery.slack.token", "BEACON_SLACK_TOKEN")
	v.BindEnv("delivery.s3.access_key", "BEACON_S3_ACCESS_KEY")
	v.BindEnv("delivery.s3.secret_key", "BEACON_S3_SECRET_KEY")
	v.BindEnv("delivery.webhook.secret", "BEACON_WEBHOOK_SECRET")
	v.BindEnv("data_plane.service_token", "BEACON_SERVICE_TOKEN")
}
