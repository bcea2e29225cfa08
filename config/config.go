// Package config loads and validates the Beacon configuration.
package config

// Config represents the core Beacon configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	App        AppConfig        `mapstructure:"app"`
	DataPlane  DataPlaneConfig  `mapstructure:"data_plane"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AppConfig configures links back into the hosting BI application
type AppConfig struct {
	BaseURL string `mapstructure:"base_url"` // UI base URL used in notification links
}

// DataPlaneConfig configures the HTTP client for the platform's internal
// API: SQL execution, chart data, headless screenshots, and permalinks.
type DataPlaneConfig struct {
	APIBaseURL     string `mapstructure:"api_base_url"`    // Internal API base, defaults to app.base_url
	ServiceToken   string `mapstructure:"service_token"`   // Bearer token for machine auth
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // Transport-level timeout floor
}

// SchedulerConfig configures the trigger and dispatch loop
type SchedulerConfig struct {
	Workers                   int      `mapstructure:"workers"`                      // Concurrent schedule executions (default: 4)
	TickerIntervalSeconds     int      `mapstructure:"ticker_interval_seconds"`      // How often the trigger scans (default: 20)
	Executors                 []string `mapstructure:"executors"`                    // Ordered executor policy, e.g. ["owner", "fixed:admin"]
	AlertMinIntervalMinutes   int      `mapstructure:"alert_min_interval_minutes"`   // Minimum gap between alert firings
	ReportMinIntervalMinutes  int      `mapstructure:"report_min_interval_minutes"`  // Minimum gap between report firings
	DataPlaneRequestsPerMin   int      `mapstructure:"data_plane_requests_per_min"`  // Rate limit on query/render submissions
	WorkingTimeoutSecondsDflt int      `mapstructure:"working_timeout_seconds"`      // Default stall threshold when a schedule has none
}

// AlertsConfig configures alert evaluation
type AlertsConfig struct {
	QueryMaxTries        int  `mapstructure:"query_max_tries"`        // Default retry bound for engine calls
	QueryTimeoutSeconds  int  `mapstructure:"query_timeout_seconds"`  // Engine soft deadline
	MutateQuery          bool `mapstructure:"mutate_query"`           // Apply the site-wide SQL mutator
	AttachReports        bool `mapstructure:"attach_reports"`         // Attach artifacts to alert notifications
}

// ScreenshotConfig configures renderer viewports
type ScreenshotConfig struct {
	ChartWidth      int `mapstructure:"chart_width"`
	ChartHeight     int `mapstructure:"chart_height"`
	DashboardWidth  int `mapstructure:"dashboard_width"`
	DashboardHeight int `mapstructure:"dashboard_height"`
	MinCustomWidth  int `mapstructure:"min_custom_width"`
	MaxCustomWidth  int `mapstructure:"max_custom_width"`
	TimeoutSeconds  int `mapstructure:"timeout_seconds"` // Renderer soft deadline
}

// DeliveryConfig configures notification channels
type DeliveryConfig struct {
	DryRun  bool          `mapstructure:"dry_run"` // Log instead of delivering
	Email   EmailConfig   `mapstructure:"email"`
	Slack   SlackConfig   `mapstructure:"slack"`
	S3      S3Config      `mapstructure:"s3"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// EmailConfig configures the SMTP channel
type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// STARTTLS is negotiated opportunistically by the SMTP client; SSL
	// forces an implicit-TLS connection instead.
	SSL bool `mapstructure:"ssl"`
}

// SlackConfig configures the chat channel
type SlackConfig struct {
	Token string `mapstructure:"token"`
}

// S3Config configures the object-store channel.
// When AccessKey/SecretKey are empty the AWS default credential chain is
// used (shared config file, then instance role).
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// WebhookConfig configures the webhook channel
type WebhookConfig struct {
	Secret               string `mapstructure:"secret"` // HMAC-SHA256 key
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
	AllowPrivateNetworks bool   `mapstructure:"allow_private_networks"` // Permit targets in private address space
}
