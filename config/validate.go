package config

import (
	"strings"

	"github.com/quartzbi/beacon/errors"
)

// Validate checks configuration invariants at load time.
// Schedules referencing out-of-bounds values are rejected at creation time by
// the management API; this guards the process-level settings.
func Validate(cfg *Config) error {
	if cfg.Scheduler.Workers < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "scheduler.workers must be >= 1, got %d", cfg.Scheduler.Workers)
	}
	if cfg.Scheduler.TickerIntervalSeconds < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "scheduler.ticker_interval_seconds must be >= 1, got %d", cfg.Scheduler.TickerIntervalSeconds)
	}
	if len(cfg.Scheduler.Executors) == 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "scheduler.executors must not be empty")
	}
	for _, policy := range cfg.Scheduler.Executors {
		if !validExecutorPolicy(policy) {
			return errors.Wrapf(errors.ErrInvalidConfig, "unknown executor policy %q", policy)
		}
	}
	if cfg.Scheduler.AlertMinIntervalMinutes < 1 || cfg.Scheduler.ReportMinIntervalMinutes < 1 {
		return errors.Wrap(errors.ErrInvalidConfig, "minimum intervals must be >= 1 minute")
	}
	if cfg.Alerts.QueryMaxTries < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "alerts.query_max_tries must be >= 1, got %d", cfg.Alerts.QueryMaxTries)
	}

	sc := cfg.Screenshot
	if sc.MinCustomWidth <= 0 || sc.MaxCustomWidth <= 0 || sc.MinCustomWidth > sc.MaxCustomWidth {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"screenshot custom width bounds invalid: min=%d max=%d", sc.MinCustomWidth, sc.MaxCustomWidth)
	}
	if sc.ChartWidth <= 0 || sc.ChartHeight <= 0 || sc.DashboardWidth <= 0 || sc.DashboardHeight <= 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "screenshot default viewports must be positive")
	}

	return nil
}

// validExecutorPolicy reports whether the policy name is one the executor
// resolver understands. "fixed:<username>" carries its argument inline.
func validExecutorPolicy(policy string) bool {
	if strings.HasPrefix(policy, "fixed:") {
		return len(policy) > len("fixed:")
	}
	switch policy {
	case "owner", "creator", "creator_owner", "current_user":
		return true
	}
	return false
}
