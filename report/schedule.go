// Package report defines the alert/report schedule model and its stores.
package report

import (
	"encoding/json"
	"time"

	"github.com/quartzbi/beacon/errors"
)

// Kind distinguishes alerts (query + threshold) from reports (rendered artifact)
type Kind string

const (
	KindAlert  Kind = "Alert"
	KindReport Kind = "Report"
)

// Format is the artifact output format for a schedule
type Format string

const (
	FormatPNG  Format = "PNG"
	FormatPDF  Format = "PDF"
	FormatCSV  Format = "CSV"
	FormatText Format = "TEXT"
)

// State is the rest state of a schedule between ticks.
// WORKING is persisted but is not a rest state: it is the lease that lets
// the next tick detect a stalled or crashed worker.
type State string

const (
	StateNoop    State = "NOOP"
	StateWorking State = "WORKING"
	StateSuccess State = "SUCCESS"
	StateError   State = "ERROR"
	StateGrace   State = "GRACE"
)

// IsValidState returns true if the state string is a valid State
func IsValidState(s string) bool {
	switch State(s) {
	case StateNoop, StateWorking, StateSuccess, StateError, StateGrace:
		return true
	default:
		return false
	}
}

// ValidatorType selects how an alert's query result becomes a boolean
type ValidatorType string

const (
	ValidatorNotNull  ValidatorType = "not null"
	ValidatorOperator ValidatorType = "operator"
)

// ValidatorConfig is the rule converting an alert's observed value into
// triggered true/false.
type ValidatorConfig struct {
	Type      ValidatorType `json:"type"`
	Op        string        `json:"op,omitempty"`        // one of < <= > >= == !=
	Threshold float64       `json:"threshold,omitempty"` // operator comparand
}

// RecipientType names a delivery channel kind
type RecipientType string

const (
	RecipientEmail   RecipientType = "Email"
	RecipientSlack   RecipientType = "Slack"
	RecipientS3      RecipientType = "S3"
	RecipientWebhook RecipientType = "Webhook"
)

// Recipient is one configured delivery target on a schedule.
// ConfigJSON is channel-specific; Target is the common field every channel
// reads (address, comma-delimited channel list, bucket prefix, or URL).
type Recipient struct {
	ID         int64         `json:"id"`
	Type       RecipientType `json:"type"`
	ConfigJSON string        `json:"config_json"`
}

// RecipientConfig is the decoded common shape of Recipient.ConfigJSON
type RecipientConfig struct {
	Target string `json:"target"`
}

// Config decodes the recipient's configuration
func (r Recipient) Config() (RecipientConfig, error) {
	var cfg RecipientConfig
	if err := json.Unmarshal([]byte(r.ConfigJSON), &cfg); err != nil {
		return cfg, errors.Wrapf(err, "invalid recipient config for recipient %d", r.ID)
	}
	return cfg, nil
}

// Owner is a principal that owns a schedule. Owners receive failure
// notifications and are candidates for the executor resolver.
type Owner struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// DashboardState captures the visual state a dashboard report renders in.
// When Anchor lists tab ids, one screenshot is taken per tab through a
// permalink; otherwise the whole dashboard is captured once.
type DashboardState struct {
	Anchor        []string        `json:"anchor,omitempty"`
	NativeFilters json.RawMessage `json:"native_filters,omitempty"`
}

// Extra holds renderer options attached to a schedule
type Extra struct {
	Dashboard *DashboardState `json:"dashboard,omitempty"`
}

// Schedule is the persistent definition of one alert or report.
// It is created and mutated only by the schedule-management API; the
// execution core reads it and writes back only the last_* columns.
type Schedule struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Kind        Kind   `json:"kind"`
	Crontab     string `json:"crontab"`
	Timezone    string `json:"timezone"`
	Active      bool   `json:"active"`

	ChartID     *int64 `json:"chart_id,omitempty"`
	DashboardID *int64 `json:"dashboard_id,omitempty"`
	DatabaseID  *int64 `json:"database_id,omitempty"`
	SQL         string `json:"sql,omitempty"`

	Format       Format `json:"report_format"`
	EmailSubject string `json:"email_subject,omitempty"`

	Validator *ValidatorConfig `json:"validator,omitempty"`

	Creator               string `json:"creator,omitempty"`
	GracePeriodSeconds    int    `json:"grace_period"`
	WorkingTimeoutSeconds int    `json:"working_timeout"`
	QueryMaxTries         int    `json:"query_max_tries"`
	CustomWidth           *int   `json:"custom_width,omitempty"`
	ForceScreenshot       bool   `json:"force_screenshot"`
	Extra                 *Extra `json:"extra,omitempty"`

	LastState        State      `json:"last_state,omitempty"` // empty until first run
	LastValue        *float64   `json:"last_value,omitempty"`
	LastValueRowJSON string     `json:"last_value_row_json,omitempty"`
	LastEvalAt       *time.Time `json:"last_eval_at,omitempty"`

	Recipients []Recipient `json:"recipients,omitempty"`
	Owners     []Owner     `json:"owners,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAlert reports whether the schedule is an alert
func (s *Schedule) IsAlert() bool {
	return s.Kind == KindAlert
}

// GracePeriod returns the grace period as a duration
func (s *Schedule) GracePeriod() time.Duration {
	return time.Duration(s.GracePeriodSeconds) * time.Second
}

// WorkingTimeout returns the stall threshold as a duration
func (s *Schedule) WorkingTimeout() time.Duration {
	return time.Duration(s.WorkingTimeoutSeconds) * time.Second
}

// DashboardTabs returns the per-tab anchors requested for a dashboard
// report, or nil when the whole dashboard is captured in one shot.
func (s *Schedule) DashboardTabs() []string {
	if s.Extra == nil || s.Extra.Dashboard == nil {
		return nil
	}
	return s.Extra.Dashboard.Anchor
}
