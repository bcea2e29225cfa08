// Package notify fans a notification envelope out to a schedule's
// recipients through per-channel implementations.
package notify

import (
	"github.com/quartzbi/beacon/query"
	"github.com/quartzbi/beacon/report"
)

// Envelope is the complete, immutable payload handed to every channel.
// The artifact builder fills exactly the fields the schedule's output
// format produces; channels ignore fields that are empty.
type Envelope struct {
	Name        string
	Description string

	// URL links back to the chart or dashboard in the hosting UI.
	URL string

	// Screenshots are PNG captures, one per dashboard tab or a single
	// chart/dashboard shot.
	Screenshots [][]byte

	// PDF is the stitched multi-page document when the format is PDF.
	PDF []byte

	// CSV is the chart's result set when the format is CSV.
	CSV []byte

	// Frame is the tabular result embedded inline when the format is TEXT.
	Frame *query.Frame

	// EmailSubject overrides the generated subject line when set.
	EmailSubject string

	// Header carries execution metadata channels may surface (webhook
	// payloads, email headers).
	Header map[string]any
}

// HeaderFor builds the standard execution metadata block.
func HeaderFor(sched *report.Schedule, executionID string) map[string]any {
	return map[string]any{
		"notification_type":   string(sched.Kind),
		"notification_format": string(sched.Format),
		"notification_source": sched.Name,
		"chart_id":            sched.ChartID,
		"dashboard_id":        sched.DashboardID,
		"execution_id":        executionID,
	}
}
