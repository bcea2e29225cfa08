// Package artifact renders a schedule's output format into a notification
// envelope: screenshots, a stitched PDF, CSV data, or an embedded table.
package artifact

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/notify"
	"github.com/quartzbi/beacon/query"
	"github.com/quartzbi/beacon/render"
	"github.com/quartzbi/beacon/report"
)

// Builder assembles notification envelopes for report schedules.
type Builder struct {
	renderer      render.Renderer
	permalinks    render.PermalinkService
	chartData     query.ChartData
	baseURL       string
	screenshotCfg config.ScreenshotConfig
	attachReports bool
	queryTimeout  time.Duration
	log           *zap.SugaredLogger
}

func NewBuilder(
	renderer render.Renderer,
	permalinks render.PermalinkService,
	chartData query.ChartData,
	cfg *config.Config,
	log *zap.SugaredLogger,
) *Builder {
	return &Builder{
		renderer:      renderer,
		permalinks:    permalinks,
		chartData:     chartData,
		baseURL:       cfg.App.BaseURL,
		screenshotCfg: cfg.Screenshot,
		attachReports: cfg.Alerts.AttachReports,
		queryTimeout:  time.Duration(cfg.Alerts.QueryTimeoutSeconds) * time.Second,
		log:           log,
	}
}

// Build produces the envelope for one execution. Alert schedules attach
// artifacts only when attach_reports is enabled; the envelope always
// carries the name, link and header metadata.
func (b *Builder) Build(ctx context.Context, sched *report.Schedule, executionID, asUser string) (*notify.Envelope, error) {
	env := &notify.Envelope{
		Name:         sched.Name,
		Description:  sched.Description,
		URL:          b.userURL(sched),
		EmailSubject: sched.EmailSubject,
		Header:       notify.HeaderFor(sched, executionID),
	}

	if sched.IsAlert() && !b.attachReports {
		return env, nil
	}

	switch sched.Format {
	case report.FormatPNG:
		shots, err := b.screenshots(ctx, sched, asUser)
		if err != nil {
			return nil, err
		}
		env.Screenshots = shots

	case report.FormatPDF:
		shots, err := b.screenshots(ctx, sched, asUser)
		if err != nil {
			return nil, err
		}
		pdf, err := stitchPDF(shots)
		if err != nil {
			return nil, err
		}
		env.PDF = pdf

	case report.FormatCSV:
		csvData, err := b.csvData(ctx, sched, asUser)
		if err != nil {
			return nil, err
		}
		env.CSV = csvData

	case report.FormatText:
		frame, err := b.embeddedFrame(ctx, sched, asUser)
		if err != nil {
			return nil, err
		}
		env.Frame = frame

	default:
		return nil, errors.Newf("unknown report format %q", sched.Format)
	}

	return env, nil
}

// screenshots captures the chart once, or the dashboard once per requested
// tab. Per-tab captures go through a permalink so each tab renders in a
// stable pinned state.
func (b *Builder) screenshots(ctx context.Context, sched *report.Schedule, asUser string) ([][]byte, error) {
	deadline := time.Duration(b.screenshotCfg.TimeoutSeconds) * time.Second
	vp := b.viewport(sched)

	urls, err := b.screenshotURLs(ctx, sched)
	if err != nil {
		return nil, err
	}

	shots := make([][]byte, 0, len(urls))
	for _, target := range urls {
		image, err := b.renderer.Screenshot(ctx, target, vp, asUser, deadline, sched.ForceScreenshot)
		if err != nil {
			if errors.Is(err, report.ErrScreenshotTimeout) {
				return nil, err
			}
			return nil, errors.Wrapf(report.ErrScreenshotFailed, "capturing %s: %v", target, err)
		}
		if len(image) == 0 {
			return nil, errors.Wrapf(report.ErrScreenshotFailed, "empty screenshot for %s", target)
		}
		shots = append(shots, image)
	}
	return shots, nil
}

func (b *Builder) screenshotURLs(ctx context.Context, sched *report.Schedule) ([]string, error) {
	if sched.ChartID != nil {
		return []string{b.chartURL(sched)}, nil
	}

	tabs := sched.DashboardTabs()
	if len(tabs) == 0 {
		return []string{b.dashboardURL(sched)}, nil
	}

	var filters = sched.Extra.Dashboard.NativeFilters
	urls := make([]string, 0, len(tabs))
	for _, tab := range tabs {
		key, err := b.permalinks.Create(ctx, *sched.DashboardID, render.DashboardState{
			Anchor:        tab,
			NativeFilters: filters,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "creating permalink for tab %s", tab)
		}
		urls = append(urls, b.permalinks.URLFor(key))
	}
	return urls, nil
}

// csvData pulls the chart's saved query context result as CSV. A chart
// that has never persisted a query context yields nothing, so one forced
// screenshot primes it before a single retry.
func (b *Builder) csvData(ctx context.Context, sched *report.Schedule, asUser string) ([]byte, error) {
	if sched.ChartID == nil {
		return nil, errors.Wrap(report.ErrCsvFailed, "csv output requires a chart")
	}

	data, err := b.chartData.CSV(ctx, *sched.ChartID, asUser, b.queryTimeout)
	if err != nil {
		if errors.Is(err, report.ErrCsvTimeout) {
			return nil, err
		}
		b.log.Warnw("No csv data on first attempt, taking a screenshot to prime the query context",
			"chart_id", *sched.ChartID,
			"error", err,
		)
		if primeErr := b.primeQueryContext(ctx, sched, asUser); primeErr != nil {
			return nil, primeErr
		}
		data, err = b.chartData.CSV(ctx, *sched.ChartID, asUser, b.queryTimeout)
		if err != nil {
			return nil, errors.Wrapf(report.ErrCsvFailed, "after priming query context: %v", err)
		}
	}
	if len(data) == 0 {
		return nil, errors.Wrap(report.ErrCsvFailed, "empty csv result")
	}
	return data, nil
}

// primeQueryContext renders the chart once with the cache bypassed so the
// chart produces and saves its query context.
func (b *Builder) primeQueryContext(ctx context.Context, sched *report.Schedule, asUser string) error {
	deadline := time.Duration(b.screenshotCfg.TimeoutSeconds) * time.Second
	_, err := b.renderer.Screenshot(ctx, b.chartURL(sched), b.viewport(sched), asUser, deadline, true)
	if err != nil {
		return errors.Wrapf(report.ErrCsvFailed,
			"chart has no saved query context and priming it via a screenshot failed: %v", err)
	}
	return nil
}

func (b *Builder) embeddedFrame(ctx context.Context, sched *report.Schedule, asUser string) (*query.Frame, error) {
	if sched.ChartID == nil {
		return nil, errors.Wrap(report.ErrDataFrameFailed, "text output requires a chart")
	}
	frame, err := b.chartData.Frame(ctx, *sched.ChartID, asUser, b.queryTimeout)
	if err != nil {
		if errors.Is(err, report.ErrDataFrameTimeout) {
			return nil, err
		}
		return nil, errors.Wrapf(report.ErrDataFrameFailed, "fetching chart data: %v", err)
	}
	if frame == nil {
		return nil, errors.Wrap(report.ErrDataFrameFailed, "no chart data returned")
	}
	return frame, nil
}

func (b *Builder) viewport(sched *report.Schedule) render.Viewport {
	width := b.screenshotCfg.DashboardWidth
	height := b.screenshotCfg.DashboardHeight
	if sched.ChartID != nil {
		width = b.screenshotCfg.ChartWidth
		height = b.screenshotCfg.ChartHeight
	}
	if sched.CustomWidth != nil {
		width = *sched.CustomWidth
	}
	return render.Viewport{Width: width, Height: height}
}

// userURL is the link embedded in the notification body. It never carries
// the force parameter; that only applies to renderer targets.
func (b *Builder) userURL(sched *report.Schedule) string {
	if sched.ChartID != nil {
		return fmt.Sprintf("%s/explore/?slice_id=%d", b.baseURL, *sched.ChartID)
	}
	if sched.DashboardID != nil {
		return fmt.Sprintf("%s/dashboard/%d/", b.baseURL, *sched.DashboardID)
	}
	return b.baseURL
}

func (b *Builder) chartURL(sched *report.Schedule) string {
	return fmt.Sprintf("%s/explore/?slice_id=%d&standalone=true&force=%s",
		b.baseURL, *sched.ChartID, forceParam(sched))
}

func (b *Builder) dashboardURL(sched *report.Schedule) string {
	return fmt.Sprintf("%s/dashboard/%d/?standalone=3&force=%s",
		b.baseURL, *sched.DashboardID, forceParam(sched))
}

func forceParam(sched *report.Schedule) string {
	return strconv.FormatBool(sched.ForceScreenshot)
}
