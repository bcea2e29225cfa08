package artifact

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/internal/util"
	"github.com/quartzbi/beacon/query"
	"github.com/quartzbi/beacon/render"
	"github.com/quartzbi/beacon/report"
)

type screenshotCall struct {
	url   string
	vp    render.Viewport
	force bool
}

type fakeRenderer struct {
	image []byte
	err   error
	calls []screenshotCall
}

func (f *fakeRenderer) Screenshot(ctx context.Context, url string, vp render.Viewport, asUser string, deadline time.Duration, force bool) ([]byte, error) {
	f.calls = append(f.calls, screenshotCall{url: url, vp: vp, force: force})
	if f.err != nil {
		return nil, f.err
	}
	return f.image, nil
}

type fakePermalinks struct {
	states []render.DashboardState
}

func (f *fakePermalinks) Create(ctx context.Context, dashboardID int64, state render.DashboardState) (string, error) {
	f.states = append(f.states, state)
	return state.Anchor + "-key", nil
}

func (f *fakePermalinks) URLFor(key string) string {
	return "https://bi.example.com/p/" + key
}

type fakeChartData struct {
	csv     [][]byte
	csvErrs []error
	calls   int
	frame   *query.Frame
}

func (f *fakeChartData) CSV(ctx context.Context, chartID int64, asUser string, deadline time.Duration) ([]byte, error) {
	i := f.calls
	f.calls++
	if i < len(f.csvErrs) && f.csvErrs[i] != nil {
		return nil, f.csvErrs[i]
	}
	if i < len(f.csv) {
		return f.csv[i], nil
	}
	return nil, nil
}

func (f *fakeChartData) Frame(ctx context.Context, chartID int64, asUser string, deadline time.Duration) (*query.Frame, error) {
	return f.frame, nil
}

// pngBytes encodes a tiny valid PNG so the stitcher can decode it.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func builderConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{BaseURL: "https://bi.example.com"},
		Screenshot: config.ScreenshotConfig{
			ChartWidth:      800,
			ChartHeight:     600,
			DashboardWidth:  1600,
			DashboardHeight: 1200,
			TimeoutSeconds:  60,
		},
		Alerts: config.AlertsConfig{QueryTimeoutSeconds: 30},
	}
}

func chartReport(format report.Format) *report.Schedule {
	return &report.Schedule{
		ID:      1,
		Name:    "weekly revenue",
		Kind:    report.KindReport,
		Format:  format,
		ChartID: util.Ptr(int64(42)),
	}
}

func newTestBuilder(r render.Renderer, p render.PermalinkService, c query.ChartData) *Builder {
	return NewBuilder(r, p, c, builderConfig(), zap.NewNop().Sugar())
}

func TestChartScreenshotEnvelope(t *testing.T) {
	renderer := &fakeRenderer{image: []byte("png-bytes")}
	b := newTestBuilder(renderer, &fakePermalinks{}, &fakeChartData{})

	env, err := b.Build(context.Background(), chartReport(report.FormatPNG), "exec-1", "admin")
	require.NoError(t, err)
	require.Len(t, env.Screenshots, 1)
	assert.Equal(t, []byte("png-bytes"), env.Screenshots[0])
	assert.Equal(t, "https://bi.example.com/explore/?slice_id=42", env.URL)
	assert.Equal(t, "exec-1", env.Header["execution_id"])

	require.Len(t, renderer.calls, 1)
	assert.Equal(t, render.Viewport{Width: 800, Height: 600}, renderer.calls[0].vp)
	assert.False(t, renderer.calls[0].force)
}

func TestDashboardMultiTabPDF(t *testing.T) {
	renderer := &fakeRenderer{image: pngBytes(t)}
	permalinks := &fakePermalinks{}
	b := newTestBuilder(renderer, permalinks, &fakeChartData{})

	sched := &report.Schedule{
		ID:          2,
		Name:        "ops dashboard",
		Kind:        report.KindReport,
		Format:      report.FormatPDF,
		DashboardID: util.Ptr(int64(7)),
		Extra: &report.Extra{
			Dashboard: &report.DashboardState{Anchor: []string{"tab1", "tab2"}},
		},
	}

	env, err := b.Build(context.Background(), sched, "exec-2", "admin")
	require.NoError(t, err)

	// One permalink per tab, each pinning a distinct state
	require.Len(t, permalinks.states, 2)
	assert.Equal(t, "tab1", permalinks.states[0].Anchor)
	assert.Equal(t, "tab2", permalinks.states[1].Anchor)

	// Two captures through the permalink urls
	require.Len(t, renderer.calls, 2)
	assert.Equal(t, "https://bi.example.com/p/tab1-key", renderer.calls[0].url)
	assert.Equal(t, "https://bi.example.com/p/tab2-key", renderer.calls[1].url)

	// Stitched into a single document
	assert.NotEmpty(t, env.PDF)
	assert.Empty(t, env.Screenshots)
}

func TestDashboardWithoutTabsSingleShot(t *testing.T) {
	renderer := &fakeRenderer{image: []byte("png-bytes")}
	permalinks := &fakePermalinks{}
	b := newTestBuilder(renderer, permalinks, &fakeChartData{})

	sched := &report.Schedule{
		ID:          3,
		Name:        "ops dashboard",
		Kind:        report.KindReport,
		Format:      report.FormatPNG,
		DashboardID: util.Ptr(int64(7)),
	}

	env, err := b.Build(context.Background(), sched, "exec-3", "admin")
	require.NoError(t, err)
	require.Len(t, env.Screenshots, 1)
	assert.Empty(t, permalinks.states)
	require.Len(t, renderer.calls, 1)
	assert.Equal(t, render.Viewport{Width: 1600, Height: 1200}, renderer.calls[0].vp)
}

func TestCustomWidthOverridesDefault(t *testing.T) {
	renderer := &fakeRenderer{image: []byte("png-bytes")}
	b := newTestBuilder(renderer, &fakePermalinks{}, &fakeChartData{})

	sched := chartReport(report.FormatPNG)
	sched.CustomWidth = util.Ptr(1000)

	_, err := b.Build(context.Background(), sched, "exec-4", "admin")
	require.NoError(t, err)
	require.Len(t, renderer.calls, 1)
	assert.Equal(t, render.Viewport{Width: 1000, Height: 600}, renderer.calls[0].vp)
}

func TestForceScreenshotPropagates(t *testing.T) {
	renderer := &fakeRenderer{image: []byte("png-bytes")}
	b := newTestBuilder(renderer, &fakePermalinks{}, &fakeChartData{})

	sched := chartReport(report.FormatPNG)
	sched.ForceScreenshot = true

	_, err := b.Build(context.Background(), sched, "exec-5", "admin")
	require.NoError(t, err)
	require.Len(t, renderer.calls, 1)
	assert.True(t, renderer.calls[0].force)
	assert.Contains(t, renderer.calls[0].url, "force=true")
}

func TestEmptyScreenshotRaises(t *testing.T) {
	renderer := &fakeRenderer{image: nil}
	b := newTestBuilder(renderer, &fakePermalinks{}, &fakeChartData{})

	_, err := b.Build(context.Background(), chartReport(report.FormatPNG), "exec-6", "admin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, report.ErrScreenshotFailed))
}

func TestCsvPrimesQueryContextOnce(t *testing.T) {
	renderer := &fakeRenderer{image: []byte("png-bytes")}
	chartData := &fakeChartData{
		csvErrs: []error{errors.New("no query context"), nil},
		csv:     [][]byte{nil, []byte("a,b\n1,2\n")},
	}
	b := newTestBuilder(renderer, &fakePermalinks{}, chartData)

	env, err := b.Build(context.Background(), chartReport(report.FormatCSV), "exec-7", "admin")
	require.NoError(t, err)
	assert.Equal(t, []byte("a,b\n1,2\n"), env.CSV)
	assert.Equal(t, 2, chartData.calls)

	// The priming screenshot always bypasses the renderer cache
	require.Len(t, renderer.calls, 1)
	assert.True(t, renderer.calls[0].force)
}

func TestCsvFailsAfterPriming(t *testing.T) {
	renderer := &fakeRenderer{image: []byte("png-bytes")}
	chartData := &fakeChartData{
		csvErrs: []error{errors.New("no query context"), errors.New("still nothing")},
	}
	b := newTestBuilder(renderer, &fakePermalinks{}, chartData)

	_, err := b.Build(context.Background(), chartReport(report.FormatCSV), "exec-8", "admin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, report.ErrCsvFailed))
	assert.Equal(t, 2, chartData.calls)
}

func TestTextEmbedsFrame(t *testing.T) {
	frame := &query.Frame{Columns: []string{"region", "revenue"}, Rows: [][]any{{"emea", 100.0}}}
	b := newTestBuilder(&fakeRenderer{}, &fakePermalinks{}, &fakeChartData{frame: frame})

	env, err := b.Build(context.Background(), chartReport(report.FormatText), "exec-9", "admin")
	require.NoError(t, err)
	assert.Equal(t, frame, env.Frame)
}

func TestAlertWithoutAttachReportsSkipsArtifacts(t *testing.T) {
	renderer := &fakeRenderer{image: []byte("png-bytes")}
	b := newTestBuilder(renderer, &fakePermalinks{}, &fakeChartData{})

	sched := chartReport(report.FormatPNG)
	sched.Kind = report.KindAlert

	env, err := b.Build(context.Background(), sched, "exec-10", "admin")
	require.NoError(t, err)
	assert.Empty(t, env.Screenshots)
	assert.Empty(t, renderer.calls)
	assert.NotEmpty(t, env.URL)
}

func TestAlertWithAttachReportsBuildsArtifacts(t *testing.T) {
	renderer := &fakeRenderer{image: []byte("png-bytes")}
	cfg := builderConfig()
	cfg.Alerts.AttachReports = true
	b := NewBuilder(renderer, &fakePermalinks{}, &fakeChartData{}, cfg, zap.NewNop().Sugar())

	sched := chartReport(report.FormatPNG)
	sched.Kind = report.KindAlert

	env, err := b.Build(context.Background(), sched, "exec-11", "admin")
	require.NoError(t, err)
	require.Len(t, env.Screenshots, 1)
}
