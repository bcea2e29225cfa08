// Package dataplane is the HTTP client for the platform's internal API.
// It backs the query engine, chart data, renderer, and permalink surfaces
// the execution core consumes.
package dataplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/query"
	"github.com/quartzbi/beacon/render"
	"github.com/quartzbi/beacon/report"
)

// runAsHeader carries the resolved executor identity. The platform trusts
// it only on service-token authenticated requests.
const runAsHeader = "X-Run-As"

// Client talks to the platform's internal API with a service token.
// Safe for concurrent use.
type Client struct {
	baseURL     string // internal API
	appBaseURL  string // user-facing UI, for permalink URLs
	token       string
	mutateQuery bool
	httpClient  *http.Client
	log         *zap.SugaredLogger
}

// NewClient builds a data plane client. The transport timeout is a floor
// under the per-call deadlines the core passes in.
func NewClient(cfg config.DataPlaneConfig, appBaseURL string, mutateQuery bool, log *zap.SugaredLogger) *Client {
	base := cfg.APIBaseURL
	if base == "" {
		base = appBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		baseURL:     strings.TrimRight(base, "/"),
		appBaseURL:  strings.TrimRight(appBaseURL, "/"),
		token:       cfg.ServiceToken,
		mutateQuery: mutateQuery,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log.Named("dataplane"),
	}
}

// ApplyLimit wraps the statement in a subselect with a hard row limit.
// Rewriting locally keeps the limit enforced even when the backing
// database would otherwise stream an unbounded result.
func (c *Client) ApplyLimit(sqlText string, limit int) string {
	trimmed := strings.TrimRight(strings.TrimSpace(sqlText), ";")
	return fmt.Sprintf("SELECT * FROM (%s) AS inner__ LIMIT %d", trimmed, limit)
}

// Mutate applies the site-wide SQL mutator through the platform, which owns
// the mutator hook. Identity when the mutator is disabled.
func (c *Client) Mutate(ctx context.Context, sqlText string) (string, error) {
	if !c.mutateQuery {
		return sqlText, nil
	}
	var out struct {
		SQL string `json:"sql"`
	}
	err := c.postJSON(ctx, "/api/v1/sql/mutate", "", map[string]any{"sql": sqlText}, &out)
	if err != nil {
		return "", errors.Wrap(err, "sql mutator")
	}
	return out.SQL, nil
}

// Run executes SQL as the given principal and decodes the result frame.
func (c *Client) Run(ctx context.Context, sqlText string, deadline time.Duration, asUser string) (*query.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var frame query.Frame
	err := c.postJSON(ctx, "/api/v1/sql/execute", asUser, map[string]any{"sql": sqlText}, &frame)
	if err != nil {
		if isDeadline(err) {
			return nil, errors.Wrap(report.ErrQueryTimeout, err.Error())
		}
		return nil, errors.Wrap(report.ErrQuery, err.Error())
	}
	return &frame, nil
}

// CSV fetches a chart's result set as CSV through its saved query context.
func (c *Client) CSV(ctx context.Context, chartID int64, asUser string, deadline time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	data, err := c.get(ctx, fmt.Sprintf("/api/v1/chart/%d/data?format=csv", chartID), asUser, "text/csv")
	if err != nil {
		if isDeadline(err) {
			return nil, errors.Wrap(report.ErrCsvTimeout, err.Error())
		}
		return nil, err
	}
	return data, nil
}

// Frame fetches a chart's result set as a decoded frame.
func (c *Client) Frame(ctx context.Context, chartID int64, asUser string, deadline time.Duration) (*query.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var frame query.Frame
	err := c.postJSON(ctx, fmt.Sprintf("/api/v1/chart/%d/data", chartID), asUser, nil, &frame)
	if err != nil {
		if isDeadline(err) {
			return nil, errors.Wrap(report.ErrDataFrameTimeout, err.Error())
		}
		return nil, errors.Wrap(report.ErrDataFrameFailed, err.Error())
	}
	return &frame, nil
}

// Screenshot renders a page headlessly and returns the PNG bytes.
func (c *Client) Screenshot(ctx context.Context, url string, vp render.Viewport, asUser string, deadline time.Duration, force bool) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"url":      url,
		"viewport": vp,
		"force":    force,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal screenshot request")
	}
	data, err := c.do(ctx, http.MethodPost, "/api/v1/render/screenshot", asUser, "application/json", bytes.NewReader(body), "image/png")
	if err != nil {
		if isDeadline(err) {
			return nil, errors.Wrap(report.ErrScreenshotTimeout, err.Error())
		}
		return nil, errors.Wrap(report.ErrScreenshotFailed, err.Error())
	}
	return data, nil
}

// Create pins a dashboard's visual state and returns the permalink key.
func (c *Client) Create(ctx context.Context, dashboardID int64, state render.DashboardState) (string, error) {
	var out struct {
		Key string `json:"key"`
	}
	err := c.postJSON(ctx, fmt.Sprintf("/api/v1/dashboard/%d/permalink", dashboardID), "", state, &out)
	if err != nil {
		return "", errors.Wrap(err, "create permalink")
	}
	return out.Key, nil
}

// URLFor maps a permalink key to its user-facing URL.
func (c *Client) URLFor(key string) string {
	return fmt.Sprintf("%s/dashboard/p/%s/", c.appBaseURL, key)
}

func (c *Client) postJSON(ctx context.Context, path, asUser string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(encoded)
	}
	data, err := c.do(ctx, http.MethodPost, path, asUser, "application/json", body, "application/json")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, asUser, accept string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, asUser, "", nil, accept)
}

func (c *Client) do(ctx context.Context, method, path, asUser, contentType string, body io.Reader, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s request", path)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if asUser != "" {
		req.Header.Set(runAsHeader, asUser)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s response", path)
	}
	if resp.StatusCode >= 400 {
		c.log.Warnw("Data plane request failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
		)
		return nil, errors.Newf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return data, nil
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "context deadline exceeded")
}
