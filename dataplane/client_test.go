package dataplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/query"
	"github.com/quartzbi/beacon/render"
	"github.com/quartzbi/beacon/report"
)

func newTestClient(serverURL string) *Client {
	cfg := config.DataPlaneConfig{
		APIBaseURL:     serverURL,
		ServiceToken:   "svc-token",
		TimeoutSeconds: 5,
	}
	return NewClient(cfg, "https://bi.example.com", false, zap.NewNop().Sugar())
}

func TestApplyLimitWrapsStatement(t *testing.T) {
	c := newTestClient("http://unused")
	got := c.ApplyLimit("SELECT value FROM metrics;", 2)
	assert.Equal(t, "SELECT * FROM (SELECT value FROM metrics) AS inner__ LIMIT 2", got)
}

func TestMutateIsIdentityWhenDisabled(t *testing.T) {
	c := newTestClient("http://unused")
	got, err := c.Mutate(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got)
}

func TestMutateAppliesMutatorWhenEnabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sql/mutate", r.URL.Path)

		var req struct {
			SQL string `json:"sql"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "SELECT 1", req.SQL)

		json.NewEncoder(w).Encode(map[string]string{"sql": "SELECT 1 -- mutated"})
	}))
	defer server.Close()

	cfg := config.DataPlaneConfig{
		APIBaseURL:     server.URL,
		ServiceToken:   "svc-token",
		TimeoutSeconds: 5,
	}
	c := NewClient(cfg, "https://bi.example.com", true, zap.NewNop().Sugar())

	got, err := c.Mutate(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 -- mutated", got)
}

func TestMutateHonorsCallerContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"sql": "SELECT 1"})
	}))
	defer server.Close()

	cfg := config.DataPlaneConfig{
		APIBaseURL:     server.URL,
		ServiceToken:   "svc-token",
		TimeoutSeconds: 5,
	}
	c := NewClient(cfg, "https://bi.example.com", true, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Mutate(ctx, "SELECT 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunDecodesFrameAndSetsHeaders(t *testing.T) {
	var gotAuth, gotRunAs string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRunAs = r.Header.Get("X-Run-As")

		var req struct {
			SQL string `json:"sql"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "SELECT 1", req.SQL)

		json.NewEncoder(w).Encode(query.Frame{
			Columns: []string{"value"},
			Rows:    [][]any{{42.0}},
		})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	frame, err := c.Run(context.Background(), "SELECT 1", time.Minute, "ada")
	require.NoError(t, err)

	assert.Equal(t, "Bearer svc-token", gotAuth)
	assert.Equal(t, "ada", gotRunAs)
	require.Len(t, frame.Rows, 1)
	assert.Equal(t, 42.0, frame.Rows[0][0])
}

func TestRunServerErrorIsQueryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Run(context.Background(), "SELECT 1", time.Minute, "ada")
	require.Error(t, err)
	assert.True(t, errors.Is(err, report.ErrQuery))
	assert.False(t, errors.Is(err, report.ErrQueryTimeout))
}

func TestRunDeadlineIsQueryTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Run(context.Background(), "SELECT 1", 10*time.Millisecond, "ada")
	require.Error(t, err)
	assert.True(t, errors.Is(err, report.ErrQueryTimeout))
}

func TestScreenshotSendsViewportAndForce(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL      string          `json:"url"`
			Viewport render.Viewport `json:"viewport"`
			Force    bool            `json:"force"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://bi.example.com/explore/?slice_id=11", req.URL)
		assert.Equal(t, 800, req.Viewport.Width)
		assert.True(t, req.Force)

		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	data, err := c.Screenshot(context.Background(),
		"https://bi.example.com/explore/?slice_id=11",
		render.Viewport{Width: 800, Height: 600},
		"ada", time.Minute, true)
	require.NoError(t, err)
	assert.Equal(t, png, data)
}

func TestScreenshotFailureKeepsKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "renderer crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Screenshot(context.Background(), "https://x", render.Viewport{Width: 1, Height: 1}, "ada", time.Minute, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, report.ErrScreenshotFailed))
}

func TestCSVRequestsCsvFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "csv", r.URL.Query().Get("format"))
		w.Write([]byte("value\n42\n"))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	data, err := c.CSV(context.Background(), 11, "ada", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "value\n42\n", string(data))
}

func TestPermalinkRoundtrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/api/v1/dashboard/7/permalink")

		var state render.DashboardState
		require.NoError(t, json.NewDecoder(r.Body).Decode(&state))
		assert.Equal(t, "tab-2", state.Anchor)

		json.NewEncoder(w).Encode(map[string]string{"key": "abc123"})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	key, err := c.Create(context.Background(), 7, render.DashboardState{Anchor: "tab-2"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)

	// Permalink URLs point at the user-facing UI, not the internal API
	assert.Equal(t, "https://bi.example.com/dashboard/p/abc123/", c.URLFor("abc123"))
}
