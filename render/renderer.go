// Package render defines the headless renderer and permalink surfaces the
// execution core consumes. Both are external collaborators.
package render

import (
	"context"
	"encoding/json"
	"time"
)

// Viewport is the browser window size for a screenshot
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Renderer takes screenshots via a headless browser.
//
// force bypasses any renderer-side cache. Implementations return
// report.ErrScreenshotTimeout-compatible errors on deadline expiry.
// Renderer clients are per-worker singletons; they must not be shared
// across goroutines unless documented as safe.
type Renderer interface {
	Screenshot(ctx context.Context, url string, vp Viewport, asUser string, deadline time.Duration, force bool) ([]byte, error)
}

// DashboardState is the visual state a permalink pins: a single tab anchor
// and optional native filter state.
type DashboardState struct {
	Anchor        string          `json:"anchor,omitempty"`
	NativeFilters json.RawMessage `json:"native_filters,omitempty"`
}

// PermalinkService creates stable URLs for dashboards in a specific
// visual state.
type PermalinkService interface {
	Create(ctx context.Context, dashboardID int64, state DashboardState) (string, error)
	URLFor(key string) string
}
