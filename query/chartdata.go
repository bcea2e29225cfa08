package query

import (
	"context"
	"time"
)

// ChartData fetches a chart's result set through its saved query context.
// A chart that has never been rendered may have no persisted query context;
// callers recover from that by forcing one renderer pass and retrying.
type ChartData interface {
	CSV(ctx context.Context, chartID int64, asUser string, deadline time.Duration) ([]byte, error)
	Frame(ctx context.Context, chartID int64, asUser string, deadline time.Duration) (*Frame, error)
}
