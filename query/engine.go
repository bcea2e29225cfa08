// Package query defines the query engine surface the execution core
// consumes. The engine itself is an external collaborator.
package query

import (
	"context"
	"time"
)

// Frame is a small tabular result: named value columns and row-major cells.
// The row index is not materialized as a column.
type Frame struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Empty reports whether the frame has no rows
func (f *Frame) Empty() bool {
	return f == nil || len(f.Rows) == 0
}

// Engine executes SQL against one of the platform's databases.
//
// ApplyLimit rewrites the statement with a hard row limit. Mutate applies
// the optional site-wide SQL mutator and must be the identity when the
// mutator is disabled. Run executes with a soft deadline as the given
// principal; implementations return report.ErrQueryTimeout-compatible
// errors on deadline expiry.
type Engine interface {
	ApplyLimit(sqlText string, limit int) string
	Mutate(ctx context.Context, sqlText string) (string, error)
	Run(ctx context.Context, sqlText string, deadline time.Duration, asUser string) (*Frame, error)
}
