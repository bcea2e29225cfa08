package report

import (
	"github.com/quartzbi/beacon/errors"
)

// Error kinds the execution core raises or consumes. These are sentinels:
// wrap them with errors.Wrap to add context and match with errors.Is.
var (
	// ErrQuery is a non-timeout query engine failure. Retryable up to the
	// schedule's query_max_tries.
	ErrQuery = errors.New("alert query failed")

	// ErrQueryTimeout is raised when the engine soft deadline is exceeded.
	// Retried at most once, then surfaced as-is.
	ErrQueryTimeout = errors.New("a timeout occurred while executing the query")

	// Alert result shape errors. Never retried.
	ErrInvalidType     = errors.New("alert query returned a non-number value")
	ErrMultipleRows    = errors.New("alert query returned more than one row")
	ErrMultipleColumns = errors.New("alert query returned more than one column")
	ErrValidatorConfig = errors.New("alert validator config is malformed")

	// Renderer failures. Never retried.
	ErrScreenshotFailed  = errors.New("failed taking a screenshot")
	ErrScreenshotTimeout = errors.New("a timeout occurred while taking a screenshot")
	ErrPdfFailed         = errors.New("failed building a pdf")

	// CSV / embedded-dataframe path failures. Never retried.
	ErrCsvFailed       = errors.New("failed generating csv")
	ErrCsvTimeout      = errors.New("a timeout occurred while generating a csv")
	ErrDataFrameFailed = errors.New("failed generating a dataframe")
	ErrDataFrameTimeout = errors.New("a timeout occurred while generating a dataframe")

	// ErrWorkingTimeout is raised when a WORKING marker outlives the
	// schedule's working_timeout: the previous worker is presumed dead.
	ErrWorkingTimeout = errors.New("a working timeout occurred while executing the report schedule")

	// ErrPreviousWorking means a live WORKING lease was observed. The
	// dispatcher treats it as a non-fatal skip, not a failure.
	ErrPreviousWorking = errors.New("a previous report schedule execution is still working")

	// ErrNoExecutor means the executor policy list bound no identity.
	// Fatal for the tick.
	ErrNoExecutor = errors.New("no executor could be resolved for the schedule")

	// ErrStateNotFound means last_state held a value outside the state set.
	ErrStateNotFound = errors.New("report schedule state not found")
)

// ErrorNotificationMarker is the log message written before attempting an
// error notification to owners. It is replaced by the secondary error
// message when the notification itself fails.
const ErrorNotificationMarker = "Notification sent with error"

// IsRetryableQueryError reports whether a query engine failure should loop
// in the retry harness. Timeouts are retryable too, but the evaluator caps
// them at a single extra attempt.
func IsRetryableQueryError(err error) bool {
	return errors.Is(err, ErrQuery) || errors.Is(err, ErrQueryTimeout)
}
