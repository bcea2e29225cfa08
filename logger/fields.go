package logger

// Standard field names for consistent structured logging across Beacon.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldScheduleID  = "schedule_id"
	FieldExecutionID = "execution_id"
	FieldRecipient   = "recipient"
	FieldChannel     = "channel"
	FieldPrincipal   = "principal"

	// Components
	FieldComponent = "component"

	// Operations
	FieldOperation = "operation"
	FieldAttempt   = "attempt"
	FieldState     = "state"
	FieldFormat    = "format"

	// Timing
	FieldDurationMS  = "duration_ms"
	FieldScheduledAt = "scheduled_at"
	FieldDeadline    = "deadline"

	// Errors
	FieldError    = "error"
	FieldSeverity = "severity"

	// Counts and sizes
	FieldCount     = "count"
	FieldSizeBytes = "size_bytes"
)
