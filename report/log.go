package report

import (
	"context"
	"database/sql"
	"time"

	"github.com/quartzbi/beacon/errors"
)

// ExecutionLogEntry is one durable record of a state transition during a
// tick. Entries for one execution_id are totally ordered by EndedAt.
type ExecutionLogEntry struct {
	ID           int64     `json:"id"`
	ScheduleID   int64     `json:"schedule_id"`
	ExecutionID  string    `json:"execution_id"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	State        State     `json:"state"`
	Value        *float64  `json:"value,omitempty"`
	ValueRowJSON string    `json:"value_row_json,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// ExecutionLogStore is the audit-log surface the state machine writes
// through and queries for grace/stall decisions.
type ExecutionLogStore interface {
	Append(ctx context.Context, entry *ExecutionLogEntry) error
	FindLast(ctx context.Context, scheduleID int64, state State) (*ExecutionLogEntry, error)
	FindLastEnteredWorking(ctx context.Context, scheduleID int64) (*ExecutionLogEntry, error)
	FindLastErrorNotification(ctx context.Context, scheduleID int64) (*ExecutionLogEntry, error)
}

// LogStore persists execution log entries in SQLite
type LogStore struct {
	db *sql.DB
}

// NewLogStore creates a new execution log store
func NewLogStore(db *sql.DB) *LogStore {
	return &LogStore{db: db}
}

// Append writes a log entry. A re-write of the same
// (schedule_id, execution_id, state) tuple replaces the previous entry;
// this is how the second ERROR write of a tick records the outcome of the
// error notification without violating the append-only invariant across
// distinct execution ids.
func (s *LogStore) Append(ctx context.Context, entry *ExecutionLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_execution_log (
			schedule_id, execution_id, scheduled_at, started_at, ended_at,
			state, value, value_row_json, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(schedule_id, execution_id, state) DO UPDATE SET
			ended_at = excluded.ended_at,
			value = excluded.value,
			value_row_json = excluded.value_row_json,
			error_message = excluded.error_message
	`,
		entry.ScheduleID,
		entry.ExecutionID,
		entry.ScheduledAt.UTC().Format(time.RFC3339),
		entry.StartedAt.UTC().Format(time.RFC3339),
		entry.EndedAt.UTC().Format(time.RFC3339),
		string(entry.State),
		entry.Value,
		nullIfEmpty(entry.ValueRowJSON),
		nullIfEmpty(entry.ErrorMessage),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to append execution log for schedule %d", entry.ScheduleID)
	}
	return nil
}

// FindLast returns the most recent log entry for a schedule in the given
// state, or nil when none exists. This is the point query behind
// find_last_success, find_last_error_notification and
// find_last_entered_working.
func (s *LogStore) FindLast(ctx context.Context, scheduleID int64, state State) (*ExecutionLogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, execution_id, scheduled_at, started_at, ended_at,
		       state, value, value_row_json, error_message
		FROM report_execution_log
		WHERE schedule_id = ? AND state = ?
		ORDER BY ended_at DESC, id DESC
		LIMIT 1
	`, scheduleID, string(state))

	entry, err := scanLogEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to find last %s entry for schedule %d", state, scheduleID)
	}
	return entry, nil
}

// FindLastEnteredWorking returns the most recent WORKING entry written by
// a worker taking the lease, or nil. Skip ticks also log WORKING but carry
// an error message, so the lease entry is the one with none; anchoring the
// stall clock there keeps frequent skip ticks from refreshing it.
func (s *LogStore) FindLastEnteredWorking(ctx context.Context, scheduleID int64) (*ExecutionLogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, execution_id, scheduled_at, started_at, ended_at,
		       state, value, value_row_json, error_message
		FROM report_execution_log
		WHERE schedule_id = ? AND state = ? AND error_message IS NULL
		ORDER BY ended_at DESC, id DESC
		LIMIT 1
	`, scheduleID, string(StateWorking))

	entry, err := scanLogEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to find last entered-working entry for schedule %d", scheduleID)
	}
	return entry, nil
}

// FindLastErrorNotification returns the most recent ERROR entry whose
// message still carries the error-notification marker, or nil. The marker
// survives only when the owner notification itself did not fail, so this
// anchors the error-grace window.
func (s *LogStore) FindLastErrorNotification(ctx context.Context, scheduleID int64) (*ExecutionLogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, execution_id, scheduled_at, started_at, ended_at,
		       state, value, value_row_json, error_message
		FROM report_execution_log
		WHERE schedule_id = ? AND state = ? AND error_message = ?
		ORDER BY ended_at DESC, id DESC
		LIMIT 1
	`, scheduleID, string(StateError), ErrorNotificationMarker)

	entry, err := scanLogEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to find last error notification for schedule %d", scheduleID)
	}
	return entry, nil
}

// ListForExecution returns all entries of one execution ordered by end time.
func (s *LogStore) ListForExecution(ctx context.Context, scheduleID int64, executionID string) ([]*ExecutionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, execution_id, scheduled_at, started_at, ended_at,
		       state, value, value_row_json, error_message
		FROM report_execution_log
		WHERE schedule_id = ? AND execution_id = ?
		ORDER BY ended_at ASC, id ASC
	`, scheduleID, executionID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list log entries for execution %s", executionID)
	}
	defer rows.Close()

	var entries []*ExecutionLogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution log entry")
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountByState returns log entry counts grouped by state, for operator
// inspection.
func (s *LogStore) CountByState(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, COUNT(*)
		FROM report_execution_log
		GROUP BY state
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count execution log entries")
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan log count row")
		}
		counts[State(state)] = count
	}
	return counts, rows.Err()
}

func scanLogEntry(row rowScanner) (*ExecutionLogEntry, error) {
	var entry ExecutionLogEntry
	var scheduledAt, startedAt, endedAt, state string
	var value sql.NullFloat64
	var valueRowJSON, errorMessage sql.NullString

	err := row.Scan(
		&entry.ID,
		&entry.ScheduleID,
		&entry.ExecutionID,
		&scheduledAt,
		&startedAt,
		&endedAt,
		&state,
		&value,
		&valueRowJSON,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	entry.State = State(state)
	if value.Valid {
		entry.Value = &value.Float64
	}
	if valueRowJSON.Valid {
		entry.ValueRowJSON = valueRowJSON.String
	}
	if errorMessage.Valid {
		entry.ErrorMessage = errorMessage.String
	}

	if entry.ScheduledAt, err = time.Parse(time.RFC3339, scheduledAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse scheduled_at for log entry %d", entry.ID)
	}
	if entry.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse started_at for log entry %d", entry.ID)
	}
	if entry.EndedAt, err = time.Parse(time.RFC3339, endedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse ended_at for log entry %d", entry.ID)
	}

	return &entry, nil
}
