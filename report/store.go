package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/quartzbi/beacon/errors"
)

// ScheduleStore is the read/write surface the execution core needs.
// CRUD of schedule definitions belongs to the management API and is out of
// scope; CreateSchedule exists for seeding and tests.
type ScheduleStore interface {
	FindByID(ctx context.Context, id int64) (*Schedule, error)
	ListActive(ctx context.Context) ([]*Schedule, error)
	UpdateState(ctx context.Context, id int64, state State, value *float64, valueRowJSON string, lastEvalAt time.Time) error
}

// Store handles persistence of report schedules
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const scheduleColumns = `
	id, name, description, kind, crontab, timezone, active,
	chart_id, dashboard_id, database_id, sql,
	report_format, email_subject, validator_type, validator_config_json,
	creator, grace_period, working_timeout, query_max_tries,
	custom_width, force_screenshot, extra_json,
	last_state, last_value, last_value_row_json, last_eval_at,
	created_at, updated_at`

// CreateSchedule inserts a schedule with its recipients and owners.
func (s *Store) CreateSchedule(ctx context.Context, sched *Schedule) error {
	now := time.Now().UTC()
	sched.CreatedAt = now
	sched.UpdatedAt = now

	var validatorType, validatorConfig interface{}
	if sched.Validator != nil {
		validatorType = string(sched.Validator.Type)
		cfg, err := json.Marshal(sched.Validator)
		if err != nil {
			return errors.Wrap(err, "failed to marshal validator config")
		}
		validatorConfig = string(cfg)
	}

	var extraJSON interface{}
	if sched.Extra != nil {
		raw, err := json.Marshal(sched.Extra)
		if err != nil {
			return errors.Wrap(err, "failed to marshal extra")
		}
		extraJSON = string(raw)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO report_schedules (
			name, description, kind, crontab, timezone, active,
			chart_id, dashboard_id, database_id, sql,
			report_format, email_subject, validator_type, validator_config_json,
			creator, grace_period, working_timeout, query_max_tries,
			custom_width, force_screenshot, extra_json,
			last_state, last_value, last_value_row_json, last_eval_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sched.Name,
		nullIfEmpty(sched.Description),
		string(sched.Kind),
		sched.Crontab,
		sched.Timezone,
		sched.Active,
		sched.ChartID,
		sched.DashboardID,
		sched.DatabaseID,
		nullIfEmpty(sched.SQL),
		string(sched.Format),
		nullIfEmpty(sched.EmailSubject),
		validatorType,
		validatorConfig,
		nullIfEmpty(sched.Creator),
		sched.GracePeriodSeconds,
		sched.WorkingTimeoutSeconds,
		sched.QueryMaxTries,
		sched.CustomWidth,
		sched.ForceScreenshot,
		extraJSON,
		nullIfEmpty(string(sched.LastState)),
		sched.LastValue,
		nullIfEmpty(sched.LastValueRowJSON),
		timeOrNil(sched.LastEvalAt),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create schedule")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read schedule id")
	}
	sched.ID = id

	for i, rcpt := range sched.Recipients {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO report_recipients (schedule_id, position, type, config_json, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, id, i, string(rcpt.Type), rcpt.ConfigJSON, now.Format(time.RFC3339))
		if err != nil {
			return errors.Wrapf(err, "failed to create recipient %d for schedule %d", i, id)
		}
		rcptID, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "failed to read recipient id")
		}
		sched.Recipients[i].ID = rcptID
	}

	for _, owner := range sched.Owners {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO report_owners (schedule_id, username, email)
			VALUES (?, ?, ?)
		`, id, owner.Username, nullIfEmpty(owner.Email)); err != nil {
			return errors.Wrapf(err, "failed to create owner %s for schedule %d", owner.Username, id)
		}
	}

	return errors.Wrap(tx.Commit(), "commit schedule create")
}

// FindByID retrieves a schedule by id, with recipients and owners loaded.
func (s *Store) FindByID(ctx context.Context, id int64) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM report_schedules WHERE id = ?`, id)

	sched, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "schedule %d", id)
		}
		return nil, errors.Wrapf(err, "failed to get schedule %d", id)
	}

	if err := s.loadRecipients(ctx, sched); err != nil {
		return nil, err
	}
	if err := s.loadOwners(ctx, sched); err != nil {
		return nil, err
	}

	return sched, nil
}

// ListActive returns all active schedules with recipients and owners loaded.
// Cron due-evaluation happens in the trigger, not in SQL.
func (s *Store) ListActive(ctx context.Context) ([]*Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM report_schedules
		WHERE active = 1
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active schedules")
	}
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan schedule")
		}
		schedules = append(schedules, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating schedules")
	}

	for _, sched := range schedules {
		if err := s.loadRecipients(ctx, sched); err != nil {
			return nil, err
		}
		if err := s.loadOwners(ctx, sched); err != nil {
			return nil, err
		}
	}

	return schedules, nil
}

// UpdateState writes the last_* columns back to the schedule row.
// Transitioning into WORKING clears last_value and last_value_row_json so
// stale observations never leak into the new execution's log entries.
func (s *Store) UpdateState(ctx context.Context, id int64, state State, value *float64, valueRowJSON string, lastEvalAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE report_schedules
		SET last_state = ?,
		    last_value = ?,
		    last_value_row_json = ?,
		    last_eval_at = ?,
		    updated_at = ?
		WHERE id = ?
	`,
		string(state),
		value,
		nullIfEmpty(valueRowJSON),
		lastEvalAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update state for schedule %d", id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "schedule %d", id)
	}

	return nil
}

func (s *Store) loadRecipients(ctx context.Context, sched *Schedule) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, config_json
		FROM report_recipients
		WHERE schedule_id = ?
		ORDER BY position ASC
	`, sched.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to load recipients for schedule %d", sched.ID)
	}
	defer rows.Close()

	sched.Recipients = nil
	for rows.Next() {
		var rcpt Recipient
		var rcptType string
		if err := rows.Scan(&rcpt.ID, &rcptType, &rcpt.ConfigJSON); err != nil {
			return errors.Wrapf(err, "failed to scan recipient for schedule %d", sched.ID)
		}
		rcpt.Type = RecipientType(rcptType)
		sched.Recipients = append(sched.Recipients, rcpt)
	}
	return rows.Err()
}

func (s *Store) loadOwners(ctx context.Context, sched *Schedule) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, email
		FROM report_owners
		WHERE schedule_id = ?
		ORDER BY username ASC
	`, sched.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to load owners for schedule %d", sched.ID)
	}
	defer rows.Close()

	sched.Owners = nil
	for rows.Next() {
		var owner Owner
		var email sql.NullString
		if err := rows.Scan(&owner.Username, &email); err != nil {
			return errors.Wrapf(err, "failed to scan owner for schedule %d", sched.ID)
		}
		if email.Valid {
			owner.Email = email.String
		}
		sched.Owners = append(sched.Owners, owner)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var sched Schedule
	var kind, format string
	var description, sqlText, emailSubject, creator sql.NullString
	var validatorType, validatorConfig, extraJSON sql.NullString
	var lastState, lastValueRowJSON, lastEvalAt sql.NullString
	var lastValue sql.NullFloat64
	var customWidth sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(
		&sched.ID,
		&sched.Name,
		&description,
		&kind,
		&sched.Crontab,
		&sched.Timezone,
		&sched.Active,
		&sched.ChartID,
		&sched.DashboardID,
		&sched.DatabaseID,
		&sqlText,
		&format,
		&emailSubject,
		&validatorType,
		&validatorConfig,
		&creator,
		&sched.GracePeriodSeconds,
		&sched.WorkingTimeoutSeconds,
		&sched.QueryMaxTries,
		&customWidth,
		&sched.ForceScreenshot,
		&extraJSON,
		&lastState,
		&lastValue,
		&lastValueRowJSON,
		&lastEvalAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sched.Kind = Kind(kind)
	sched.Format = Format(format)
	if description.Valid {
		sched.Description = description.String
	}
	if sqlText.Valid {
		sched.SQL = sqlText.String
	}
	if emailSubject.Valid {
		sched.EmailSubject = emailSubject.String
	}
	if creator.Valid {
		sched.Creator = creator.String
	}
	if validatorConfig.Valid {
		var validator ValidatorConfig
		if err := json.Unmarshal([]byte(validatorConfig.String), &validator); err != nil {
			return nil, errors.Wrapf(ErrValidatorConfig, "schedule %d: %v", sched.ID, err)
		}
		sched.Validator = &validator
	} else if validatorType.Valid {
		sched.Validator = &ValidatorConfig{Type: ValidatorType(validatorType.String)}
	}
	if customWidth.Valid {
		w := int(customWidth.Int64)
		sched.CustomWidth = &w
	}
	if extraJSON.Valid {
		var extra Extra
		if err := json.Unmarshal([]byte(extraJSON.String), &extra); err != nil {
			return nil, errors.Wrapf(err, "failed to parse extra for schedule %d", sched.ID)
		}
		sched.Extra = &extra
	}
	if lastState.Valid {
		sched.LastState = State(lastState.String)
	}
	if lastValue.Valid {
		sched.LastValue = &lastValue.Float64
	}
	if lastValueRowJSON.Valid {
		sched.LastValueRowJSON = lastValueRowJSON.String
	}
	if lastEvalAt.Valid {
		t, err := time.Parse(time.RFC3339, lastEvalAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse last_eval_at for schedule %d", sched.ID)
		}
		sched.LastEvalAt = &t
	}

	sched.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for schedule %d", sched.ID)
	}
	sched.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for schedule %d", sched.ID)
	}

	return &sched, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func timeOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
