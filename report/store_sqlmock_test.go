package report

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzbi/beacon/errors"
)

// Minimal sqlmock tests for store error paths the sqlite-backed tests
// cannot provoke.

func TestUpdateStateMissingScheduleIsNotFound(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("UPDATE report_schedules").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(conn)
	err = store.UpdateState(context.Background(), 404, StateSuccess, nil, "", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatePropagatesExecError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("UPDATE report_schedules").
		WillReturnError(errors.New("database is locked"))

	store := NewStore(conn)
	err = store.UpdateState(context.Background(), 1, StateError, nil, "", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDPropagatesQueryError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT .+ FROM report_schedules WHERE id").
		WillReturnError(errors.New("disk I/O error"))

	store := NewStore(conn)
	_, err = store.FindByID(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActivePropagatesQueryError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT .+ FROM report_schedules").
		WillReturnError(errors.New("disk I/O error"))

	store := NewStore(conn)
	_, err = store.ListActive(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendPropagatesExecError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("INSERT INTO report_execution_log").
		WillReturnError(errors.New("constraint failed"))

	logs := NewLogStore(conn)
	err = logs.Append(context.Background(), &ExecutionLogEntry{
		ScheduleID:  1,
		ExecutionID: "exec-1",
		State:       StateWorking,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
