package analyzer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mixaill76/log_analyzer/internal/archive"
	"github.com/mixaill76/log_analyzer/internal/monitoring"
	"github.com/mixaill76/log_analyzer/internal/processor"
	"github.com/mixaill76/log_analyzer/internal/revisit"
	"github.com/mixaill76/log_analyzer/internal/store"
	"github.com/mixaill76/log_analyzer/internal/testhelpers"
	"github.com/mixaill76/log_analyzer/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 1, 16, 10, 15, 0, 0, time.UTC)

func newAnalyzer(t *testing.T) (*Analyzer, sqlmock.Sqlmock, *archive.Layout) {
	t.Helper()
	db, mock := testhelpers.NewMockDB(t)
	logger := testhelpers.NewTestLogger()

	layout, err := archive.Resolve(testhelpers.NewLogDir(t), time.UTC, logger)
	require.NoError(t, err)

	a, err := New(Options{
		DB:       db,
		Store:    store.New(store.MySQL{}, 0, logger),
		Layout:   layout,
		Location: time.UTC,
		Metrics:  monitoring.New(true),
		Logger:   logger,
		Clock:    utils.FixedClock(now),
	})
	require.NoError(t, err)
	return a, mock, layout
}

func expectSettings(mock sqlmock.Sqlmock, settings map[string]string) {
	rows := sqlmock.NewRows([]string{"name", "value"})
	for k, v := range settings {
		rows.AddRow(k, v)
	}
	mock.ExpectQuery("SELECT name, value FROM analytics_settings").WillReturnRows(rows)
	mock.ExpectQuery("SELECT activity, method FROM analytics_activity_method_map").
		WillReturnRows(sqlmock.NewRows([]string{"activity", "method"}).
			AddRow("messaging", "sendMessage"))
}

func TestNew_MissingOptions(t *testing.T) {
	db, _ := testhelpers.NewMockDB(t)
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrMissingOption)

	_, err = New(Options{DB: db})
	assert.ErrorIs(t, err, ErrMissingOption)

	_, err = New(Options{DB: db, Store: store.New(store.MySQL{}, 0, nil)})
	assert.ErrorIs(t, err, ErrMissingOption)
}

func TestRunCycle_ProcessesPendingFiles(t *testing.T) {
	a, mock, layout := newAnalyzer(t)
	mod := time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC)
	testhelpers.WriteLogFile(t, layout.Current, "1705329000000-1", mod,
		"20240115143000123 INFO - R req1 sendMessage extra",
		"20240115143000123 DEBUG noise",
	)
	testhelpers.WriteLogFile(t, layout.Current, "1705329000000-2", mod,
		"20240115150000000 INFO - R req1 sendMessage extra",
	)

	expectSettings(mock, nil)
	mock.ExpectBegin()
	mock.ExpectExec(store.MySQL{}.Upsert(store.ActivityCountTable, 1)).
		WithArgs("messaging", int64(2024011514), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(store.MySQL{}.Upsert(store.MethodCountTable, 1)).
		WithArgs("sendMessage", int64(2024011514), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	report, err := a.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Revisited)
	require.Len(t, report.Files, 1)
	assert.Equal(t, processor.Committed, report.Files[0].State)
	assert.Equal(t, int64(2), report.Files[0].LinesRead)
	assert.Equal(t, int64(1), report.Files[0].LinesMatched)
	assert.Equal(t, 1, report.Committed())

	assert.FileExists(t, filepath.Join(layout.Archive, "2024-01", "1705329000000-1"))
	assert.FileExists(t, filepath.Join(layout.Current, "1705329000000-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunCycle_RevisitFailureDoesNotStopCycle(t *testing.T) {
	a, mock, _ := newAnalyzer(t)

	expectSettings(mock, map[string]string{
		store.SettingRevisitTime:     "20240115",
		store.SettingRevisitFeatures: "MethodCount",
	})
	dbErr := errors.New("lock wait timeout")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM analytics_method_count WHERE time >= ? AND time < ?").
		WillReturnError(dbErr)
	mock.ExpectRollback()

	report, err := a.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Revisited)
	assert.ErrorIs(t, report.RevisitErr, revisit.ErrRevisitAborted)
	assert.ErrorIs(t, report.RevisitErr, dbErr)
	assert.Empty(t, report.Files)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunCycle_SettingsFailure(t *testing.T) {
	a, mock, _ := newAnalyzer(t)

	dbErr := errors.New("connection refused")
	mock.ExpectQuery("SELECT name, value FROM analytics_settings").
		WillReturnError(dbErr)

	_, err := a.RunCycle(context.Background())
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCycleReport_Committed(t *testing.T) {
	r := CycleReport{Files: []processor.Result{
		{State: processor.Committed},
		{State: processor.RolledBack},
		{State: processor.Committed},
	}}
	assert.Equal(t, 2, r.Committed())
}
