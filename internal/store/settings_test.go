package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mixaill76/log_analyzer/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	mock, db := newMock(t)
	s := New(MySQL{}, 0, testhelpers.NewTestLogger())

	mock.ExpectQuery("SELECT name, value FROM analytics_settings").
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).
			AddRow("threshold_days", "2").
			AddRow("revisit_time", "20240110"))

	settings, err := s.LoadSettings(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		SettingThresholdDays: "2",
		SettingRevisitTime:   "20240110",
	}, settings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSettings_Error(t *testing.T) {
	mock, db := newMock(t)
	s := New(MySQL{}, 0, testhelpers.NewTestLogger())

	mock.ExpectQuery("SELECT name, value FROM analytics_settings").WillReturnError(errors.New("no table"))

	_, err := s.LoadSettings(context.Background(), db)
	assert.Error(t, err)
}

func TestDeleteSettings(t *testing.T) {
	mock, db := newMock(t)
	s := New(Postgres{}, 0, testhelpers.NewTestLogger())

	mock.ExpectExec("DELETE FROM analytics_settings WHERE name IN ($1, $2)").
		WithArgs(SettingRevisitTime, SettingRevisitFeatures).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, s.DeleteSettings(context.Background(), db, SettingRevisitTime, SettingRevisitFeatures))
	require.NoError(t, s.DeleteSettings(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadActivityMethods(t *testing.T) {
	mock, db := newMock(t)
	s := New(MySQL{}, 0, testhelpers.NewTestLogger())

	mock.ExpectQuery("SELECT activity, method FROM analytics_activity_method_map").
		WillReturnRows(sqlmock.NewRows([]string{"activity", "method"}).
			AddRow("messaging", "sendMessage").
			AddRow("social", "sendMessage").
			AddRow("messaging", "readMessage"))

	m, err := s.LoadActivityMethods(context.Background(), db)
	require.NoError(t, err)

	assert.Equal(t, []string{"messaging", "social"}, m.Activities("sendMessage"))
	assert.Equal(t, []string{"messaging"}, m.Activities("readMessage"))
	assert.Empty(t, m.Activities("unknown"))

	assert.Equal(t, map[string][]string{
		"messaging": {"readMessage", "sendMessage"},
		"social":    {"sendMessage"},
	}, m.Methods())
	assert.NoError(t, mock.ExpectationsWereMet())
}
