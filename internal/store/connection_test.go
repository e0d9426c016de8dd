package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mixaill76/log_analyzer/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{Name: "analytics", User: "analyzer"}
	cfg.ApplyDefaults()

	assert.Equal(t, DriverMySQL, cfg.Driver)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 3306, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, uint64(5), cfg.ConnectRetries)
	assert.Equal(t, int32(4), cfg.MaxConns)
	assert.NotNil(t, cfg.Logger)

	pg := &Config{Driver: "postgresql", Name: "analytics", User: "analyzer"}
	pg.ApplyDefaults()
	assert.Equal(t, DriverPostgres, pg.Driver)
	assert.Equal(t, 5432, pg.Port)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"valid", Config{Driver: "mysql", Name: "a", User: "u", Port: 3306}, nil},
		{"unknown driver", Config{Driver: "oracle", Name: "a", User: "u", Port: 1}, ErrUnknownDriver},
		{"missing name", Config{Driver: "mysql", User: "u", Port: 3306}, ErrNotConfigured},
		{"missing user", Config{Driver: "mysql", Name: "a", Port: 3306}, ErrNotConfigured},
		{"bad port", Config{Driver: "mysql", Name: "a", User: "u", Port: 70000}, ErrNotConfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfig_URL(t *testing.T) {
	cfg := &Config{Driver: DriverPostgres, Host: "db", Port: 5432, Name: "analytics", User: "analyzer", Password: "p@ss"}
	assert.Equal(t, "postgres://analyzer:p%40ss@db:5432/analytics", cfg.URL())
	assert.Equal(t, "postgres://analyzer:***@db:5432/analytics", security.MaskDatabaseURL(cfg.URL()))
}

func TestConfig_MySQLConfig(t *testing.T) {
	cfg := &Config{Driver: DriverMySQL, Host: "db", Port: 3307, Name: "analytics", User: "analyzer", Password: "secret", ConnectTimeout: 3 * time.Second}
	mc := cfg.MySQLConfig()

	assert.Equal(t, "tcp", mc.Net)
	assert.Equal(t, "db:3307", mc.Addr)
	assert.Equal(t, "analytics", mc.DBName)
	assert.Equal(t, "analyzer", mc.User)
	assert.Equal(t, "secret", mc.Passwd)
	assert.Equal(t, 3*time.Second, mc.Timeout)
}

func TestSchema(t *testing.T) {
	for _, d := range []Dialect{MySQL{}, Postgres{}} {
		t.Run(d.Name(), func(t *testing.T) {
			stmts, err := Schema(d)
			require.NoError(t, err)
			assert.Len(t, stmts, 12)
			for _, stmt := range stmts {
				assert.Contains(t, stmt, "CREATE TABLE IF NOT EXISTS")
			}
		})
	}
}

func TestInitSchema(t *testing.T) {
	mock, q := newMock(t)
	db := NewDB(q.(*sql.DB), Postgres{}, nil)
	assert.Equal(t, DriverPostgres, db.Dialect().Name())

	stmts, err := Schema(Postgres{})
	require.NoError(t, err)
	for _, stmt := range stmts {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, db.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchema_Error(t *testing.T) {
	mock, q := newMock(t)
	db := NewDB(q.(*sql.DB), MySQL{}, nil)

	stmts, err := Schema(MySQL{})
	require.NoError(t, err)
	mock.ExpectExec(stmts[0]).WillReturnError(errors.New("access denied"))

	err = db.InitSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init schema")
	assert.NoError(t, mock.ExpectationsWereMet())
}
