package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mixaill76/log_analyzer/internal/security"
)

// Config holds database connection settings.
type Config struct {
	Driver         string
	Host           string
	Port           int
	Name           string
	User           string
	Password       string
	ConnectTimeout time.Duration
	// ConnectRetries bounds the startup ping retries.
	ConnectRetries uint64
	MaxConns       int32

	Logger *slog.Logger
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if d, err := DialectFor(c.Driver); err == nil {
		c.Driver = d.Name()
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		switch c.Driver {
		case DriverPostgres:
			c.Port = 5432
		default:
			c.Port = 3306
		}
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ConnectRetries == 0 {
		c.ConnectRetries = 5
	}
	if c.MaxConns == 0 {
		c.MaxConns = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks the connection settings.
func (c *Config) Validate() error {
	if _, err := DialectFor(c.Driver); err != nil {
		return err
	}
	if c.Name == "" {
		return fmt.Errorf("%w: database name is required", ErrNotConfigured)
	}
	if c.User == "" {
		return fmt.Errorf("%w: database user is required", ErrNotConfigured)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrNotConfigured, c.Port)
	}
	return nil
}

func (c *Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL returns the connection settings as a URL. It is the PostgreSQL DSN
// and the logged form of the MySQL settings.
func (c *Config) URL() string {
	u := url.URL{
		Scheme: c.Driver,
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.addr(),
		Path:   "/" + c.Name,
	}
	return u.String()
}

// MySQLConfig returns the driver configuration for MySQL.
func (c *Config) MySQLConfig() *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = c.addr()
	mc.DBName = c.Name
	mc.Timeout = c.ConnectTimeout
	return mc
}

// DB is an open database handle together with its dialect.
type DB struct {
	*sql.DB

	dialect Dialect
	pool    *pgxpool.Pool
	logger  *slog.Logger
}

// Open connects to the configured database and pings it, retrying with
// exponential backoff up to cfg.ConnectRetries times.
func Open(ctx context.Context, cfg *Config) (*DB, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialect, _ := DialectFor(cfg.Driver)

	db := &DB{dialect: dialect, logger: cfg.Logger}

	switch dialect.Name() {
	case DriverPostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.URL())
		if err != nil {
			return nil, fmt.Errorf("store: invalid database URL: %w", err)
		}
		poolConfig.MaxConns = cfg.MaxConns
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
		poolConfig.ConnConfig.OnNotice = func(c *pgconn.PgConn, n *pgconn.Notice) {
			cfg.Logger.Debug("PostgreSQL notice",
				"severity", n.Severity,
				"message", n.Message,
			)
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("store: failed to connect: %w", err)
		}
		db.pool = pool
		db.DB = stdlib.OpenDBFromPool(pool)

	default:
		connector, err := mysql.NewConnector(cfg.MySQLConfig())
		if err != nil {
			return nil, fmt.Errorf("store: invalid mysql config: %w", err)
		}
		db.DB = sql.OpenDB(connector)
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.ConnectRetries), ctx)
	err := backoff.RetryNotify(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	}, b, func(err error, next time.Duration) {
		cfg.Logger.Warn("Database ping failed, retrying",
			"error", err,
			"retry_in", next.String(),
		)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}

	cfg.Logger.Info("Database connection initialized",
		"driver", dialect.Name(),
		"max_conns", cfg.MaxConns,
		"database", security.MaskDatabaseURL(cfg.URL()),
	)
	return db, nil
}

// NewDB wraps an already open handle.
func NewDB(sqlDB *sql.DB, dialect Dialect, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{DB: sqlDB, dialect: dialect, logger: logger}
}

// Dialect returns the dialect of the connected database.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Close closes the handle and, for PostgreSQL, the underlying pool.
func (db *DB) Close() error {
	err := db.DB.Close()
	if db.pool != nil {
		db.pool.Close()
	}
	return err
}
