package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func validConfig() *Config {
	cfg := &Config{
		Dir: "/var/log/app",
		Database: DatabaseConfig{
			Driver: "mysql",
			Name:   "analytics",
			User:   "analyzer",
		},
	}
	cfg.Normalize()
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("TEST_ANALYZER_DB_PASSWORD", "s3cr3t")

	path := writeConfig(t, `
dir: /var/log/app
timezone: Europe/Moscow
database:
  driver: postgres
  host: db.internal
  port: 5433
  name: analytics
  user: analyzer
  password: os.environ/TEST_ANALYZER_DB_PASSWORD
  connect_timeout: 5s
  init_schema: true
scheduler:
  minute_offset: 30
aggregation:
  batch_limit: 500
  dedup_cache_days: 2
logging:
  level: DEBUG
  format: json
monitoring:
  prometheus_enabled: true
  listen: ":9100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/log/app", cfg.Dir)
	assert.Equal(t, "Europe/Moscow", cfg.Location().String())

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "analytics", cfg.Database.Name)
	assert.Equal(t, "analyzer", cfg.Database.User)
	assert.Equal(t, "s3cr3t", cfg.Database.Password)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)
	assert.True(t, cfg.Database.InitSchema)

	assert.Equal(t, 30, cfg.MinuteOffset())
	assert.Equal(t, 500, cfg.Aggregation.BatchLimit)
	assert.Equal(t, 2, cfg.Aggregation.DedupCacheDays)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Monitoring.PrometheusEnabled)
	assert.Equal(t, ":9100", cfg.Monitoring.Listen)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
dir: /var/log/app
database:
  name: analytics
  user: analyzer
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.Equal(t, time.Local, cfg.Location())
	assert.Equal(t, "", cfg.Database.Driver)
	assert.Equal(t, 0, cfg.Database.Port)
	assert.False(t, cfg.Database.InitSchema)
	assert.Equal(t, 15, cfg.MinuteOffset())
	assert.Equal(t, DefaultBatchLimit, cfg.Aggregation.BatchLimit)
	assert.Equal(t, DefaultDedupCacheDays, cfg.Aggregation.DedupCacheDays)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Monitoring.PrometheusEnabled)
	assert.Equal(t, DefaultListen, cfg.Monitoring.Listen)

	sc := cfg.StoreConfig(nil)
	sc.ApplyDefaults()
	assert.Equal(t, "mysql", sc.Driver)
	assert.Equal(t, 3306, sc.Port)
}

func TestLoad_ZeroMinuteOffsetKept(t *testing.T) {
	path := writeConfig(t, `
dir: /var/log/app
database:
  name: analytics
  user: analyzer
scheduler:
  minute_offset: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MinuteOffset())
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
dir: /var/log/app
database:
  name: [unclosed
`)

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_InvalidDatabaseField(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		wantErr string
	}{
		{"port", "port: abc", "invalid database.port"},
		{"connect_timeout", "connect_timeout: soon", "invalid database.connect_timeout"},
		{"init_schema", "init_schema: maybe", "invalid database.init_schema"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, `
dir: /var/log/app
database:
  name: analytics
  user: analyzer
  `+tt.field+`
`)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_PortFromEnvironment(t *testing.T) {
	t.Setenv("TEST_ANALYZER_DB_PORT", "3307")
	path := writeConfig(t, `
dir: /var/log/app
database:
  name: analytics
  user: analyzer
  port: os.environ/TEST_ANALYZER_DB_PORT
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3307, cfg.Database.Port)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing_dir", func(c *Config) { c.Dir = "" }, "dir is required"},
		{"bad_timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "invalid timezone"},
		{"unknown_driver", func(c *Config) { c.Database.Driver = "oracle" }, "oracle"},
		{"missing_name", func(c *Config) { c.Database.Name = "" }, "database.name is required"},
		{"missing_user", func(c *Config) { c.Database.User = "" }, "database.user is required"},
		{"port_too_large", func(c *Config) { c.Database.Port = 70000 }, "invalid database.port"},
		{"negative_timeout", func(c *Config) { c.Database.ConnectTimeout = -time.Second }, "invalid database.connect_timeout"},
		{"minute_offset_too_large", func(c *Config) {
			m := 60
			c.Scheduler.MinuteOffset = &m
		}, "invalid scheduler.minute_offset"},
		{"negative_batch_limit", func(c *Config) { c.Aggregation.BatchLimit = -1 }, "invalid aggregation.batch_limit"},
		{"negative_dedup_cache", func(c *Config) { c.Aggregation.DedupCacheDays = -1 }, "invalid aggregation.dedup_cache_days"},
		{"bad_level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid logging.level"},
		{"bad_format", func(c *Config) { c.Logging.Format = "xml" }, "invalid logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Normalize(t *testing.T) {
	t.Setenv("TEST_ANALYZER_DIR", "/srv/logs")
	cfg := &Config{
		Dir:      "os.environ/TEST_ANALYZER_DIR",
		Database: DatabaseConfig{Driver: " MySQL "},
		Logging:  LoggingConfig{Level: " WARN ", Format: "Console"},
	}
	cfg.Normalize()

	assert.Equal(t, "/srv/logs", cfg.Dir)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	require.NotNil(t, cfg.Scheduler.MinuteOffset)
	assert.Equal(t, 15, *cfg.Scheduler.MinuteOffset)
}
