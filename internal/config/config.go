package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mixaill76/log_analyzer/internal/scheduler"
	"github.com/mixaill76/log_analyzer/internal/store"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every configuration error.
var ErrInvalid = errors.New("config: invalid")

const (
	DefaultBatchLimit     = 300
	DefaultDedupCacheDays = 4
	DefaultListen         = ":9464"
	DefaultTimezone       = "Local"
)

type Config struct {
	Dir         string            `yaml:"dir"`
	Timezone    string            `yaml:"timezone"`
	Database    DatabaseConfig    `yaml:"database"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Logging     LoggingConfig     `yaml:"logging"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`

	location *time.Location
}

type DatabaseConfig struct {
	Driver         string
	Host           string
	Port           int
	Name           string
	User           string
	Password       string
	ConnectTimeout time.Duration
	InitSchema     bool
}

type SchedulerConfig struct {
	// MinuteOffset is nil when not set, 0 is a valid offset.
	MinuteOffset *int `yaml:"minute_offset"`
}

type AggregationConfig struct {
	BatchLimit     int `yaml:"batch_limit"`
	DedupCacheDays int `yaml:"dedup_cache_days"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	Listen            string `yaml:"listen"`
}

// UnmarshalYAML implements custom unmarshaling for DatabaseConfig.
// Every field may be given as os.environ/VAR.
func (d *DatabaseConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Driver         string `yaml:"driver"`
		Host           string `yaml:"host"`
		Port           string `yaml:"port"`
		Name           string `yaml:"name"`
		User           string `yaml:"user"`
		Password       string `yaml:"password"`
		ConnectTimeout string `yaml:"connect_timeout"`
		InitSchema     string `yaml:"init_schema"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	d.Driver = resolveEnvString(temp.Driver)
	d.Host = resolveEnvString(temp.Host)
	d.Name = resolveEnvString(temp.Name)
	d.User = resolveEnvString(temp.User)
	d.Password = resolveEnvString(temp.Password)

	var err error
	if d.Port, err = parseField(temp.Port, 0, strconv.Atoi, "database.port"); err != nil {
		return err
	}
	if d.ConnectTimeout, err = parseField(temp.ConnectTimeout, 0, time.ParseDuration, "database.connect_timeout"); err != nil {
		return err
	}
	if d.InitSchema, err = parseField(temp.InitSchema, false, strconv.ParseBool, "database.init_schema"); err != nil {
		return err
	}
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %w", ErrInvalid, err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Normalize cleans up configuration values and fills defaults.
func (c *Config) Normalize() {
	c.Dir = strings.TrimSpace(resolveEnvString(c.Dir))
	c.Timezone = strings.TrimSpace(c.Timezone)
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))

	if c.Scheduler.MinuteOffset == nil {
		offset := scheduler.DefaultMinuteOffset
		c.Scheduler.MinuteOffset = &offset
	}

	if c.Aggregation.BatchLimit == 0 {
		c.Aggregation.BatchLimit = DefaultBatchLimit
	}
	if c.Aggregation.DedupCacheDays == 0 {
		c.Aggregation.DedupCacheDays = DefaultDedupCacheDays
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Monitoring.Listen == "" {
		c.Monitoring.Listen = DefaultListen
	}
}

func (c *Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("%w: dir is required", ErrInvalid)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("%w: invalid timezone %q: %w", ErrInvalid, c.Timezone, err)
	}
	c.location = loc

	if _, err := store.DialectFor(c.Database.Driver); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("%w: database.name is required", ErrInvalid)
	}
	if c.Database.User == "" {
		return fmt.Errorf("%w: database.user is required", ErrInvalid)
	}
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		return fmt.Errorf("%w: invalid database.port: %d", ErrInvalid, c.Database.Port)
	}
	if c.Database.ConnectTimeout < 0 {
		return fmt.Errorf("%w: invalid database.connect_timeout: %v", ErrInvalid, c.Database.ConnectTimeout)
	}

	if m := c.MinuteOffset(); m < 0 || m > 59 {
		return fmt.Errorf("%w: invalid scheduler.minute_offset: %d (must be 0-59)", ErrInvalid, m)
	}

	if c.Aggregation.BatchLimit < 0 {
		return fmt.Errorf("%w: invalid aggregation.batch_limit: %d", ErrInvalid, c.Aggregation.BatchLimit)
	}
	if c.Aggregation.DedupCacheDays < 0 {
		return fmt.Errorf("%w: invalid aggregation.dedup_cache_days: %d", ErrInvalid, c.Aggregation.DedupCacheDays)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: invalid logging.level: %s (must be debug, info, warn or error)", ErrInvalid, c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("%w: invalid logging.format: %s (must be text, json or console)", ErrInvalid, c.Logging.Format)
	}

	return nil
}

// Location returns the zone log timestamps are interpreted in. It is set
// by Validate.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// MinuteOffset returns the minute past the hour at which cycles start.
func (c *Config) MinuteOffset() int {
	if c.Scheduler.MinuteOffset == nil {
		return scheduler.DefaultMinuteOffset
	}
	return *c.Scheduler.MinuteOffset
}

// StoreConfig converts the database section for store.Open.
func (c *Config) StoreConfig(logger *slog.Logger) *store.Config {
	return &store.Config{
		Driver:         c.Database.Driver,
		Host:           c.Database.Host,
		Port:           c.Database.Port,
		Name:           c.Database.Name,
		User:           c.Database.User,
		Password:       c.Database.Password,
		ConnectTimeout: c.Database.ConnectTimeout,
		Logger:         logger,
	}
}
