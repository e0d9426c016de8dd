package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mixaill76/log_analyzer/internal/security"
)

// resolveEnvString resolves environment variable if value is in format "os.environ/VAR_NAME"
func resolveEnvString(value string) string {
	const prefix = "os.environ/"
	if strings.HasPrefix(value, prefix) {
		envVar := strings.TrimPrefix(value, prefix)
		if envValue := os.Getenv(envVar); envValue != "" {
			return envValue
		}
		slog.Warn("environment variable not set, returning empty string",
			"env_var", envVar,
			"pattern", value,
		)
		return ""
	}
	return value
}

// parseFunc is a function type that parses a string value into the desired type
type parseFunc[T any] func(string) (T, error)

// parseField resolves env variable and parses value with proper error context
func parseField[T any](tempValue string, defaultValue T, parser parseFunc[T], fieldPath string) (T, error) {
	if tempValue == "" {
		return defaultValue, nil
	}

	resolved := resolveEnvString(tempValue)
	if resolved == "" {
		return defaultValue, nil
	}
	parsed, err := parser(resolved)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", fieldPath, err)
	}
	return parsed, nil
}

// PrintConfig outputs the configuration in a structured, readable format to the logger
func PrintConfig(logger *slog.Logger, cfg *Config) {
	logger.Info("=== Configuration Loaded ===")

	logger.Info("analyzer",
		"dir", cfg.Dir,
		"timezone", cfg.Location().String(),
		"minute_offset", cfg.MinuteOffset(),
	)

	db := cfg.StoreConfig(logger)
	db.ApplyDefaults()
	logger.Info("database",
		"url", security.MaskDatabaseURL(db.URL()),
		"password", security.MaskSecret(cfg.Database.Password, 0),
		"connect_timeout", db.ConnectTimeout.String(),
		"init_schema", cfg.Database.InitSchema,
	)

	logger.Info("aggregation",
		"batch_limit", cfg.Aggregation.BatchLimit,
		"dedup_cache_days", cfg.Aggregation.DedupCacheDays,
	)

	logger.Info("logging",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if cfg.Monitoring.PrometheusEnabled {
		logger.Info("monitoring (ENABLED)", "listen", cfg.Monitoring.Listen)
	} else {
		logger.Info("monitoring", "status", "DISABLED")
	}

	logger.Info("=== Configuration Ready ===")
}
