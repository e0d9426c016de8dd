// Package startup wires the configured components into a runnable analyzer.
package startup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mixaill76/log_analyzer/internal/analyzer"
	"github.com/mixaill76/log_analyzer/internal/archive"
	"github.com/mixaill76/log_analyzer/internal/config"
	"github.com/mixaill76/log_analyzer/internal/health"
	"github.com/mixaill76/log_analyzer/internal/monitoring"
	"github.com/mixaill76/log_analyzer/internal/scheduler"
	"github.com/mixaill76/log_analyzer/internal/store"
	"github.com/mixaill76/log_analyzer/internal/utils"
)

// OpenFunc opens the database. store.Open is used when nil.
type OpenFunc func(ctx context.Context, cfg *store.Config) (*store.DB, error)

type Options struct {
	// InitSchema creates missing tables even when the config does not ask for it.
	InitSchema bool
	Open       OpenFunc
	Clock      utils.Clock
}

// App holds the running components.
type App struct {
	Config    *config.Config
	DB        *store.DB
	Layout    *archive.Layout
	Analyzer  *analyzer.Analyzer
	Scheduler *scheduler.Scheduler
	Health    *health.Monitor
	Metrics   *monitoring.Metrics

	clock  utils.Clock
	logger *slog.Logger
}

// Build validates the log directory, connects to the database and creates
// the analyzer and its scheduler. Any error is fatal for the process.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*App, error) {
	if opts.Open == nil {
		opts.Open = store.Open
	}
	if opts.Clock == nil {
		opts.Clock = utils.SystemClock(cfg.Location())
	}

	layout, err := ValidateLogDirAtStartup(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("startup: %w", err)
	}

	db, err := opts.Open(ctx, cfg.StoreConfig(log))
	if err != nil {
		return nil, fmt.Errorf("startup: %w", err)
	}

	if opts.InitSchema || cfg.Database.InitSchema {
		if err := db.InitSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("startup: %w", err)
		}
	}

	metrics := monitoring.New(cfg.Monitoring.PrometheusEnabled)
	an, err := analyzer.New(analyzer.Options{
		DB:       db.DB,
		Store:    store.New(db.Dialect(), cfg.Aggregation.BatchLimit, log),
		Layout:   layout,
		Location: cfg.Location(),
		DayCache: cfg.Aggregation.DedupCacheDays,
		Metrics:  metrics,
		Logger:   log,
		Clock:    opts.Clock,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("startup: %w", err)
	}

	app := &App{
		Config:   cfg,
		DB:       db,
		Layout:   layout,
		Analyzer: an,
		Health:   health.NewMonitor(&health.MonitorConfig{Logger: log}),
		Metrics:  metrics,
		clock:    opts.Clock,
		logger:   log,
	}
	app.Scheduler = scheduler.New(cfg.MinuteOffset(), app.RunCycle, opts.Clock, log)
	return app, nil
}

// RunCycle runs one analysis cycle and records its outcome for /health.
// A failed revisit does not stop the cycle but still counts as a failure
// for health, so a request that keeps failing turns /health unhealthy.
func (a *App) RunCycle(ctx context.Context) error {
	report, err := a.Analyzer.RunCycle(ctx)
	observed := err
	if observed == nil {
		observed = report.RevisitErr
	}
	a.Health.Observe(a.clock(), observed)
	return err
}

// Close releases the database.
func (a *App) Close() error {
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("startup: close database: %w", err)
	}
	a.logger.Info("Database connection closed")
	return nil
}
