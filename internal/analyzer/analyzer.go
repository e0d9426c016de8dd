// Package analyzer runs one analysis cycle: an optional revisit followed by
// the processing of every pending file in current/.
package analyzer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mixaill76/log_analyzer/internal/aggregator"
	"github.com/mixaill76/log_analyzer/internal/archive"
	"github.com/mixaill76/log_analyzer/internal/classify"
	"github.com/mixaill76/log_analyzer/internal/monitoring"
	"github.com/mixaill76/log_analyzer/internal/processor"
	"github.com/mixaill76/log_analyzer/internal/revisit"
	"github.com/mixaill76/log_analyzer/internal/store"
	"github.com/mixaill76/log_analyzer/internal/utils"
)

// Conner hands out dedicated connections. *sql.DB satisfies it.
type Conner interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Options configures an Analyzer.
type Options struct {
	DB       Conner
	Store    *store.Store
	Layout   *archive.Layout
	Location *time.Location
	// DayCache bounds the committed day sets kept by dedup metrics.
	DayCache int
	Metrics  *monitoring.Metrics
	Logger   *slog.Logger
	Clock    utils.Clock
}

// Analyzer runs analysis cycles. Cycles must not overlap.
type Analyzer struct {
	db         Conner
	store      *store.Store
	dayCache   int
	classifier *classify.Classifier
	processor  *processor.Processor
	revisit    *revisit.Controller
	metrics    *monitoring.Metrics
	logger     *slog.Logger
	clock      utils.Clock
}

// ErrMissingOption is returned by New when a required option is not set.
var ErrMissingOption = errors.New("analyzer: missing option")

func New(opts Options) (*Analyzer, error) {
	switch {
	case opts.DB == nil:
		return nil, fmt.Errorf("%w: DB", ErrMissingOption)
	case opts.Store == nil:
		return nil, fmt.Errorf("%w: Store", ErrMissingOption)
	case opts.Layout == nil:
		return nil, fmt.Errorf("%w: Layout", ErrMissingOption)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = utils.SystemClock(opts.Location)
	}

	classifier := classify.New(opts.Location)
	return &Analyzer{
		db:         opts.DB,
		store:      opts.Store,
		dayCache:   opts.DayCache,
		classifier: classifier,
		processor:  processor.New(opts.Layout, classifier, opts.Metrics, opts.Logger),
		revisit:    revisit.New(opts.Layout, classifier, opts.Metrics, opts.Logger),
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		clock:      opts.Clock,
	}, nil
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	Revisited  bool
	RevisitErr error
	Files      []processor.Result
	Duration   time.Duration
}

// Committed returns the number of files committed in the cycle.
func (r CycleReport) Committed() int {
	n := 0
	for _, f := range r.Files {
		if f.State == processor.Committed {
			n++
		}
	}
	return n
}

// RunCycle pins one connection for the whole cycle, runs a pending revisit
// and processes current/. A failed revisit is logged and the cycle goes on
// with current/. The returned error covers failures that prevent any file
// from being processed.
func (a *Analyzer) RunCycle(ctx context.Context) (report CycleReport, err error) {
	began := a.clock()
	defer func() {
		finished := a.clock()
		report.Duration = finished.Sub(began)
		a.metrics.RecordCycle(report.Duration, finished)
	}()

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return report, fmt.Errorf("analyzer: acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	settings, err := a.store.LoadSettings(ctx, conn)
	if err != nil {
		return report, fmt.Errorf("analyzer: %w", err)
	}
	activities, err := a.store.LoadActivityMethods(ctx, conn)
	if err != nil {
		return report, fmt.Errorf("analyzer: %w", err)
	}
	deps := aggregator.Deps{
		Store:      a.store,
		Activities: activities,
		DayCache:   a.dayCache,
		Logger:     a.logger,
	}

	report.Revisited, report.RevisitErr = a.revisit.Run(ctx, conn, deps, settings, began)
	if report.RevisitErr != nil {
		a.logger.Error("Revisit failed, will retry next cycle", "error", report.RevisitErr)
	}

	// A fresh set per cycle: dedup day state is seeded again from the store.
	set, err := aggregator.All(deps)
	if err != nil {
		return report, fmt.Errorf("analyzer: %w", err)
	}
	report.Files, err = a.processor.ProcessPending(ctx, conn, set)
	if err != nil {
		return report, fmt.Errorf("analyzer: %w", err)
	}

	committed := report.Committed()
	attrs := []any{
		"files", len(report.Files),
		"committed", committed,
		"failed", len(report.Files) - committed,
		"revisited", report.Revisited && report.RevisitErr == nil,
	}
	if committed < len(report.Files) {
		a.logger.Warn("Cycle completed with failures", attrs...)
	} else {
		a.logger.Info("Cycle completed", attrs...)
	}
	return report, nil
}

