// Package revisit recomputes stored metrics for a past window on operator
// request. The request is read from the settings table and consumed on
// success, so each request runs at most once.
package revisit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mixaill76/log_analyzer/internal/aggregator"
	"github.com/mixaill76/log_analyzer/internal/archive"
	"github.com/mixaill76/log_analyzer/internal/classify"
	"github.com/mixaill76/log_analyzer/internal/monitoring"
	"github.com/mixaill76/log_analyzer/internal/processor"
	"github.com/mixaill76/log_analyzer/internal/store"
	"github.com/mixaill76/log_analyzer/internal/timestamp"
)

// ErrRevisitAborted wraps any failure of a revisit. The transaction has
// been rolled back and the request settings are kept for the next cycle.
var ErrRevisitAborted = errors.New("revisit: aborted")

// FeatureSeparator splits the revisit_features setting.
const FeatureSeparator = ","

// Window bounds a revisit. Files are admitted from Lookback, lines are
// aggregated from Start, and stored rows are replaced in [Start, End).
type Window struct {
	Lookback time.Time
	Start    time.Time
	End      time.Time
}

// Request is a parsed revisit trigger.
type Request struct {
	Window   Window
	Archive  []aggregator.Feature
	Database []aggregator.Feature
}

// Features returns all requested features, archive sourced first.
func (r *Request) Features() []aggregator.Feature {
	return append(append([]aggregator.Feature(nil), r.Archive...), r.Database...)
}

// ParseRequest builds a request from the settings rows. ok is false when
// revisit_time or revisit_features is not set. now is the current time in
// the log location.
func ParseRequest(settings map[string]string, now time.Time, logger *slog.Logger) (req *Request, ok bool, err error) {
	revisitTime, hasTime := settings[store.SettingRevisitTime]
	featureList, hasFeatures := settings[store.SettingRevisitFeatures]
	if !hasTime || !hasFeatures {
		return nil, false, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	thresholdDays := 0
	if v := strings.TrimSpace(settings[store.SettingThresholdDays]); v != "" {
		thresholdDays, err = strconv.Atoi(v)
		if err != nil || thresholdDays < 0 {
			return nil, true, fmt.Errorf("%w: invalid %s %q", ErrRevisitAborted, store.SettingThresholdDays, v)
		}
	}

	day := strings.TrimSpace(revisitTime)
	switch {
	case len(day) > timestamp.DayWidth:
		day = day[:timestamp.DayWidth]
	case len(day) < timestamp.DayWidth:
		day += strings.Repeat("0", timestamp.DayWidth-len(day))
	}
	start, err := timestamp.Pad(day, now.Location())
	if err != nil {
		return nil, true, fmt.Errorf("%w: invalid %s %q: %v", ErrRevisitAborted, store.SettingRevisitTime, revisitTime, err)
	}

	req = &Request{
		Window: Window{
			Lookback: timestamp.AddDays(start, -thresholdDays),
			Start:    start,
			End:      timestamp.AddDays(timestamp.StartOfDay(now), 1),
		},
	}

	seen := make(map[aggregator.Feature]bool)
	for _, name := range strings.Split(featureList, FeatureSeparator) {
		if strings.TrimSpace(name) == "" {
			continue
		}
		f, err := aggregator.ParseFeature(name)
		if err != nil {
			logger.Warn("Ignoring unknown revisit feature", "feature", strings.TrimSpace(name))
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		if f.Source() == aggregator.SourceDatabase {
			req.Database = append(req.Database, f)
		} else {
			req.Archive = append(req.Archive, f)
		}
	}
	return req, true, nil
}

// Controller runs revisit requests.
type Controller struct {
	layout     *archive.Layout
	classifier *classify.Classifier
	metrics    *monitoring.Metrics
	logger     *slog.Logger
}

func New(layout *archive.Layout, classifier *classify.Classifier, metrics *monitoring.Metrics, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		layout:     layout,
		classifier: classifier,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run executes the revisit requested by settings, if any, in a single
// transaction. ran reports whether a request was present. Any failure
// rolls everything back and returns an error wrapping ErrRevisitAborted.
func (c *Controller) Run(
	ctx context.Context,
	db store.TxBeginner,
	deps aggregator.Deps,
	settings map[string]string,
	now time.Time,
) (ran bool, err error) {
	now = now.In(c.classifier.Location())
	req, ok, err := ParseRequest(settings, now, c.logger)
	if !ok {
		return false, nil
	}
	if err != nil {
		c.metrics.RecordRevisit(monitoring.OutcomeRolledBack)
		return true, err
	}

	c.logger.Info("Starting revisit",
		"start", timestamp.Format(req.Window.Start),
		"lookback", timestamp.Format(req.Window.Lookback),
		"end", timestamp.Format(req.Window.End),
		"features", req.Features(),
	)
	began := time.Now()

	if err := c.run(ctx, db, deps, req); err != nil {
		c.metrics.RecordRevisit(monitoring.OutcomeRolledBack)
		return true, fmt.Errorf("%w: %w", ErrRevisitAborted, err)
	}

	c.metrics.RecordRevisit(monitoring.OutcomeCommitted)
	c.logger.Info("Revisit completed",
		"features", req.Features(),
		"duration", time.Since(began),
	)
	return true, nil
}

func (c *Controller) run(ctx context.Context, db store.TxBeginner, deps aggregator.Deps, req *Request) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			c.logger.Error("Database rollback failed",
				"error", err,
				"fatal", true,
			)
		}
	}()

	if len(req.Archive) > 0 {
		if err := c.replayArchive(ctx, tx, deps, req); err != nil {
			return err
		}
	}
	if len(req.Database) > 0 {
		if err := c.reconcile(ctx, tx, deps, req); err != nil {
			return err
		}
	}

	if err := deps.Store.DeleteSettings(ctx, tx, store.SettingRevisitTime, store.SettingRevisitFeatures); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// replayArchive purges the archive sourced metrics and rebuilds them from
// the archived files of the window. A fresh aggregator set is used so the
// dedup day state is seeded from the purged tables.
func (c *Controller) replayArchive(ctx context.Context, tx *sql.Tx, deps aggregator.Deps, req *Request) error {
	set, err := aggregator.NewSet(deps, req.Archive...)
	if err != nil {
		return err
	}
	w := req.Window
	if err := set.Purge(ctx, tx, w.Start, w.End); err != nil {
		return err
	}

	dirs, err := c.layout.MonthFolders(w.Lookback, w.End)
	if err != nil {
		return err
	}
	admitLine := func(l *classify.Line) bool {
		return !l.Time.Before(w.Start)
	}

	for _, dir := range dirs {
		files, err := archive.List(dir, true)
		if err != nil {
			return err
		}
		for _, f := range files {
			admitted, err := c.admitFile(f, w.Lookback)
			if err != nil {
				return err
			}
			if !admitted {
				c.logger.Debug("Skipping archived file before lookback", "file", f.Path)
				continue
			}

			set.Reset()
			read, matched, err := processor.Scan(ctx, tx, set, c.classifier, f.Path, admitLine)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Path, err)
			}
			if err := set.Flush(ctx, tx); err != nil {
				return fmt.Errorf("%s: %w", f.Path, err)
			}
			// Everything stays in one transaction; promoting identifiers per
			// file keeps later files of the same day from counting them again.
			set.Commit()

			c.logger.Info("Archived file revisited",
				"file", f.Name,
				"lines_read", read,
				"lines_matched", matched,
			)
		}
	}
	return nil
}

var errStop = errors.New("stop")

// admitFile reports whether the first header timestamp of f is at or after
// lookback. Files without any header are skipped.
func (c *Controller) admitFile(f archive.File, lookback time.Time) (bool, error) {
	rc, err := archive.Open(f.Path)
	if err != nil {
		return false, err
	}
	defer func() { _ = rc.Close() }()

	var first time.Time
	found := false
	err = archive.ReadLines(rc, func(raw string) error {
		if t, ok := c.classifier.HeaderTime(raw); ok {
			first, found = t, true
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return false, fmt.Errorf("%s: %w", f.Path, err)
	}
	return found && !first.Before(lookback), nil
}

// reconcile re-derives the database sourced metrics from stored rows.
func (c *Controller) reconcile(ctx context.Context, tx *sql.Tx, deps aggregator.Deps, req *Request) error {
	set, err := aggregator.NewSet(deps, req.Database...)
	if err != nil {
		return err
	}
	w := req.Window
	if err := set.Purge(ctx, tx, w.Start, w.End); err != nil {
		return err
	}
	for _, a := range set {
		if err := a.Reconcile(ctx, tx, w.Start, w.End); err != nil {
			return fmt.Errorf("reconcile %s: %w", a.Feature(), err)
		}
	}
	return nil
}
