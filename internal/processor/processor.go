// Package processor aggregates log files from current/ one transaction per
// file and archives them on success.
package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mixaill76/log_analyzer/internal/aggregator"
	"github.com/mixaill76/log_analyzer/internal/archive"
	"github.com/mixaill76/log_analyzer/internal/classify"
	"github.com/mixaill76/log_analyzer/internal/monitoring"
	"github.com/mixaill76/log_analyzer/internal/store"
)

// State is the position of a file in its processing lifecycle.
type State int

const (
	Idle State = iota
	Reading
	Aggregating
	Flushing
	Archiving
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Aggregating:
		return "aggregating"
	case Flushing:
		return "flushing"
	case Archiving:
		return "archiving"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result reports what happened to one file.
type Result struct {
	File         string
	State        State
	LinesRead    int64
	LinesMatched int64
	// FailedIn is the state in which processing failed. Only set when State
	// is RolledBack.
	FailedIn State
	Err      error
}

// Processor runs the per-file transaction.
type Processor struct {
	layout     *archive.Layout
	classifier *classify.Classifier
	metrics    *monitoring.Metrics
	logger     *slog.Logger
}

func New(layout *archive.Layout, classifier *classify.Classifier, metrics *monitoring.Metrics, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		layout:     layout,
		classifier: classifier,
		metrics:    metrics,
		logger:     logger,
	}
}

// ProcessPending processes every pending file of current/ in order. File
// failures are logged and reported in the results; only a failure to list
// current/ is returned as an error.
func (p *Processor) ProcessPending(ctx context.Context, db store.TxBeginner, set aggregator.Set) ([]Result, error) {
	files, err := p.layout.Pending()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		p.logger.Debug("No pending log files", "dir", p.layout.Current)
		return nil, nil
	}

	results := make([]Result, 0, len(files))
	for _, f := range files {
		results = append(results, p.Process(ctx, db, set, f))
	}
	return results, nil
}

// Process aggregates f inside one transaction, archives it and commits. On
// any failure the transaction is rolled back and f stays in current/.
func (p *Processor) Process(ctx context.Context, db store.TxBeginner, set aggregator.Set, f archive.File) Result {
	res := Result{File: f.Name, State: Idle}

	fail := func(err error) Result {
		res.FailedIn = res.State
		res.State = RolledBack
		res.Err = err
		p.logger.Error("Failed to process log file",
			"file", f.Path,
			"state", res.FailedIn,
			"error", err,
		)
		p.metrics.RecordFile(monitoring.OutcomeRolledBack, res.LinesRead, res.LinesMatched)
		return res
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fail(fmt.Errorf("begin transaction: %w", err))
	}
	done := false
	defer func() {
		if !done {
			rollback(tx, p.logger)
		}
	}()

	set.Reset()

	res.State = Reading
	read, matched, err := Scan(ctx, tx, set, p.classifier, f.Path, nil)
	res.LinesRead, res.LinesMatched = read, matched
	if err != nil {
		var oe *offerError
		if errors.As(err, &oe) {
			res.State = Aggregating
		}
		return fail(err)
	}

	res.State = Flushing
	if err := set.Flush(ctx, tx); err != nil {
		return fail(err)
	}

	res.State = Archiving
	archived, err := p.layout.Store(f)
	if err != nil {
		return fail(err)
	}

	done = true
	if err := tx.Commit(); err != nil {
		if archived != "" {
			if rerr := p.layout.Restore(archived); rerr != nil {
				p.logger.Error("Failed to restore archived file after commit failure",
					"file", archived,
					"error", rerr,
				)
			}
		}
		return fail(fmt.Errorf("commit: %w", err))
	}
	set.Commit()

	res.State = Committed
	p.logger.Info("File processed",
		"file", f.Name,
		"lines_read", res.LinesRead,
		"lines_matched", res.LinesMatched,
	)
	p.metrics.RecordFile(monitoring.OutcomeCommitted, res.LinesRead, res.LinesMatched)
	return res
}

// Scan offers every header-matching line of the file at path to set and
// returns the number of lines read and matched. When admit is not nil,
// lines it rejects are counted as read but not offered.
func Scan(
	ctx context.Context,
	q store.Querier,
	set aggregator.Set,
	classifier *classify.Classifier,
	path string,
	admit func(*classify.Line) bool,
) (read, matched int64, err error) {
	rc, err := archive.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = rc.Close() }()

	err = archive.ReadLines(rc, func(raw string) error {
		read++
		line, ok := classifier.Parse(raw)
		if !ok {
			return nil
		}
		if admit != nil && !admit(line) {
			return nil
		}
		ok, err := set.Offer(ctx, q, line)
		if err != nil {
			return &offerError{err: err}
		}
		if ok {
			matched++
		}
		return nil
	})
	return read, matched, err
}

// offerError marks a failure raised by an aggregator rather than by reading
// the file.
type offerError struct {
	err error
}

func (e *offerError) Error() string { return e.err.Error() }

func (e *offerError) Unwrap() error { return e.err }

func rollback(tx *sql.Tx, logger *slog.Logger) {
	err := tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return
	}
	logger.Error("Database rollback failed",
		"error", err,
		"fatal", true,
	)
}
