package aggregator

import (
	"cmp"
	"context"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/mixaill76/log_analyzer/internal/classify"
	"github.com/mixaill76/log_analyzer/internal/store"
)

// errorMessage groups severity lines. Two lines are the same message when
// both level and stripped text are equal.
type errorMessage struct {
	level string
	text  string
}

func compareErrorMessage(a, b errorMessage) int {
	if c := cmp.Compare(a.level, b.level); c != 0 {
		return c
	}
	return cmp.Compare(a.text, b.text)
}

// MessageHash is the content hash stored next to an error message. It is
// derived from the text only; the level is a separate key column.
func MessageHash(text string) int64 {
	return int64(xxhash.Sum64String(text))
}

// errorMessageCount counts FATAL, ERROR and WARN lines per message and hour.
type errorMessageCount struct {
	store  *store.Store
	logger *slog.Logger
	counts counter[errorMessage]
}

func newErrorMessageCount(deps Deps) *errorMessageCount {
	return &errorMessageCount{
		store:  deps.Store,
		logger: deps.logger(),
		counts: newCounter[errorMessage](),
	}
}

func (a *errorMessageCount) Feature() Feature { return ErrorMessageCount }

func (a *errorMessageCount) Reset() { a.counts.reset() }

func (a *errorMessageCount) Ingest(_ context.Context, _ store.Querier, line *classify.Line) (bool, error) {
	level, text, ok := line.Severity()
	if !ok {
		return false, nil
	}
	a.counts.add(errorMessage{level: level, text: text}, line.HourKey(), 1)
	return true, nil
}

func (a *errorMessageCount) Flush(ctx context.Context, q store.Querier) error {
	return flushCounter(ctx, q, a.store, store.ErrorMessageCountTable, &a.counts, compareErrorMessage,
		func(b bucketCount[errorMessage]) []any {
			return []any{b.dim.level, MessageHash(b.dim.text), b.dim.text, b.time, b.count}
		})
}

func (a *errorMessageCount) Reconcile(context.Context, store.Querier, time.Time, time.Time) error {
	return ErrUnsupported
}

func (a *errorMessageCount) Purge(ctx context.Context, q store.Querier, start, end time.Time) error {
	return purgeHours(ctx, q, a.store, store.ErrorMessageCountTable, start, end)
}
