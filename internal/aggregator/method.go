package aggregator

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/mixaill76/log_analyzer/internal/classify"
	"github.com/mixaill76/log_analyzer/internal/store"
)

// methodCount counts request lines per method and hour.
type methodCount struct {
	store  *store.Store
	logger *slog.Logger
	counts counter[string]
}

func newMethodCount(deps Deps) *methodCount {
	return &methodCount{
		store:  deps.Store,
		logger: deps.logger(),
		counts: newCounter[string](),
	}
}

func (a *methodCount) Feature() Feature { return MethodCount }

func (a *methodCount) Reset() { a.counts.reset() }

func (a *methodCount) Ingest(_ context.Context, _ store.Querier, line *classify.Line) (bool, error) {
	method, ok := line.Method()
	if !ok {
		return false, nil
	}
	a.counts.add(method, line.HourKey(), 1)
	return true, nil
}

func (a *methodCount) Flush(ctx context.Context, q store.Querier) error {
	return flushCounter(ctx, q, a.store, store.MethodCountTable, &a.counts, strings.Compare,
		func(b bucketCount[string]) []any {
			return []any{b.dim, b.time, b.count}
		})
}

func (a *methodCount) Reconcile(context.Context, store.Querier, time.Time, time.Time) error {
	return ErrUnsupported
}

func (a *methodCount) Purge(ctx context.Context, q store.Querier, start, end time.Time) error {
	return purgeHours(ctx, q, a.store, store.MethodCountTable, start, end)
}

// activityCount counts request lines per activity and hour, using the
// method to activity relation. A method may count towards several
// activities.
type activityCount struct {
	store      *store.Store
	logger     *slog.Logger
	activities store.ActivityMethods
	counts     counter[string]
}

func newActivityCount(deps Deps) *activityCount {
	return &activityCount{
		store:      deps.Store,
		logger:     deps.logger(),
		activities: deps.Activities,
		counts:     newCounter[string](),
	}
}

func (a *activityCount) Feature() Feature { return ActivityCount }

func (a *activityCount) Reset() { a.counts.reset() }

func (a *activityCount) Ingest(_ context.Context, _ store.Querier, line *classify.Line) (bool, error) {
	method, ok := line.Method()
	if !ok {
		return false, nil
	}
	activities := a.activities.Activities(method)
	if len(activities) == 0 {
		return false, nil
	}
	hour := line.HourKey()
	for _, activity := range activities {
		a.counts.add(activity, hour, 1)
	}
	return true, nil
}

func (a *activityCount) Flush(ctx context.Context, q store.Querier) error {
	return flushCounter(ctx, q, a.store, store.ActivityCountTable, &a.counts, strings.Compare,
		func(b bucketCount[string]) []any {
			return []any{b.dim, b.time, b.count}
		})
}

// Reconcile re-derives activity counts for [start, end) from the stored
// method counts. Existing rows in the range are replaced.
func (a *activityCount) Reconcile(ctx context.Context, q store.Querier, start, end time.Time) error {
	from, to := hourRange(start, end)

	byActivity := a.activities.Methods()
	names := make([]string, 0, len(byActivity))
	for activity := range byActivity {
		names = append(names, activity)
	}
	slices.Sort(names)

	derived := newCounter[string]()
	for _, activity := range names {
		sums, err := a.store.SumByTime(ctx, q, store.MethodCountTable, "method", byActivity[activity], from, to)
		if err != nil {
			return err
		}
		for hour, sum := range sums {
			derived.add(activity, hour, sum)
		}
	}

	replace := store.ActivityCountTable
	replace.Add = nil
	if err := flushCounter(ctx, q, a.store, replace, &derived, strings.Compare,
		func(b bucketCount[string]) []any {
			return []any{b.dim, b.time, b.count}
		}); err != nil {
		return err
	}

	a.logger.Info("Activity counts reconciled",
		"activities", len(names),
		"from", from,
		"to", to,
	)
	return nil
}

func (a *activityCount) Purge(ctx context.Context, q store.Querier, start, end time.Time) error {
	return purgeHours(ctx, q, a.store, store.ActivityCountTable, start, end)
}
