package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mixaill76/log_analyzer/internal/classify"
	"github.com/mixaill76/log_analyzer/internal/logger"
	"github.com/mixaill76/log_analyzer/internal/store"
	"github.com/valyala/fastjson"
)

// DefaultDayCache is the number of committed days a distinct counter keeps
// in memory when Deps.DayCache is not set.
const DefaultDayCache = 8

// errIrrelevant is returned by extractors for payloads of methods the
// counter does not track.
var errIrrelevant = errors.New("irrelevant method")

// idExtractor pulls the identifier out of a request payload.
type idExtractor func(method, payload string) (int64, error)

// dayState is the committed view of one day: every identifier already
// counted and the stored count.
type dayState struct {
	ids   map[int64]struct{}
	count int64
}

// dayDelta holds identifiers first seen in the current file.
type dayDelta struct {
	base    *dayState
	added   map[int64]struct{}
	pending []int64
}

// distinctCounter counts distinct identifiers per day.
//
// Committed day state is seeded from the store the first time a day is
// seen in the run and kept in an LRU. Identifiers found in the current file
// are kept apart until Commit, so a rolled back file leaves the committed
// state untouched.
type distinctCounter struct {
	feature Feature
	store   *store.Store
	logger  *slog.Logger
	entries store.Table
	summary store.Table
	extract idExtractor

	committed *lru.Cache[int64, *dayState]
	deltas    map[int64]*dayDelta
}

func newDistinctCounter(f Feature, deps Deps, entries, summary store.Table, extract idExtractor) (*distinctCounter, error) {
	size := deps.DayCache
	if size <= 0 {
		size = DefaultDayCache
	}
	cache, err := lru.New[int64, *dayState](size)
	if err != nil {
		return nil, fmt.Errorf("aggregator: day cache: %w", err)
	}
	return &distinctCounter{
		feature:   f,
		store:     deps.Store,
		logger:    deps.logger(),
		entries:   entries,
		summary:   summary,
		extract:   extract,
		committed: cache,
		deltas:    make(map[int64]*dayDelta),
	}, nil
}

func (a *distinctCounter) Feature() Feature { return a.feature }

func (a *distinctCounter) Reset() {
	clear(a.deltas)
}

func (a *distinctCounter) Ingest(ctx context.Context, q store.Querier, line *classify.Line) (bool, error) {
	method, payload, ok := line.Payload()
	if !ok {
		return false, nil
	}

	id, err := a.extract(method, payload)
	if errors.Is(err, errIrrelevant) {
		return false, nil
	}
	if err != nil {
		a.logger.Warn("Skipping malformed payload",
			"feature", a.feature,
			"method", method,
			"time", line.Token,
			"error", err,
			"payload", logger.Truncate(payload, maxLoggedPayload),
		)
		return false, nil
	}

	delta, err := a.day(ctx, q, line.DayKey())
	if err != nil {
		return false, err
	}
	if _, seen := delta.base.ids[id]; seen {
		return true, nil
	}
	if _, seen := delta.added[id]; seen {
		return true, nil
	}
	delta.added[id] = struct{}{}
	delta.pending = append(delta.pending, id)
	return true, nil
}

// day returns the working delta for day, seeding the committed state from
// the store on first encounter in the run.
func (a *distinctCounter) day(ctx context.Context, q store.Querier, day int64) (*dayDelta, error) {
	if d, ok := a.deltas[day]; ok {
		return d, nil
	}

	base, ok := a.committed.Get(day)
	if !ok {
		ids, err := a.store.EntryIDs(ctx, q, a.entries, day)
		if err != nil {
			return nil, err
		}
		count, err := a.store.DayCount(ctx, q, a.summary, day)
		if err != nil {
			return nil, err
		}

		base = &dayState{ids: make(map[int64]struct{}, len(ids)), count: count}
		for _, id := range ids {
			base.ids[id] = struct{}{}
		}
		if n := int64(len(base.ids)); n > base.count {
			base.count = n
		}
		a.committed.Add(day, base)

		a.logger.Debug("Distinct day seeded",
			"feature", a.feature,
			"day", day,
			"ids", len(base.ids),
			"count", base.count,
		)
	}

	d := &dayDelta{base: base, added: make(map[int64]struct{})}
	a.deltas[day] = d
	return d, nil
}

func (a *distinctCounter) Flush(ctx context.Context, q store.Querier) error {
	days := make([]int64, 0, len(a.deltas))
	for day, d := range a.deltas {
		if len(d.pending) > 0 {
			days = append(days, day)
		}
	}
	if len(days) == 0 {
		return nil
	}
	slices.Sort(days)

	var entries, counts [][]any
	for _, day := range days {
		d := a.deltas[day]
		ids := slices.Clone(d.pending)
		slices.Sort(ids)
		for _, id := range ids {
			entries = append(entries, []any{day, id})
		}
		counts = append(counts, []any{day, d.base.count + int64(len(d.added))})
	}

	if err := a.store.InsertIgnore(ctx, q, a.entries, entries); err != nil {
		return err
	}
	// The summary is replaced, not added to: the count already includes the
	// stored baseline.
	if err := a.store.Upsert(ctx, q, a.summary, counts); err != nil {
		return err
	}

	for _, day := range days {
		a.deltas[day].pending = nil
	}
	return nil
}

// Commit merges the identifiers of the committed file into the day cache.
func (a *distinctCounter) Commit() {
	for day, d := range a.deltas {
		for id := range d.added {
			d.base.ids[id] = struct{}{}
		}
		d.base.count += int64(len(d.added))
		a.committed.Add(day, d.base)
	}
	clear(a.deltas)
}

func (a *distinctCounter) Reconcile(context.Context, store.Querier, time.Time, time.Time) error {
	return ErrUnsupported
}

func (a *distinctCounter) Purge(ctx context.Context, q store.Querier, start, end time.Time) error {
	if err := purgeDays(ctx, q, a.store, a.entries, start, end); err != nil {
		return err
	}
	if err := purgeDays(ctx, q, a.store, a.summary, start, end); err != nil {
		return err
	}
	a.committed.Purge()
	clear(a.deltas)
	return nil
}

// userMethodKeys maps the methods that mark a user as active to the payload
// field holding the user id.
var userMethodKeys = map[string]string{
	"getMissedCallList": "calleeId",
	"userOnlineStatus":  "userId",
}

func newUserCount(deps Deps) (*distinctCounter, error) {
	return newDistinctCounter(UserCount, deps, store.UserEntryTable, store.UniqueUserCountTable, userID)
}

func userID(method, payload string) (int64, error) {
	key, ok := userMethodKeys[method]
	if !ok {
		return 0, errIrrelevant
	}
	var id int64
	err := withObject(payload, func(v *fastjson.Value) error {
		var err error
		id, err = int64Field(v, key)
		return err
	})
	return id, err
}

const methodUpdateStreamViewCount = "updateStreamViewCount"

func newLiveViewerCount(deps Deps) (*distinctCounter, error) {
	return newDistinctCounter(LiveViewerCount, deps, store.LiveViewerEntryTable, store.UniqueLiveViewerCountTable, viewerID)
}

// viewerID reads ssnUserId, falling back to sessionUserId.
func viewerID(method, payload string) (int64, error) {
	if method != methodUpdateStreamViewCount {
		return 0, errIrrelevant
	}
	var id int64
	err := withObject(payload, func(v *fastjson.Value) error {
		var err error
		if v.Exists("ssnUserId") {
			id, err = int64Field(v, "ssnUserId")
		} else {
			id, err = int64Field(v, "sessionUserId")
		}
		return err
	})
	return id, err
}
