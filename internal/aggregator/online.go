package aggregator

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/mixaill76/log_analyzer/internal/classify"
	"github.com/mixaill76/log_analyzer/internal/logger"
	"github.com/mixaill76/log_analyzer/internal/store"
	"github.com/mixaill76/log_analyzer/internal/timestamp"
	"github.com/valyala/fastjson"
)

const methodUserOnlineStatus = "userOnlineStatus"

type onlineKey struct {
	time   int64
	userID int64
}

// onlineUserStatus records the status reported by every userOnlineStatus
// request, keyed by the full line timestamp and user.
type onlineUserStatus struct {
	store    *store.Store
	logger   *slog.Logger
	statuses map[onlineKey]int64
}

func newOnlineUserStatus(deps Deps) *onlineUserStatus {
	return &onlineUserStatus{
		store:    deps.Store,
		logger:   deps.logger(),
		statuses: make(map[onlineKey]int64),
	}
}

func (a *onlineUserStatus) Feature() Feature { return OnlineUserStatus }

func (a *onlineUserStatus) Reset() { clear(a.statuses) }

func (a *onlineUserStatus) Ingest(_ context.Context, _ store.Querier, line *classify.Line) (bool, error) {
	method, payload, ok := line.Payload()
	if !ok || method != methodUserOnlineStatus {
		return false, nil
	}

	var userID, status int64
	err := withObject(payload, func(v *fastjson.Value) error {
		var err error
		if userID, err = int64Field(v, "userId"); err != nil {
			return err
		}
		status, err = int64Field(v, "status")
		return err
	})
	if err != nil {
		a.logger.Warn("Skipping malformed payload",
			"feature", OnlineUserStatus,
			"time", line.Token,
			"error", err,
			"payload", logger.Truncate(payload, maxLoggedPayload),
		)
		return false, nil
	}

	a.statuses[onlineKey{time: line.TokenKey(), userID: userID}] = status
	return true, nil
}

func (a *onlineUserStatus) Flush(ctx context.Context, q store.Querier) error {
	if len(a.statuses) == 0 {
		return nil
	}
	keys := make([]onlineKey, 0, len(a.statuses))
	for k := range a.statuses {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y onlineKey) int {
		if c := cmp.Compare(x.time, y.time); c != 0 {
			return c
		}
		return cmp.Compare(x.userID, y.userID)
	})

	rows := make([][]any, len(keys))
	for i, k := range keys {
		rows[i] = []any{k.time, k.userID, a.statuses[k]}
	}
	if err := a.store.InsertIgnore(ctx, q, store.OnlineUserStatusTable, rows); err != nil {
		return err
	}
	clear(a.statuses)
	return nil
}

func (a *onlineUserStatus) Reconcile(context.Context, store.Querier, time.Time, time.Time) error {
	return ErrUnsupported
}

func (a *onlineUserStatus) Purge(ctx context.Context, q store.Querier, start, end time.Time) error {
	_, err := a.store.DeleteRange(ctx, q, store.OnlineUserStatusTable, timestamp.TokenKey(start), timestamp.TokenKey(end))
	return err
}
