package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mixaill76/log_analyzer/internal/classify"
	"github.com/mixaill76/log_analyzer/internal/logger"
	"github.com/mixaill76/log_analyzer/internal/store"
	"github.com/valyala/fastjson"
)

// liveStreamFields maps LiveStreamHistory document keys to columns of
// analytics_live_stream.
var liveStreamFields = [][2]string{
	{"streamId", "streamid"},
	{"cnty", "country"},
	{"chatport", "chatport"},
	{"chatServerIp", "chatserverip"},
	{"streamIp", "streamserverip"},
	{"streamPort", "streamport"},
	{"catList", "tags"},
	{"isVrfid", "userstatus"},
	{"vwrIp", "viewerserverip"},
	{"vwrPort", "viewerserverport"},
	{"dvcc", "devicecategory"},
	{"endTm", "endtime"},
	{"giftOn", "gifton"},
	{"type", "isfeatured"},
	{"lat", "latitude"},
	{"lc", "likecount"},
	{"lon", "longitude"},
	{"fn", "name"},
	{"prIm", "profileimage"},
	{"uId", "ringid"},
	{"stTm", "starttime"},
	{"ttl", "title"},
	{"utId", "userid"},
	{"vwc", "viewcount"},
	{"coin", "startcoin"},
	{"endCoin", "endcoin"},
	{"utTyp", "usertype"},
	{"rmid", "roomid"},
	{"device", "device"},
	{"tariff", "tariff"},
	{"ftrdScr", "featuredscore"},
	{"mType", "streammediatype"},
}

// liveStreamText lists the text columns. Other columns are numeric.
var liveStreamText = map[string]bool{
	"streamid":       true,
	"country":        true,
	"chatserverip":   true,
	"streamserverip": true,
	"tags":           true,
	"viewerserverip": true,
	"profileimage":   true,
	"title":          true,
	"name":           true,
}

const liveStreamLogTime = "logtime"

// liveStream keeps the latest known attributes of every stream. Documents
// may be partial; only the columns present are written, so later partial
// documents never clear earlier values.
type liveStream struct {
	store   *store.Store
	logger  *slog.Logger
	streams map[string]map[string]any
}

func newLiveStream(deps Deps) *liveStream {
	return &liveStream{
		store:   deps.Store,
		logger:  deps.logger(),
		streams: make(map[string]map[string]any),
	}
}

func (a *liveStream) Feature() Feature { return LiveStream }

func (a *liveStream) Reset() { clear(a.streams) }

func (a *liveStream) Ingest(_ context.Context, _ store.Querier, line *classify.Line) (bool, error) {
	doc, ok := line.LiveStream()
	if !ok {
		return false, nil
	}

	values := make(map[string]any)
	err := withObject(doc, func(v *fastjson.Value) error {
		for _, f := range liveStreamFields {
			field := v.Get(f[0])
			if field == nil {
				continue
			}
			if val, ok := columnValue(field, liveStreamText[f[1]]); ok {
				values[f[1]] = val
			}
		}
		return nil
	})
	if err == nil && values["streamid"] == nil {
		err = fmt.Errorf("%w: missing streamId", ErrPayload)
	}
	if err != nil {
		a.logger.Warn("Skipping malformed payload",
			"feature", LiveStream,
			"time", line.Token,
			"error", err,
			"payload", logger.Truncate(doc, maxLoggedPayload),
		)
		return false, nil
	}
	values[liveStreamLogTime] = line.Time.UnixMilli()

	id := values["streamid"].(string)
	if prev, ok := a.streams[id]; ok {
		for col, val := range values {
			prev[col] = val
		}
	} else {
		a.streams[id] = values
	}
	return true, nil
}

// columnValue converts a JSON value for a text or numeric column.
func columnValue(v *fastjson.Value, text bool) (any, bool) {
	switch v.Type() {
	case fastjson.TypeNull:
		return nil, false
	case fastjson.TypeString:
		s := string(v.GetStringBytes())
		if text {
			return s, true
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		return nil, false
	case fastjson.TypeNumber:
		if text {
			return v.String(), true
		}
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		f, err := v.Float64()
		return f, err == nil
	case fastjson.TypeTrue:
		if text {
			return "true", true
		}
		return int64(1), true
	case fastjson.TypeFalse:
		if text {
			return "false", true
		}
		return int64(0), true
	default:
		// Arrays and objects, such as catList, are stored as JSON text.
		if text {
			return v.String(), true
		}
		return nil, false
	}
}

type liveStreamGroup struct {
	table store.Table
	rows  [][]any
}

func (a *liveStream) Flush(ctx context.Context, q store.Querier) error {
	if len(a.streams) == 0 {
		return nil
	}
	ids := make([]string, 0, len(a.streams))
	for id := range a.streams {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	// Streams are grouped by the set of columns they carry so that each
	// statement has a fixed column list.
	groups := make(map[string]*liveStreamGroup)
	var order []string
	for _, id := range ids {
		values := a.streams[id]
		var cols []string
		for _, c := range store.LiveStreamTable.Columns {
			if _, ok := values[c]; ok {
				cols = append(cols, c)
			}
		}
		sig := strings.Join(cols, ",")
		g, ok := groups[sig]
		if !ok {
			g = &liveStreamGroup{table: store.LiveStreamTable.Subset(cols)}
			groups[sig] = g
			order = append(order, sig)
		}
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = values[c]
		}
		g.rows = append(g.rows, row)
	}

	for _, sig := range order {
		g := groups[sig]
		if err := a.store.Upsert(ctx, q, g.table, g.rows); err != nil {
			return err
		}
	}
	clear(a.streams)
	return nil
}

func (a *liveStream) Reconcile(context.Context, store.Querier, time.Time, time.Time) error {
	return ErrUnsupported
}

func (a *liveStream) Purge(ctx context.Context, q store.Querier, start, end time.Time) error {
	_, err := a.store.DeleteRange(ctx, q, store.LiveStreamTable, start.UnixMilli(), end.UnixMilli())
	return err
}
