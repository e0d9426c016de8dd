package aggregator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mixaill76/log_analyzer/internal/classify"
	"github.com/mixaill76/log_analyzer/internal/logger"
	"github.com/mixaill76/log_analyzer/internal/store"
	"github.com/tidwall/gjson"
)

// Media types stored in analytics_media_count.type.
const (
	MediaImage = "IMAGE"
	MediaAudio = "AUDIO"
	MediaVideo = "VIDEO"
)

// Feed content types carried in feedDTO.contentType.
const (
	contentSingleImage          = 1
	contentSingleImageWithAlbum = 2
	contentMultipleImageInAlbum = 3
	contentSingleAudio          = 4
	contentSingleAudioWithAlbum = 5
	contentMultipleAudioInAlbum = 6
	contentSingleVideo          = 7
	contentSingleVideoWithAlbum = 8
	contentMultipleVideoInAlbum = 9
)

const (
	methodAddStatus              = "addStatus"
	methodAddProfileOrCoverImage = "addProfileOrCoverImage"
)

// mediaCount counts uploaded media items per type and hour.
type mediaCount struct {
	store  *store.Store
	logger *slog.Logger
	counts counter[string]
}

func newMediaCount(deps Deps) *mediaCount {
	return &mediaCount{
		store:  deps.Store,
		logger: deps.logger(),
		counts: newCounter[string](),
	}
}

func (a *mediaCount) Feature() Feature { return MediaCount }

func (a *mediaCount) Reset() { a.counts.reset() }

func (a *mediaCount) Ingest(_ context.Context, _ store.Querier, line *classify.Line) (bool, error) {
	method, payload, ok := line.Payload()
	if !ok {
		return false, nil
	}

	var kind string
	var n int64
	switch {
	case strings.EqualFold(method, methodAddProfileOrCoverImage):
		kind, n = MediaImage, 1
	case strings.EqualFold(method, methodAddStatus):
		if !gjson.Valid(payload) {
			a.logger.Warn("Skipping malformed payload",
				"feature", MediaCount,
				"method", method,
				"time", line.Token,
				"payload", logger.Truncate(payload, maxLoggedPayload),
			)
			return false, nil
		}
		kind, n = statusMedia(payload)
	}

	if kind == "" || n <= 0 {
		return false, nil
	}
	a.counts.add(kind, line.HourKey(), n)
	return true, nil
}

// statusMedia returns the media type and item count of an addStatus
// payload. Statuses without an album carry no media.
func statusMedia(payload string) (string, int64) {
	feed := gjson.Get(payload, "feedDTO")
	album := feed.Get("albumDTO")
	if !album.IsObject() {
		return "", 0
	}

	switch feed.Get("contentType").Int() {
	case contentSingleImage, contentSingleImageWithAlbum, contentMultipleImageInAlbum:
		return arrayLen(album, "imgDTOs", MediaImage)
	case contentSingleAudio, contentSingleAudioWithAlbum, contentMultipleAudioInAlbum:
		return arrayLen(album, "multiMediaDTOs", MediaAudio)
	case contentSingleVideo, contentSingleVideoWithAlbum, contentMultipleVideoInAlbum:
		return arrayLen(album, "multiMediaDTOs", MediaVideo)
	}
	return "", 0
}

func arrayLen(album gjson.Result, path, kind string) (string, int64) {
	items := album.Get(path)
	if !items.IsArray() {
		return "", 0
	}
	return kind, int64(len(items.Array()))
}

func (a *mediaCount) Flush(ctx context.Context, q store.Querier) error {
	return flushCounter(ctx, q, a.store, store.MediaCountTable, &a.counts, strings.Compare,
		func(b bucketCount[string]) []any {
			return []any{b.dim, b.time, b.count}
		})
}

func (a *mediaCount) Reconcile(context.Context, store.Querier, time.Time, time.Time) error {
	return ErrUnsupported
}

func (a *mediaCount) Purge(ctx context.Context, q store.Querier, start, end time.Time) error {
	return purgeHours(ctx, q, a.store, store.MediaCountTable, start, end)
}
