package aggregator

import (
	"context"
	"slices"
	"time"

	"github.com/mixaill76/log_analyzer/internal/store"
	"github.com/mixaill76/log_analyzer/internal/timestamp"
)

type bucket[K comparable] struct {
	dim  K
	time int64
}

type bucketCount[K comparable] struct {
	bucket[K]
	count int64
}

// counter maps (dimension, time bucket) to a count. It is the working
// state of the additive metrics.
type counter[K comparable] struct {
	counts map[bucket[K]]int64
}

func newCounter[K comparable]() counter[K] {
	return counter[K]{counts: make(map[bucket[K]]int64)}
}

func (c *counter[K]) add(dim K, t, n int64) {
	c.counts[bucket[K]{dim: dim, time: t}] += n
}

func (c *counter[K]) reset() {
	clear(c.counts)
}

func (c *counter[K]) len() int {
	return len(c.counts)
}

// sorted returns the buckets ordered by time, then by dimension.
func (c *counter[K]) sorted(cmp func(a, b K) int) []bucketCount[K] {
	out := make([]bucketCount[K], 0, len(c.counts))
	for b, n := range c.counts {
		out = append(out, bucketCount[K]{bucket: b, count: n})
	}
	slices.SortFunc(out, func(a, b bucketCount[K]) int {
		if a.time != b.time {
			if a.time < b.time {
				return -1
			}
			return 1
		}
		return cmp(a.dim, b.dim)
	})
	return out
}

// flushCounter upserts every bucket of c into t and clears c.
func flushCounter[K comparable](ctx context.Context, q store.Querier, s *store.Store, t store.Table,
	c *counter[K], cmp func(a, b K) int, row func(bucketCount[K]) []any) error {
	if c.len() == 0 {
		return nil
	}
	buckets := c.sorted(cmp)
	rows := make([][]any, len(buckets))
	for i, b := range buckets {
		rows[i] = row(b)
	}
	if err := s.Upsert(ctx, q, t, rows); err != nil {
		return err
	}
	c.reset()
	return nil
}

// hourRange converts [start, end) to yyyyMMddHH bucket bounds.
func hourRange(start, end time.Time) (int64, int64) {
	return timestamp.HourKey(start), timestamp.HourKey(end)
}

func purgeHours(ctx context.Context, q store.Querier, s *store.Store, t store.Table, start, end time.Time) error {
	from, to := hourRange(start, end)
	_, err := s.DeleteRange(ctx, q, t, from, to)
	return err
}

func purgeDays(ctx context.Context, q store.Querier, s *store.Store, t store.Table, start, end time.Time) error {
	_, err := s.DeleteRange(ctx, q, t, timestamp.DayKey(start), timestamp.DayKey(end))
	return err
}
