// Package aggregator implements the metrics extracted from log lines.
//
// Every metric satisfies Aggregator. The set is closed: New constructs the
// eight known features and nothing else. Aggregators never own the
// database transaction; the caller passes it to each operation.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mixaill76/log_analyzer/internal/classify"
	"github.com/mixaill76/log_analyzer/internal/store"
)

var (
	// ErrUnsupported is returned by Reconcile for metrics that are replayed
	// from archived files instead of being re-derived in the database.
	ErrUnsupported = errors.New("aggregator: operation not supported")

	// ErrUnknownFeature is returned for feature names outside the known set.
	ErrUnknownFeature = errors.New("aggregator: unknown feature")

	// ErrPayload marks a matched line whose payload could not be decoded.
	ErrPayload = errors.New("aggregator: malformed payload")
)

// Feature names a metric.
type Feature string

const (
	MethodCount       Feature = "MethodCount"
	ActivityCount     Feature = "ActivityCount"
	MediaCount        Feature = "MediaCount"
	ErrorMessageCount Feature = "ErrorMessageCount"
	LiveStream        Feature = "LiveStream"
	UserCount         Feature = "UserCount"
	LiveViewerCount   Feature = "LiveViewerCount"
	OnlineUserStatus  Feature = "OnlineUserStatus"
)

// Features lists every feature in registration order. Flushes run in this
// order.
var Features = []Feature{
	ActivityCount,
	MethodCount,
	MediaCount,
	LiveStream,
	OnlineUserStatus,
	ErrorMessageCount,
	LiveViewerCount,
	UserCount,
}

// Source tells the revisit controller how a feature is reconciled.
type Source int

const (
	// SourceArchive features are purged and rebuilt by replaying archived
	// files.
	SourceArchive Source = iota
	// SourceDatabase features are purged and re-derived from rows already
	// in the database.
	SourceDatabase
)

func (s Source) String() string {
	if s == SourceDatabase {
		return "database"
	}
	return "archive"
}

// Source returns how f is reconciled.
func (f Feature) Source() Source {
	if f == ActivityCount {
		return SourceDatabase
	}
	return SourceArchive
}

// ParseFeature matches name case-insensitively against the known features.
func ParseFeature(name string) (Feature, error) {
	name = strings.TrimSpace(name)
	for _, f := range Features {
		if strings.EqualFold(string(f), name) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFeature, name)
}

// Aggregator is the contract every metric implements.
type Aggregator interface {
	Feature() Feature
	// Reset discards per-file working state.
	Reset()
	// Ingest inspects one line and reports whether it was relevant. Payload
	// errors are logged and reported as unmatched; a returned error comes
	// from the store and aborts the file.
	Ingest(ctx context.Context, q store.Querier, line *classify.Line) (bool, error)
	// Flush writes working state in batches and clears it, so repeated
	// flushes add up to a single flush of the union.
	Flush(ctx context.Context, q store.Querier) error
	// Reconcile recomputes stored aggregates for [start, end).
	Reconcile(ctx context.Context, q store.Querier, start, end time.Time) error
	// Purge deletes stored rows for [start, end).
	Purge(ctx context.Context, q store.Querier, start, end time.Time) error
}

// Committer is implemented by aggregators that keep state across files.
// Commit is called once the file's transaction has committed.
type Committer interface {
	Commit()
}

// Deps are the collaborators shared by all aggregators of a run.
type Deps struct {
	Store *store.Store
	// Activities is the method to activity relation used by ActivityCount.
	Activities store.ActivityMethods
	// DayCache bounds the number of committed day sets the distinct
	// counters keep in memory.
	DayCache int
	Logger   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// New constructs the aggregator for f.
func New(f Feature, deps Deps) (Aggregator, error) {
	switch f {
	case MethodCount:
		return newMethodCount(deps), nil
	case ActivityCount:
		return newActivityCount(deps), nil
	case MediaCount:
		return newMediaCount(deps), nil
	case ErrorMessageCount:
		return newErrorMessageCount(deps), nil
	case LiveStream:
		return newLiveStream(deps), nil
	case UserCount:
		return newUserCount(deps)
	case LiveViewerCount:
		return newLiveViewerCount(deps)
	case OnlineUserStatus:
		return newOnlineUserStatus(deps), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, f)
	}
}

// Set is an ordered group of aggregators driven together.
type Set []Aggregator

// NewSet constructs the aggregators for features, in the given order.
func NewSet(deps Deps, features ...Feature) (Set, error) {
	set := make(Set, 0, len(features))
	for _, f := range features {
		a, err := New(f, deps)
		if err != nil {
			return nil, err
		}
		set = append(set, a)
	}
	return set, nil
}

// All constructs every feature in registration order.
func All(deps Deps) (Set, error) {
	return NewSet(deps, Features...)
}

// Reset resets every aggregator.
func (s Set) Reset() {
	for _, a := range s {
		a.Reset()
	}
}

// Offer hands line to every aggregator, without short-circuiting, and
// reports whether any of them matched.
func (s Set) Offer(ctx context.Context, q store.Querier, line *classify.Line) (bool, error) {
	matched := false
	for _, a := range s {
		ok, err := a.Ingest(ctx, q, line)
		if err != nil {
			return matched, fmt.Errorf("%s: %w", a.Feature(), err)
		}
		matched = matched || ok
	}
	return matched, nil
}

// Flush flushes every aggregator in order and stops at the first error.
func (s Set) Flush(ctx context.Context, q store.Querier) error {
	for _, a := range s {
		if err := a.Flush(ctx, q); err != nil {
			return fmt.Errorf("flush %s: %w", a.Feature(), err)
		}
	}
	return nil
}

// Commit promotes per-file state of every Committer.
func (s Set) Commit() {
	for _, a := range s {
		if c, ok := a.(Committer); ok {
			c.Commit()
		}
	}
}

// Purge purges [start, end) for every aggregator.
func (s Set) Purge(ctx context.Context, q store.Querier, start, end time.Time) error {
	for _, a := range s {
		if err := a.Purge(ctx, q, start, end); err != nil {
			return fmt.Errorf("purge %s: %w", a.Feature(), err)
		}
	}
	return nil
}

// Features returns the features of the set in order.
func (s Set) Features() []Feature {
	out := make([]Feature, len(s))
	for i, a := range s {
		out[i] = a.Feature()
	}
	return out
}
