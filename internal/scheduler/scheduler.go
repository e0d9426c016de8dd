// Package scheduler runs analysis cycles hourly at a fixed minute offset.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mixaill76/log_analyzer/internal/timestamp"
	"github.com/mixaill76/log_analyzer/internal/utils"
)

// DefaultMinuteOffset is the minute past the hour at which cycles start.
const DefaultMinuteOffset = 15

// CycleFunc runs one analysis cycle.
type CycleFunc func(ctx context.Context) error

// NextRun returns the start of the hour after now plus offset.
func NextRun(now time.Time, offset time.Duration) time.Time {
	return timestamp.StartOfHour(now).Add(time.Hour + offset)
}

// Scheduler runs cycles one at a time. The first cycle starts immediately;
// a cycle that overruns its slot is followed immediately by the next one.
type Scheduler struct {
	offset time.Duration
	cycle  CycleFunc
	clock  utils.Clock
	after  func(time.Duration) <-chan time.Time
	logger *slog.Logger
}

func New(minuteOffset int, cycle CycleFunc, clock utils.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = utils.SystemClock(time.Local)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		offset: time.Duration(minuteOffset) * time.Minute,
		cycle:  cycle,
		clock:  clock,
		after:  time.After,
		logger: logger,
	}
}

// Run loops until ctx is cancelled. Cancellation only interrupts the sleep
// between cycles; a running cycle always completes.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := NextRun(s.clock(), s.offset)

		if err := s.cycle(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("Analysis cycle failed", "error", err)
		}

		if ctx.Err() != nil {
			s.logger.Info("Scheduler stopped")
			return
		}

		wait := next.Sub(s.clock())
		if wait <= 0 {
			s.logger.Warn("Cycle overran its slot, starting next cycle now",
				"scheduled", next,
			)
			continue
		}

		s.logger.Debug("Sleeping until next cycle", "next_run", next, "wait", wait)
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-s.after(wait):
		}
	}
}
