package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// File and revisit outcomes used as label values.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeSkipped    = "skipped"
)

var (
	FilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_analyzer_files_total",
			Help: "Total number of log files processed, by outcome",
		},
		[]string{"outcome"},
	)

	LinesReadTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "log_analyzer_lines_read_total",
			Help: "Total number of lines read from committed files",
		},
	)

	LinesMatchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "log_analyzer_lines_matched_total",
			Help: "Total number of lines accepted by at least one metric",
		},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "log_analyzer_cycle_duration_seconds",
			Help:    "Analysis cycle duration in seconds",
			Buckets: []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
		},
	)

	LastCycleTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "log_analyzer_last_cycle_timestamp_seconds",
			Help: "Unix time at which the last analysis cycle finished",
		},
	)

	RevisitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_analyzer_revisit_total",
			Help: "Total number of revisit runs, by outcome",
		},
		[]string{"outcome"},
	)
)

type Metrics struct {
	enabled bool
}

func New(enabled bool) *Metrics {
	return &Metrics{
		enabled: enabled,
	}
}

// isEnabled also reports false for a nil receiver so callers may pass a nil
// *Metrics when metrics are not wanted.
func (m *Metrics) isEnabled() bool {
	return m != nil && m.enabled
}

// RecordFile records the outcome of one current/ file. Line counts are only
// added for committed files.
func (m *Metrics) RecordFile(outcome string, linesRead, linesMatched int64) {
	if !m.isEnabled() {
		return
	}
	FilesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCommitted {
		LinesReadTotal.Add(float64(linesRead))
		LinesMatchedTotal.Add(float64(linesMatched))
	}
}

func (m *Metrics) RecordCycle(duration time.Duration, finished time.Time) {
	if !m.isEnabled() {
		return
	}
	CycleDuration.Observe(duration.Seconds())
	LastCycleTimestamp.Set(float64(finished.Unix()))
}

func (m *Metrics) RecordRevisit(outcome string) {
	if !m.isEnabled() {
		return
	}
	RevisitTotal.WithLabelValues(outcome).Inc()
}
