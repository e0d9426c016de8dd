package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// MonitorConfig contains configuration for the cycle health monitor.
type MonitorConfig struct {
	// Number of consecutive failed cycles before marking unhealthy
	FailureThreshold int32
	// Logger for health transitions
	Logger *slog.Logger
}

// MonitorStats contains statistics about the health monitor.
type MonitorStats struct {
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int32     `json:"consecutive_failures"`
	Cycles              int64     `json:"cycles"`
	LastCycleTime       time.Time `json:"last_cycle_time"`
	LastSuccessTime     time.Time `json:"last_success_time"`
	LastError           string    `json:"last_error,omitempty"`
}

// Monitor tracks the outcome of analysis cycles. A cycle fails when it
// cannot process current/ at all, for example with the database down.
// After FailureThreshold consecutive failures the analyzer reports itself
// unhealthy until a cycle succeeds again.
type Monitor struct {
	config              *MonitorConfig
	healthy             atomic.Bool
	consecutiveFailures atomic.Int32
	cycles              atomic.Int64

	mu          sync.RWMutex
	lastCycle   time.Time
	lastSuccess time.Time
	lastErr     string
}

// NewMonitor creates a monitor in the healthy state.
func NewMonitor(cfg *MonitorConfig) *Monitor {
	if cfg == nil {
		cfg = &MonitorConfig{}
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &Monitor{config: cfg}
	m.healthy.Store(true)
	return m
}

// Observe records the outcome of a cycle that finished at finished.
func (m *Monitor) Observe(finished time.Time, err error) {
	m.cycles.Add(1)
	wasHealthy := m.healthy.Load()

	m.mu.Lock()
	m.lastCycle = finished
	if err == nil {
		m.lastSuccess = finished
		m.lastErr = ""
	} else {
		m.lastErr = err.Error()
	}
	m.mu.Unlock()

	if err == nil {
		failures := m.consecutiveFailures.Swap(0)
		if !wasHealthy {
			m.config.Logger.Warn("Analyzer recovered (state: unhealthy -> healthy)",
				"failed_cycles", failures,
			)
		}
		m.healthy.Store(true)
		return
	}

	failures := m.consecutiveFailures.Add(1)
	if failures >= m.config.FailureThreshold && wasHealthy {
		m.config.Logger.Error("Analyzer marked unhealthy (state: healthy -> unhealthy)",
			"consecutive_failures", failures,
			"threshold", m.config.FailureThreshold,
			"error", err,
		)
		m.healthy.Store(false)
	}
}

// IsHealthy returns the cached health status.
func (m *Monitor) IsHealthy() bool {
	if m == nil {
		return true
	}
	return m.healthy.Load()
}

// Stats returns current health monitor statistics.
func (m *Monitor) Stats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MonitorStats{
		Healthy:             m.healthy.Load(),
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		Cycles:              m.cycles.Load(),
		LastCycleTime:       m.lastCycle,
		LastSuccessTime:     m.lastSuccess,
		LastError:           m.lastErr,
	}
}

// ServeHTTP writes Stats as JSON, with status 503 while unhealthy.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	stats := m.Stats()
	w.Header().Set("Content-Type", "application/json")
	if !stats.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		m.config.Logger.Debug("Failed to write health response", "error", err)
	}
}
