package authcore

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts completed authentications.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected authentications of any cause except
	// lockout.
	MetricLoginFailure
	// MetricLoginLocked counts authentications rejected by an active lockout.
	MetricLoginLocked
	// MetricRefreshSuccess counts successful access-credential refreshes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refreshes.
	MetricRefreshFailure
	// MetricTokenRevoked counts single-credential revocations.
	MetricTokenRevoked
	// MetricRevokeAll counts whole-account revocations.
	MetricRevokeAll
	// MetricResetAuthorized counts password-reset requests that passed the
	// lockout gate.
	MetricResetAuthorized
	// MetricResetLocked counts password-reset requests rejected by lockout.
	MetricResetLocked

	metricIDCount
)

// Metrics is a fixed set of atomic counters. A nil or disabled Metrics
// accepts increments and reports zeros.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// NewMetrics returns an enabled counter set.
func NewMetrics() *Metrics {
	return &Metrics{enabled: true}
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || !m.enabled || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() map[MetricID]uint64 {
	s := make(map[MetricID]uint64, int(metricIDCount))
	for id := MetricID(0); id < metricIDCount; id++ {
		s[id] = m.Value(id)
	}
	return s
}

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() map[MetricID]uint64 {
	if e == nil {
		return map[MetricID]uint64{}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}
