package metrics

import "sync/atomic"

// MetricID identifies one counter.
type MetricID uint8

const (
	MetricRegistration MetricID = iota
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited
	MetricAccountLockout
	MetricTokenIssued
	MetricTokenRefreshed
	MetricTokenRevoked
	MetricRefreshReuseDetected
	MetricOTPSent
	MetricOTPRateLimited
	MetricOTPVerified
	MetricOTPFailed
	MetricPasswordChanged

	// MetricIDCount is the number of defined counters, not a counter itself.
	MetricIDCount
)

// Config controls whether counters record anything.
type Config struct {
	Enabled bool
}

// Metrics holds one atomic counter per MetricID.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]atomic.Uint64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters [MetricIDCount]uint64
}

// New creates a Metrics instance. When disabled, all operations are no-ops.
func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter. Unknown IDs are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies every counter. The copy is not atomic across counters;
// individual values are.
func (m *Metrics) Snapshot() Snapshot {
	var snap Snapshot
	if m == nil {
		return snap
	}
	for i := range m.counters {
		snap.Counters[i] = m.counters[i].Load()
	}
	return snap
}
