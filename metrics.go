package phoneAuth

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	MetricSendCodeSuccess MetricID = iota
	MetricSendCodeRateLimited
	MetricSendCodeLocked
	MetricSendCodeFailure
	MetricCodeLoginSuccess
	MetricCodeMismatch
	MetricCodeExpired
	MetricCodeNoRecord
	MetricCodeLocked
	MetricLockoutTriggered
	MetricPasswordLoginSuccess
	MetricPasswordLoginFailure
	MetricPasswordLoginRateLimited
	MetricAccountCreated
	MetricAccountDuplicate
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricValidateSuccess
	MetricValidateFailure
	MetricStoreFailOpen
	MetricOTPPurged
	MetricValidateLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of the validate latency
// buckets; one extra bucket catches everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBucketCount = len(latencyBounds) + 1

// counterSlot pads each counter to a cache line.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed set of atomic counters plus the validate latency
// histogram. All methods are safe on a nil receiver.
type Metrics struct {
	enabled bool
	latency bool
	slots   [metricIDCount]counterSlot
	buckets [latencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter. Histogram buckets
// are non-cumulative: ≤5ms, ≤10ms, ≤25ms, ≤50ms, ≤100ms, ≤250ms, ≤500ms, +Inf.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add increments id by n. Used for batch counts such as purged records.
func (m *Metrics) Add(id MetricID, n uint64) {
	if !m.Enabled() || id >= metricIDCount || n == 0 {
		return
	}
	m.slots[id].n.Add(n)
}

// Observe records d in the histogram of id. Only MetricValidateLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricValidateLatency {
		return
	}
	m.buckets[latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.slots[id].n.Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}
	for id := range metricIDCount {
		if id != MetricValidateLatency {
			s.Counters[id] = m.slots[id].n.Load()
		}
	}
	if m.latency {
		hist := make([]uint64, latencyBucketCount)
		for i := range hist {
			hist[i] = m.buckets[i].Load()
		}
		s.Histograms[MetricValidateLatency] = hist
	}
	return s
}

// latencyBucket compares at millisecond resolution, so 5.9ms still lands in
// the 5ms bucket.
func latencyBucket(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	return sort.Search(len(latencyBounds), func(i int) bool {
		return d <= latencyBounds[i]
	})
}
