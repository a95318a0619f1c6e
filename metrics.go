package identity

import "sync/atomic"

// MetricID indexes one engine counter.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterConflict
	MetricLoginSuccess
	MetricLoginFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricVerifySuccess
	MetricVerifyFailure
	MetricLogout
	MetricTokenMinted
	MetricTokenReissued
	MetricTokenReplayRejected
	MetricInitiateSuccess
	MetricInitiateFailure
	MetricConfirmSuccess
	MetricConfirmInvalidToken
	MetricConfirmConflict
	MetricConfirmNotFound
	MetricNotifyFailure
	MetricCleanupEnqueued

	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricRegisterSuccess:     "register_success",
	MetricRegisterConflict:    "register_conflict",
	MetricLoginSuccess:        "login_success",
	MetricLoginFailure:        "login_failure",
	MetricRefreshSuccess:      "refresh_success",
	MetricRefreshFailure:      "refresh_failure",
	MetricVerifySuccess:       "verify_success",
	MetricVerifyFailure:       "verify_failure",
	MetricLogout:              "logout",
	MetricTokenMinted:         "token_minted",
	MetricTokenReissued:       "token_reissued",
	MetricTokenReplayRejected: "token_replay_rejected",
	MetricInitiateSuccess:     "initiate_success",
	MetricInitiateFailure:     "initiate_failure",
	MetricConfirmSuccess:      "confirm_success",
	MetricConfirmInvalidToken: "confirm_invalid_token",
	MetricConfirmConflict:     "confirm_conflict",
	MetricConfirmNotFound:     "confirm_not_found",
	MetricNotifyFailure:       "notify_failure",
	MetricCleanupEnqueued:     "cleanup_enqueued",
}

const cacheLineSize = 64

// paddedCounter occupies a full cache line to avoid false sharing between
// adjacent counters under concurrent increments.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the engine's in-process counters. A disabled Metrics keeps
// every operation a no-op with no atomic traffic.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters keyed by name.
type MetricsSnapshot map[string]uint64

func newMetrics(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments one counter. Out-of-range ids are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value returns the current value of one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter into a name-keyed map.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := make(MetricsSnapshot, metricIDCount)
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap[metricNames[id]] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}
