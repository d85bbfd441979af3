package gpudebug

import "sync/atomic"

// Counters are package-global operation counts, cheap enough to maintain
// unconditionally, and useful when debugging marker pool behavior.

// QueryPoolCounters track marker pool operations across all contexts.
type QueryPoolCounters struct {
	Inserted     atomic.Uint64 // queries drawn from a freelist
	Collected    atomic.Uint64 // timestamps reported after device completion
	Sentinel     atomic.Uint64 // zero timestamps reported for unsubmitted chains
	RecordFailed atomic.Uint64 // driver record failures, ignored at insert
}

// LossPercent returns the percent (0..100) of inserted queries that never
// reported a measured timestamp.
func (qc *QueryPoolCounters) LossPercent() float64 {
	var (
		inserted  = qc.Inserted.Load()
		collected = qc.Collected.Load()
	)
	if inserted <= 0 {
		return 0.0
	}
	if collected >= inserted {
		return 0.0
	}
	return 100 * float64(inserted-collected) / float64(inserted)
}

// Values returns the current values of the counters.
func (qc *QueryPoolCounters) Values() (inserted, collected, sentinel, recordFailed uint64) {
	return qc.Inserted.Load(), qc.Collected.Load(), qc.Sentinel.Load(), qc.RecordFailed.Load()
}

// ZoneOpCounters track zone wrapper outcomes across all contexts.
type ZoneOpCounters struct {
	Opened  atomic.Uint64 // zone begins delivered to the sink
	Closed  atomic.Uint64 // zone ends delivered to the sink
	Dropped atomic.Uint64 // zone operations skipped on pool exhaustion
}

// Values returns the current values of the counters.
func (zc *ZoneOpCounters) Values() (opened, closed, dropped uint64) {
	return zc.Opened.Load(), zc.Closed.Load(), zc.Dropped.Load()
}

var (
	// QueryCounters tracks the marker pools.
	QueryCounters QueryPoolCounters

	// ZoneCounters tracks the zone wrappers.
	ZoneCounters ZoneOpCounters
)
