// Package stats tracks simulator-wide counters with atomics, exposes a
// point-in-time snapshot with derived rates, and implements a
// prometheus.Collector so a running simulator can be scraped directly.
// Counter/snapshot shape adapted from the teacher's Metrics/MetricsSnapshot
// pair (request admit/complete counters standing in for the teacher's
// read/write/discard/flush op counters, cache hit/miss and DRAM issue
// counters standing in for its queue-depth tracking).
package stats

import (
	"sync/atomic"
)

// LatencyBuckets are end-to-end request latency histogram edges, in
// simulator cycles. Log-spaced the way the teacher's nanosecond buckets are,
// just rebased to a cycle-count domain instead of wall-clock time.
var LatencyBuckets = []uint64{1, 4, 16, 64, 256, 1024, 4096, 16384}

const numLatencyBuckets = 8

// Stats accumulates simulator counters via atomics, safe for concurrent
// RunACycle callers even though the core pipeline itself is single-threaded
// (a watchdog or scrape handler may read concurrently with the driver).
type Stats struct {
	RequestsAdmitted  atomic.Uint64
	RequestsCompleted atomic.Uint64
	ReadRequests      atomic.Uint64
	WriteRequests     atomic.Uint64

	CacheHits   atomic.Uint64
	CacheMisses atomic.Uint64

	DRAMReads   atomic.Uint64
	DRAMWrites  atomic.Uint64
	MSHRMerges  atomic.Uint64

	UopsDispatched atomic.Uint64
	UopsCompleted  atomic.Uint64

	TotalLatencyCycles atomic.Uint64
	LatencyBuckets     [numLatencyBuckets]atomic.Uint64

	StartCycle atomic.Uint64
	EndCycle   atomic.Uint64
}

// New returns a zeroed Stats ready to record from cycle 0.
func New() *Stats {
	return &Stats{}
}

// RecordAdmit records a request entering the pipeline.
func (s *Stats) RecordAdmit(write bool) {
	s.RequestsAdmitted.Add(1)
	if write {
		s.WriteRequests.Add(1)
	} else {
		s.ReadRequests.Add(1)
	}
}

// RecordComplete records a request's retirement and its end-to-end latency
// in cycles, updating the cumulative histogram buckets.
func (s *Stats) RecordComplete(latencyCycles uint64) {
	s.RequestsCompleted.Add(1)
	s.TotalLatencyCycles.Add(latencyCycles)
	for i, edge := range LatencyBuckets {
		if latencyCycles <= edge {
			s.LatencyBuckets[i].Add(1)
		}
	}
}

// RecordCacheHit/RecordCacheMiss record a cache lookup outcome.
func (s *Stats) RecordCacheHit()  { s.CacheHits.Add(1) }
func (s *Stats) RecordCacheMiss() { s.CacheMisses.Add(1) }

// RecordDRAMIssue records a request newly issued to the DRAM collaborator.
func (s *Stats) RecordDRAMIssue(write bool) {
	if write {
		s.DRAMWrites.Add(1)
	} else {
		s.DRAMReads.Add(1)
	}
}

// RecordMSHRMerge records a miss merged onto an already-outstanding MSHR entry.
func (s *Stats) RecordMSHRMerge() { s.MSHRMerges.Add(1) }

// RecordUopDispatch/RecordUopComplete record scheduler activity.
func (s *Stats) RecordUopDispatch() { s.UopsDispatched.Add(1) }
func (s *Stats) RecordUopComplete() { s.UopsCompleted.Add(1) }

// Tick advances the end-of-run cycle marker, called once per simulator cycle.
func (s *Stats) Tick(cycle uint64) {
	s.EndCycle.Store(cycle)
}

// Snapshot is a point-in-time view of Stats with derived rates.
type Snapshot struct {
	RequestsAdmitted  uint64
	RequestsCompleted uint64
	ReadRequests      uint64
	WriteRequests     uint64

	CacheHits   uint64
	CacheMisses uint64
	HitRate     float64

	DRAMReads  uint64
	DRAMWrites uint64
	MSHRMerges uint64

	UopsDispatched uint64
	UopsCompleted  uint64

	AvgLatencyCycles float64
	LatencyHistogram [numLatencyBuckets]uint64

	Cycles           uint64
	RequestsPerCycle float64
}

// Snapshot computes a consistent-enough (each field independently atomic,
// no global lock) point-in-time view, mirroring the teacher's Snapshot.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		RequestsAdmitted:  s.RequestsAdmitted.Load(),
		RequestsCompleted: s.RequestsCompleted.Load(),
		ReadRequests:      s.ReadRequests.Load(),
		WriteRequests:     s.WriteRequests.Load(),
		CacheHits:         s.CacheHits.Load(),
		CacheMisses:       s.CacheMisses.Load(),
		DRAMReads:         s.DRAMReads.Load(),
		DRAMWrites:        s.DRAMWrites.Load(),
		MSHRMerges:        s.MSHRMerges.Load(),
		UopsDispatched:    s.UopsDispatched.Load(),
		UopsCompleted:     s.UopsCompleted.Load(),
		Cycles:            s.EndCycle.Load() - s.StartCycle.Load(),
	}

	lookups := snap.CacheHits + snap.CacheMisses
	if lookups > 0 {
		snap.HitRate = float64(snap.CacheHits) / float64(lookups)
	}
	if snap.RequestsCompleted > 0 {
		snap.AvgLatencyCycles = float64(s.TotalLatencyCycles.Load()) / float64(snap.RequestsCompleted)
	}
	if snap.Cycles > 0 {
		snap.RequestsPerCycle = float64(snap.RequestsCompleted) / float64(snap.Cycles)
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = s.LatencyBuckets[i].Load()
	}
	return snap
}

// Reset zeroes every counter and restarts the cycle window at now.
func (s *Stats) Reset(now uint64) {
	s.RequestsAdmitted.Store(0)
	s.RequestsCompleted.Store(0)
	s.ReadRequests.Store(0)
	s.WriteRequests.Store(0)
	s.CacheHits.Store(0)
	s.CacheMisses.Store(0)
	s.DRAMReads.Store(0)
	s.DRAMWrites.Store(0)
	s.MSHRMerges.Store(0)
	s.UopsDispatched.Store(0)
	s.UopsCompleted.Store(0)
	s.TotalLatencyCycles.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		s.LatencyBuckets[i].Store(0)
	}
	s.StartCycle.Store(now)
	s.EndCycle.Store(now)
}
