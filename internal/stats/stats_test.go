package stats

import "testing"

func TestSnapshotInitialState(t *testing.T) {
	s := New()
	snap := s.Snapshot()
	if snap.RequestsAdmitted != 0 || snap.RequestsCompleted != 0 {
		t.Errorf("expected zeroed counters on a fresh Stats, got %+v", snap)
	}
}

func TestRecordAdmitSplitsReadsAndWrites(t *testing.T) {
	s := New()
	s.RecordAdmit(false)
	s.RecordAdmit(true)
	s.RecordAdmit(false)

	snap := s.Snapshot()
	if snap.RequestsAdmitted != 3 {
		t.Errorf("expected 3 admitted, got %d", snap.RequestsAdmitted)
	}
	if snap.ReadRequests != 2 {
		t.Errorf("expected 2 reads, got %d", snap.ReadRequests)
	}
	if snap.WriteRequests != 1 {
		t.Errorf("expected 1 write, got %d", snap.WriteRequests)
	}
}

func TestCacheHitRate(t *testing.T) {
	s := New()
	s.RecordCacheHit()
	s.RecordCacheHit()
	s.RecordCacheHit()
	s.RecordCacheMiss()

	snap := s.Snapshot()
	if snap.HitRate < 0.74 || snap.HitRate > 0.76 {
		t.Errorf("expected hit rate ~0.75, got %f", snap.HitRate)
	}
}

func TestRecordCompleteBucketsLatencyCumulatively(t *testing.T) {
	s := New()
	s.RecordComplete(2)  // falls into buckets >= 4
	s.RecordComplete(10) // falls into buckets >= 16

	snap := s.Snapshot()
	if snap.LatencyHistogram[0] != 0 {
		t.Errorf("expected bucket 0 (edge 1) empty, got %d", snap.LatencyHistogram[0])
	}
	if snap.LatencyHistogram[1] != 1 {
		t.Errorf("expected bucket 1 (edge 4) to hold the cycle=2 sample, got %d", snap.LatencyHistogram[1])
	}
	if snap.LatencyHistogram[2] != 2 {
		t.Errorf("expected bucket 2 (edge 16) to hold both samples cumulatively, got %d", snap.LatencyHistogram[2])
	}
	if snap.AvgLatencyCycles != 6 {
		t.Errorf("expected average latency (2+10)/2=6, got %f", snap.AvgLatencyCycles)
	}
}

func TestResetZeroesCountersAndRebasesCycleWindow(t *testing.T) {
	s := New()
	s.RecordAdmit(false)
	s.RecordComplete(5)
	s.Tick(100)

	s.Reset(100)
	snap := s.Snapshot()
	if snap.RequestsAdmitted != 0 || snap.RequestsCompleted != 0 {
		t.Errorf("expected Reset to zero counters, got %+v", snap)
	}
	if snap.Cycles != 0 {
		t.Errorf("expected the cycle window to rebase to 0 right after Reset, got %d", snap.Cycles)
	}
}

func TestRequestsPerCycleDerivesFromCycleWindow(t *testing.T) {
	s := New()
	s.Reset(0)
	s.RecordComplete(1)
	s.RecordComplete(1)
	s.Tick(10)

	snap := s.Snapshot()
	if snap.RequestsPerCycle != 0.2 {
		t.Errorf("expected 2 completions over 10 cycles = 0.2, got %f", snap.RequestsPerCycle)
	}
}
