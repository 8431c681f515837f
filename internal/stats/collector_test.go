package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCollectorEmitsOneMetricPerDesc(t *testing.T) {
	s := New()
	s.RecordAdmit(false)
	s.RecordComplete(3)
	c := NewCollector(s)

	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	var metrics []dto.Metric
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("failed to write metric: %v", err)
		}
		metrics = append(metrics, pb)
	}
	if len(metrics) != 11 {
		t.Fatalf("expected 11 emitted metrics, got %d", len(metrics))
	}
}

func TestCollectorDescribeMatchesCollect(t *testing.T) {
	c := NewCollector(New())

	descCh := make(chan *prometheus.Desc, 16)
	c.Describe(descCh)
	close(descCh)

	var descCount int
	for range descCh {
		descCount++
	}

	metricCh := make(chan prometheus.Metric, 16)
	c.Collect(metricCh)
	close(metricCh)

	var metricCount int
	for range metricCh {
		metricCount++
	}

	if descCount != metricCount {
		t.Errorf("expected Describe and Collect to emit the same count, got %d descs vs %d metrics", descCount, metricCount)
	}
}
