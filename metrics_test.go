package recordcache

import (
	"testing"
	"time"
)

func TestInMemoryMetrics(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Increment(MetricAddSuccess)
	m.Increment(MetricAddSuccess)
	m.Gauge(MetricRecords, 42)
	m.Histogram(MetricQueryResults, 7)
	m.Timing(MetricAddDuration, 5*time.Millisecond)

	if m.Counters[MetricAddSuccess] != 2 {
		t.Errorf("Expected counter 2, got %d", m.Counters[MetricAddSuccess])
	}
	if m.Gauges[MetricRecords] != 42 {
		t.Errorf("Expected gauge 42, got %v", m.Gauges[MetricRecords])
	}
	if len(m.Histograms[MetricQueryResults]) != 1 {
		t.Errorf("Expected 1 histogram sample, got %v", m.Histograms[MetricQueryResults])
	}
	if len(m.Timings[MetricAddDuration]) != 1 {
		t.Errorf("Expected 1 timing sample, got %v", m.Timings[MetricAddDuration])
	}
}

func TestNoOpMetricsDoesNothing(t *testing.T) {
	m := &NoOpMetrics{}

	// Must not panic
	m.Increment("x")
	m.Gauge("x", 1)
	m.Histogram("x", 1)
	m.Timing("x", time.Second)
}
