package metrics

import (
	"testing"
	"time"
)

func TestMetricsRecord(t *testing.T) {
	m := New()

	m.RecordSuccess(10 * time.Millisecond)
	m.RecordSuccess(20 * time.Millisecond)
	m.RecordFailure(30 * time.Millisecond)
	m.RecordRejected()

	if m.TotalRequests() != 3 {
		t.Errorf("expected 3 total requests, got %d", m.TotalRequests())
	}
	if m.SuccessRequests() != 2 {
		t.Errorf("expected 2 success requests, got %d", m.SuccessRequests())
	}
	if m.FailedRequests() != 1 {
		t.Errorf("expected 1 failed request, got %d", m.FailedRequests())
	}
	if m.RejectedConnections() != 1 {
		t.Errorf("expected 1 rejected connection, got %d", m.RejectedConnections())
	}
	if got := m.AverageLatency(); got != 20*time.Millisecond {
		t.Errorf("expected average 20ms, got %v", got)
	}
	if rate := m.ErrorRate(); rate < 0.33 || rate > 0.34 {
		t.Errorf("expected error rate ~0.333, got %f", rate)
	}
}

func TestMetricsEmpty(t *testing.T) {
	m := New()
	if m.AverageLatency() != 0 || m.P99Latency() != 0 || m.ErrorRate() != 0 {
		t.Error("expected zero values on empty metrics")
	}
}

func TestMetricsPercentile(t *testing.T) {
	m := NewWithSamples(100)
	for i := 1; i <= 100; i++ {
		m.RecordSuccess(time.Duration(i) * time.Millisecond)
	}

	if got := m.P99Latency(); got != 100*time.Millisecond {
		t.Errorf("expected p99 100ms, got %v", got)
	}
	if got := m.Percentile(0.5); got != 51*time.Millisecond {
		t.Errorf("expected p50 51ms, got %v", got)
	}
	if got := m.Percentile(0); got != time.Millisecond {
		t.Errorf("expected p0 1ms, got %v", got)
	}
}

func TestMetricsSampleWindowWraps(t *testing.T) {
	m := NewWithSamples(10)
	for range 10 {
		m.RecordSuccess(time.Second)
	}
	for range 10 {
		m.RecordSuccess(time.Millisecond)
	}

	// the window only holds the latest samples
	if got := m.P99Latency(); got != time.Millisecond {
		t.Errorf("expected p99 of the newest window to be 1ms, got %v", got)
	}
	if m.TotalRequests() != 20 {
		t.Errorf("expected 20 total requests, got %d", m.TotalRequests())
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := New()
	m.RecordSuccess(5 * time.Millisecond)
	m.RecordFailure(5 * time.Millisecond)

	snap := m.Snapshot()
	if snap.TotalRequests != 2 || snap.SuccessRequests != 1 || snap.FailedRequests != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.ErrorRate != 0.5 {
		t.Errorf("expected error rate 0.5, got %f", snap.ErrorRate)
	}
	if snap.Elapsed <= 0 {
		t.Error("expected positive elapsed time")
	}
}

func TestMetricsConcurrent(t *testing.T) {
	m := New()
	done := make(chan struct{})

	for range 8 {
		go func() {
			for range 500 {
				m.RecordSuccess(time.Microsecond)
			}
			done <- struct{}{}
		}()
	}
	for range 8 {
		<-done
	}

	if m.TotalRequests() != 4000 {
		t.Errorf("expected 4000 requests, got %d", m.TotalRequests())
	}
}
