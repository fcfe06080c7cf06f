package monitor

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsCountersUnderConcurrency(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.IncCycles()
				m.IncPasses()
				m.IncPassFailures()
				m.IncPassSkips()
				m.IncOrdersAccepted()
				m.IncOrdersRejected()
			}
		}()
	}
	wg.Wait()

	snap := m.Get()
	if snap.CyclesTotal != 800 || snap.PassesTotal != 800 {
		t.Fatalf("snapshot=%+v, expected 800 per counter", snap)
	}
	if snap.PassFailures != 800 || snap.PassSkips != 800 {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap.OrdersAccepted != 800 || snap.OrdersRejected != 800 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestLatencyHistogramStats(t *testing.T) {
	h := NewLatencyHistogram(10)
	for _, ms := range []int{10, 20, 30, 40} {
		h.RecordDuration(time.Duration(ms) * time.Millisecond)
	}

	stats := h.Stats()
	if stats.Count != 4 {
		t.Fatalf("count=%d, expected 4", stats.Count)
	}
	if stats.Min != 10 || stats.Max != 40 {
		t.Fatalf("min/max=%v/%v, expected 10/40", stats.Min, stats.Max)
	}
	if stats.Avg != 25 {
		t.Fatalf("avg=%v, expected 25", stats.Avg)
	}
	if stats.P95 != 40 {
		t.Fatalf("p95=%v, expected max with a small window", stats.P95)
	}
}

func TestLatencyHistogramWindowSlides(t *testing.T) {
	h := NewLatencyHistogram(3)
	for i := 1; i <= 5; i++ {
		h.RecordDuration(time.Duration(i) * time.Millisecond)
	}
	stats := h.Stats()
	if stats.Count != 3 || stats.Min != 3 {
		t.Fatalf("stats=%+v, expected the oldest samples evicted", stats)
	}
}
