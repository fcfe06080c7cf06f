// Package monitor tracks orchestrator counters and pass latency.
package monitor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks scheduler-wide counters. All methods are safe for
// concurrent use from per-account pass goroutines.
type Metrics struct {
	PassLatency *LatencyHistogram

	cyclesTotal    uint64
	passesTotal    uint64
	passFailures   uint64
	passSkips      uint64
	ordersAccepted uint64
	ordersRejected uint64
}

// NewMetrics creates a metrics instance with a bounded latency window.
func NewMetrics() *Metrics {
	return &Metrics{PassLatency: NewLatencyHistogram(1000)}
}

func (m *Metrics) IncCycles()         { atomic.AddUint64(&m.cyclesTotal, 1) }
func (m *Metrics) IncPasses()         { atomic.AddUint64(&m.passesTotal, 1) }
func (m *Metrics) IncPassFailures()   { atomic.AddUint64(&m.passFailures, 1) }
func (m *Metrics) IncPassSkips()      { atomic.AddUint64(&m.passSkips, 1) }
func (m *Metrics) IncOrdersAccepted() { atomic.AddUint64(&m.ordersAccepted, 1) }
func (m *Metrics) IncOrdersRejected() { atomic.AddUint64(&m.ordersRejected, 1) }

// Snapshot is a point-in-time copy for the API.
type Snapshot struct {
	CyclesTotal    uint64       `json:"cycles_total"`
	PassesTotal    uint64       `json:"passes_total"`
	PassFailures   uint64       `json:"pass_failures"`
	PassSkips      uint64       `json:"pass_skips"`
	OrdersAccepted uint64       `json:"orders_accepted"`
	OrdersRejected uint64       `json:"orders_rejected"`
	PassLatency    LatencyStats `json:"pass_latency_ms"`
}

// Get returns the current counters and latency stats.
func (m *Metrics) Get() Snapshot {
	return Snapshot{
		CyclesTotal:    atomic.LoadUint64(&m.cyclesTotal),
		PassesTotal:    atomic.LoadUint64(&m.passesTotal),
		PassFailures:   atomic.LoadUint64(&m.passFailures),
		PassSkips:      atomic.LoadUint64(&m.passSkips),
		OrdersAccepted: atomic.LoadUint64(&m.ordersAccepted),
		OrdersRejected: atomic.LoadUint64(&m.ordersRejected),
		PassLatency:    m.PassLatency.Stats(),
	}
}

// LatencyStats summarizes a latency window in milliseconds.
type LatencyStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P95   float64 `json:"p95"`
}

// LatencyHistogram keeps a sliding window of latency samples.
type LatencyHistogram struct {
	mu      sync.Mutex
	samples []float64
	maxSize int
}

func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{samples: make([]float64, 0, size), maxSize: size}
}

// RecordDuration adds one sample.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, float64(d.Nanoseconds())/1e6)
}

// Stats computes window statistics.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	p95 := sorted[(n*95)/100]
	if n < 20 {
		p95 = sorted[n-1]
	}
	return LatencyStats{
		Count: n,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P95:   p95,
	}
}
