package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"terminal-core/internal/events"
	"terminal-core/internal/monitor"
	"terminal-core/internal/registry"
)

// ErrAccountBusy is returned by a PassFunc (or detected internally) when the
// account's previous pass is still in flight. The cycle records a skip, never
// queues a second pass for the same account.
var ErrAccountBusy = errors.New("previous pass still in flight")

// PassFunc executes one trading pass for one account. A pass function owns
// acquiring whatever session it needs; the scheduler only guarantees that at
// most one pass per account reference is in flight at a time.
type PassFunc func(ctx context.Context, ref registry.AccountRef) error

// Status is a point-in-time snapshot of the scheduler, computed against the
// live account sources rather than cached state.
type Status struct {
	IsRunning                bool         `json:"is_running"`
	TickIntervalSeconds      int          `json:"tick_interval_seconds"`
	SessionBasedAccountCount int          `json:"session_based_account_count"`
	WorkerBasedAccountCount  int          `json:"worker_based_account_count"`
	AccountIDs               []string     `json:"account_ids"`
	WorkerIDs                []string     `json:"worker_ids"`
	ActiveTraderCount        int          `json:"active_trader_count"`
	CyclesCompleted          uint64       `json:"cycles_completed"`
	CycleLatency             monitor.LatencyStats `json:"cycle_latency"`
	LastCycle                *CycleRecord `json:"last_cycle,omitempty"`
}

// Scheduler drives fixed-interval trading cycles over the union of all
// registered account sources. Each tick launches a cycle asynchronously so a
// slow cycle never delays the timer; per-account overlap is prevented by an
// in-flight set shared across cycles.
type Scheduler struct {
	interval    time.Duration
	historySize int
	sources     []registry.Source
	runners     map[registry.Namespace]PassFunc
	bus         *events.Bus
	metrics     *monitor.Metrics

	latency *monitor.LatencyHistogram

	mu       sync.Mutex
	inFlight map[string]struct{}
	history  []CycleRecord

	running atomic.Bool
	cycles  atomic.Uint64
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a scheduler over the given sources. runners maps each namespace
// to the pass implementation for accounts from that namespace; an account
// whose namespace has no runner is recorded as failed, not silently dropped.
func New(interval time.Duration, historySize int, sources []registry.Source, runners map[registry.Namespace]PassFunc, bus *events.Bus, metrics *monitor.Metrics) *Scheduler {
	if historySize <= 0 {
		historySize = 16
	}
	return &Scheduler{
		interval:    interval,
		historySize: historySize,
		sources:     sources,
		runners:     runners,
		bus:         bus,
		metrics:     metrics,
		latency:     monitor.NewLatencyHistogram(historySize * 4),
		inFlight:    make(map[string]struct{}),
	}
}

// Start launches the tick loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	// The mutex keeps the running flip and the cancel assignment atomic
	// with respect to Stop, which otherwise could read a nil cancel.
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	log.Printf("scheduler: started (interval=%s)", s.interval)
}

// Stop halts the tick loop and waits for in-flight cycles to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	log.Printf("scheduler: stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.runCycle(ctx)
			}()
		}
	}
}

// RunCycle executes one cycle synchronously. Exposed for manual triggering
// through the control API.
func (s *Scheduler) RunCycle(ctx context.Context) CycleRecord {
	return s.runCycle(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) CycleRecord {
	start := time.Now()
	record := CycleRecord{StartedAt: start}

	refs := s.collect(ctx, &record)
	if len(refs) == 0 {
		// Idle tick: nothing registered. Keep the record for the history
		// ring but skip the completion event and the summary log line.
		record.Duration = time.Since(start)
		s.finishCycle(record)
		return record
	}

	results := make([]PassResult, len(refs))
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref registry.AccountRef) {
			defer wg.Done()
			results[i] = s.runPass(ctx, ref)
		}(i, ref)
	}
	wg.Wait()

	record.Results = results
	record.Duration = time.Since(start)
	s.finishCycle(record)

	success, skipped, failed := record.Counts()
	log.Printf("scheduler: cycle done accounts=%d success=%d skipped=%d failed=%d took=%s",
		len(refs), success, skipped, failed, record.Duration.Round(time.Millisecond))
	return record
}

// collect reads every source and returns the deduplicated union of account
// references. A failing source contributes nothing but never aborts the
// cycle: the other sources' accounts still trade.
func (s *Scheduler) collect(ctx context.Context, record *CycleRecord) []registry.AccountRef {
	seen := make(map[string]struct{})
	var refs []registry.AccountRef
	for _, src := range s.sources {
		accounts, err := src.ListAccounts(ctx)
		if err != nil {
			log.Printf("scheduler: source %s failed, skipping: %v", src.Namespace(), err)
			continue
		}
		for _, ref := range accounts {
			key := ref.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			refs = append(refs, ref)
			switch ref.Namespace {
			case registry.NamespaceSession:
				record.SessionIDs = append(record.SessionIDs, ref.Key)
			case registry.NamespaceWorker:
				record.WorkerIDs = append(record.WorkerIDs, ref.Key)
			}
		}
	}
	sort.Strings(record.SessionIDs)
	sort.Strings(record.WorkerIDs)
	return refs
}

func (s *Scheduler) runPass(ctx context.Context, ref registry.AccountRef) PassResult {
	res := PassResult{Account: ref}
	if !s.tryAcquire(ref) {
		res.Outcome = OutcomeSkipped
		res.Reason = ErrAccountBusy.Error()
		s.metrics.IncPassSkips()
		s.bus.Publish(events.TopicPassSkipped, events.PassEvent{
			Namespace: string(ref.Namespace), AccountID: ref.Key,
			Reason: res.Reason, At: time.Now(),
		})
		log.Printf("scheduler: %s skipped, %s", ref, res.Reason)
		return res
	}
	defer s.release(ref)

	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		s.metrics.PassLatency.RecordDuration(res.Duration)
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Reason = fmt.Sprintf("panic: %v", r)
			s.recordFailure(ref, res.Reason)
		}
	}()

	runner, ok := s.runners[ref.Namespace]
	if !ok {
		res.Outcome = OutcomeFailed
		res.Reason = fmt.Sprintf("no pass registered for namespace %q", ref.Namespace)
		s.recordFailure(ref, res.Reason)
		return res
	}

	s.metrics.IncPasses()
	err := runner(ctx, ref)
	switch {
	case err == nil:
		res.Outcome = OutcomeSuccess
	case errors.Is(err, ErrAccountBusy):
		res.Outcome = OutcomeSkipped
		res.Reason = err.Error()
		s.metrics.IncPassSkips()
		s.bus.Publish(events.TopicPassSkipped, events.PassEvent{
			Namespace: string(ref.Namespace), AccountID: ref.Key,
			Reason: res.Reason, At: time.Now(),
		})
	default:
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		s.recordFailure(ref, res.Reason)
	}
	return res
}

func (s *Scheduler) recordFailure(ref registry.AccountRef, reason string) {
	s.metrics.IncPassFailures()
	s.bus.Publish(events.TopicPassFailed, events.PassEvent{
		Namespace: string(ref.Namespace), AccountID: ref.Key,
		Reason: reason, At: time.Now(),
	})
	log.Printf("scheduler: pass failed for %s: %s", ref, reason)
}

func (s *Scheduler) tryAcquire(ref registry.AccountRef) bool {
	key := ref.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *Scheduler) release(ref registry.AccountRef) {
	s.mu.Lock()
	delete(s.inFlight, ref.String())
	s.mu.Unlock()
}

func (s *Scheduler) finishCycle(record CycleRecord) {
	s.cycles.Add(1)
	s.metrics.IncCycles()
	s.latency.RecordDuration(record.Duration)
	s.mu.Lock()
	s.history = append(s.history, record)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
	s.mu.Unlock()
	// Idle ticks touch no accounts; announcing them would only add noise
	// on the stream.
	if len(record.Results) > 0 {
		s.bus.Publish(events.TopicCycleCompleted, record)
	}
}

// History returns the retained cycle records, oldest first.
func (s *Scheduler) History() []CycleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CycleRecord, len(s.history))
	copy(out, s.history)
	return out
}

// Status queries the live sources and returns a snapshot. Source failures
// degrade to empty lists, matching cycle behavior.
func (s *Scheduler) Status(ctx context.Context) Status {
	st := Status{
		IsRunning:           s.running.Load(),
		TickIntervalSeconds: int(s.interval / time.Second),
		CyclesCompleted:     s.cycles.Load(),
		CycleLatency:        s.latency.Stats(),
	}
	for _, src := range s.sources {
		accounts, err := src.ListAccounts(ctx)
		if err != nil {
			log.Printf("scheduler: status read of %s failed: %v", src.Namespace(), err)
			continue
		}
		for _, ref := range accounts {
			switch ref.Namespace {
			case registry.NamespaceSession:
				st.AccountIDs = append(st.AccountIDs, ref.Key)
			case registry.NamespaceWorker:
				st.WorkerIDs = append(st.WorkerIDs, ref.Key)
			}
		}
	}
	sort.Strings(st.AccountIDs)
	sort.Strings(st.WorkerIDs)
	st.SessionBasedAccountCount = len(st.AccountIDs)
	st.WorkerBasedAccountCount = len(st.WorkerIDs)

	s.mu.Lock()
	st.ActiveTraderCount = len(s.inFlight)
	if n := len(s.history); n > 0 {
		last := s.history[n-1]
		st.LastCycle = &last
	}
	s.mu.Unlock()
	return st
}
