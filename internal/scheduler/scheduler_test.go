package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"terminal-core/internal/events"
	"terminal-core/internal/monitor"
	"terminal-core/internal/registry"
)

type fakeSource struct {
	ns   registry.Namespace
	refs []registry.AccountRef
	err  error
}

func (f *fakeSource) Namespace() registry.Namespace { return f.ns }

func (f *fakeSource) ListAccounts(ctx context.Context) ([]registry.AccountRef, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.refs, nil
}

func sessionRefs(keys ...string) []registry.AccountRef {
	refs := make([]registry.AccountRef, len(keys))
	for i, k := range keys {
		refs[i] = registry.AccountRef{Namespace: registry.NamespaceSession, Key: k}
	}
	return refs
}

func workerRefs(keys ...string) []registry.AccountRef {
	refs := make([]registry.AccountRef, len(keys))
	for i, k := range keys {
		refs[i] = registry.AccountRef{Namespace: registry.NamespaceWorker, Key: k}
	}
	return refs
}

// passRecorder collects the refs each runner saw, across goroutines.
type passRecorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *passRecorder) runner(err error) PassFunc {
	return func(ctx context.Context, ref registry.AccountRef) error {
		r.mu.Lock()
		r.seen = append(r.seen, ref.String())
		r.mu.Unlock()
		return err
	}
}

func (r *passRecorder) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.seen))
	copy(out, r.seen)
	sort.Strings(out)
	return out
}

func newTestScheduler(sources []registry.Source, runners map[registry.Namespace]PassFunc) *Scheduler {
	return New(time.Minute, 8, sources, runners, events.NewBus(), monitor.NewMetrics())
}

func TestCycleWithNoAccountsIsNoOp(t *testing.T) {
	rec := &passRecorder{}
	s := newTestScheduler(
		[]registry.Source{&fakeSource{ns: registry.NamespaceSession}},
		map[registry.Namespace]PassFunc{registry.NamespaceSession: rec.runner(nil)},
	)

	record := s.RunCycle(context.Background())
	if len(record.Results) != 0 {
		t.Fatalf("results=%v, expected none", record.Results)
	}
	if got := rec.sorted(); len(got) != 0 {
		t.Fatalf("runner invoked for %v on an empty registry", got)
	}
}

func TestCycleCoversUnionOfSources(t *testing.T) {
	sessions := &passRecorder{}
	workers := &passRecorder{}
	s := newTestScheduler(
		[]registry.Source{
			&fakeSource{ns: registry.NamespaceSession, refs: sessionRefs("1001", "1002")},
			&fakeSource{ns: registry.NamespaceWorker, refs: workerRefs("alpha", "beta")},
		},
		map[registry.Namespace]PassFunc{
			registry.NamespaceSession: sessions.runner(nil),
			registry.NamespaceWorker:  workers.runner(nil),
		},
	)

	record := s.RunCycle(context.Background())
	if len(record.Results) != 4 {
		t.Fatalf("got %d results, expected 4", len(record.Results))
	}
	success, skipped, failed := record.Counts()
	if success != 4 || skipped != 0 || failed != 0 {
		t.Fatalf("success=%d skipped=%d failed=%d, expected 4/0/0", success, skipped, failed)
	}

	wantSessions := []string{"session:1001", "session:1002"}
	if got := sessions.sorted(); !equalStrings(got, wantSessions) {
		t.Fatalf("session runner saw %v, expected %v", got, wantSessions)
	}
	wantWorkers := []string{"worker:alpha", "worker:beta"}
	if got := workers.sorted(); !equalStrings(got, wantWorkers) {
		t.Fatalf("worker runner saw %v, expected %v", got, wantWorkers)
	}
}

func TestCycleDeduplicatesRefs(t *testing.T) {
	rec := &passRecorder{}
	s := newTestScheduler(
		[]registry.Source{
			&fakeSource{ns: registry.NamespaceWorker, refs: workerRefs("alpha", "beta")},
			&fakeSource{ns: registry.NamespaceWorker, refs: workerRefs("beta", "gamma")},
		},
		map[registry.Namespace]PassFunc{registry.NamespaceWorker: rec.runner(nil)},
	)

	record := s.RunCycle(context.Background())
	if len(record.Results) != 3 {
		t.Fatalf("got %d results, expected 3 after dedup", len(record.Results))
	}
	want := []string{"worker:alpha", "worker:beta", "worker:gamma"}
	if got := rec.sorted(); !equalStrings(got, want) {
		t.Fatalf("runner saw %v, expected %v", got, want)
	}
}

func TestSourceFailureDoesNotAbortCycle(t *testing.T) {
	workers := &passRecorder{}
	s := newTestScheduler(
		[]registry.Source{
			&fakeSource{ns: registry.NamespaceSession, err: errors.New("db down")},
			&fakeSource{ns: registry.NamespaceWorker, refs: workerRefs("alpha")},
		},
		map[registry.Namespace]PassFunc{
			registry.NamespaceSession: (&passRecorder{}).runner(nil),
			registry.NamespaceWorker:  workers.runner(nil),
		},
	)

	record := s.RunCycle(context.Background())
	if len(record.Results) != 1 {
		t.Fatalf("got %d results, expected 1", len(record.Results))
	}
	if got := workers.sorted(); !equalStrings(got, []string{"worker:alpha"}) {
		t.Fatalf("worker runner saw %v, expected the surviving source's account", got)
	}
}

func TestAccountFailureIsIsolated(t *testing.T) {
	healthy := &passRecorder{}
	s := newTestScheduler(
		[]registry.Source{
			&fakeSource{ns: registry.NamespaceWorker, refs: workerRefs("bad", "good")},
		},
		map[registry.Namespace]PassFunc{
			registry.NamespaceWorker: func(ctx context.Context, ref registry.AccountRef) error {
				if ref.Key == "bad" {
					return errors.New("terminal unreachable")
				}
				return healthy.runner(nil)(ctx, ref)
			},
		},
	)

	record := s.RunCycle(context.Background())
	success, _, failed := record.Counts()
	if success != 1 || failed != 1 {
		t.Fatalf("success=%d failed=%d, expected 1/1", success, failed)
	}
	if got := healthy.sorted(); !equalStrings(got, []string{"worker:good"}) {
		t.Fatalf("healthy account not executed: %v", got)
	}
}

func TestPanicInPassIsContained(t *testing.T) {
	s := newTestScheduler(
		[]registry.Source{
			&fakeSource{ns: registry.NamespaceWorker, refs: workerRefs("boom", "calm")},
		},
		map[registry.Namespace]PassFunc{
			registry.NamespaceWorker: func(ctx context.Context, ref registry.AccountRef) error {
				if ref.Key == "boom" {
					panic("decision function exploded")
				}
				return nil
			},
		},
	)

	record := s.RunCycle(context.Background())
	success, _, failed := record.Counts()
	if success != 1 || failed != 1 {
		t.Fatalf("success=%d failed=%d, expected 1/1", success, failed)
	}
	for _, r := range record.Results {
		if r.Account.Key == "boom" && r.Outcome != OutcomeFailed {
			t.Fatalf("panicking account recorded as %s", r.Outcome)
		}
	}
}

func TestOverlappingCycleSkipsBusyAccount(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	s := newTestScheduler(
		[]registry.Source{
			&fakeSource{ns: registry.NamespaceWorker, refs: workerRefs("slow")},
		},
		map[registry.Namespace]PassFunc{
			registry.NamespaceWorker: func(ctx context.Context, ref registry.AccountRef) error {
				once.Do(func() { close(started) })
				<-block
				return nil
			},
		},
	)

	done := make(chan CycleRecord, 1)
	go func() { done <- s.RunCycle(context.Background()) }()
	<-started

	// Second cycle while the first pass is still in flight: skip, not queue.
	second := s.RunCycle(context.Background())
	_, skipped, _ := second.Counts()
	if skipped != 1 {
		t.Fatalf("overlapping cycle skipped=%d, expected 1", skipped)
	}

	close(block)
	first := <-done
	success, _, _ := first.Counts()
	if success != 1 {
		t.Fatalf("first cycle success=%d, expected 1", success)
	}
}

func TestRunnerBusyErrorRecordedAsSkip(t *testing.T) {
	s := newTestScheduler(
		[]registry.Source{
			&fakeSource{ns: registry.NamespaceWorker, refs: workerRefs("alpha")},
		},
		map[registry.Namespace]PassFunc{
			registry.NamespaceWorker: func(ctx context.Context, ref registry.AccountRef) error {
				return ErrAccountBusy
			},
		},
	)

	record := s.RunCycle(context.Background())
	_, skipped, failed := record.Counts()
	if skipped != 1 || failed != 0 {
		t.Fatalf("skipped=%d failed=%d, expected 1/0", skipped, failed)
	}
}

func TestHistoryRetainsMostRecentCycles(t *testing.T) {
	s := New(time.Minute, 3,
		[]registry.Source{&fakeSource{ns: registry.NamespaceWorker}},
		map[registry.Namespace]PassFunc{},
		events.NewBus(), monitor.NewMetrics(),
	)

	for i := 0; i < 5; i++ {
		s.RunCycle(context.Background())
	}
	if got := len(s.History()); got != 3 {
		t.Fatalf("history length=%d, expected 3", got)
	}
}

func TestStatusReportsLiveSources(t *testing.T) {
	s := newTestScheduler(
		[]registry.Source{
			&fakeSource{ns: registry.NamespaceSession, refs: sessionRefs("1001", "1002", "1003")},
			&fakeSource{ns: registry.NamespaceWorker, refs: workerRefs("alpha")},
		},
		map[registry.Namespace]PassFunc{},
	)

	st := s.Status(context.Background())
	if st.IsRunning {
		t.Fatal("scheduler reported running before Start")
	}
	if st.SessionBasedAccountCount != 3 || st.WorkerBasedAccountCount != 1 {
		t.Fatalf("counts=%d/%d, expected 3/1", st.SessionBasedAccountCount, st.WorkerBasedAccountCount)
	}
	if !equalStrings(st.AccountIDs, []string{"1001", "1002", "1003"}) {
		t.Fatalf("AccountIDs=%v", st.AccountIDs)
	}
	if !equalStrings(st.WorkerIDs, []string{"alpha"}) {
		t.Fatalf("WorkerIDs=%v", st.WorkerIDs)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	rec := &passRecorder{}
	s := New(10*time.Millisecond, 8,
		[]registry.Source{&fakeSource{ns: registry.NamespaceWorker, refs: workerRefs("alpha")}},
		map[registry.Namespace]PassFunc{registry.NamespaceWorker: rec.runner(nil)},
		events.NewBus(), monitor.NewMetrics(),
	)

	s.Start(context.Background())
	if !s.Status(context.Background()).IsRunning {
		t.Fatal("scheduler not running after Start")
	}

	deadline := time.After(2 * time.Second)
	for len(rec.sorted()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no pass executed within 2s")
		case <-time.After(5 * time.Millisecond):
		}
	}

	s.Stop()
	if s.Status(context.Background()).IsRunning {
		t.Fatal("scheduler still running after Stop")
	}
}

func TestStopRacingStartDoesNotPanic(t *testing.T) {
	s := newTestScheduler(
		[]registry.Source{&fakeSource{ns: registry.NamespaceWorker}},
		map[registry.Namespace]PassFunc{},
	)

	for i := 0; i < 200; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			s.Stop()
		}()
		wg.Wait()
		s.Stop()
	}
}

func TestIdleTickIsNotAnnouncedOnBus(t *testing.T) {
	bus := events.NewBus()
	completed, unsub := bus.Subscribe(events.TopicCycleCompleted, 4)
	defer unsub()

	s := New(time.Minute, 8,
		[]registry.Source{&fakeSource{ns: registry.NamespaceWorker}},
		map[registry.Namespace]PassFunc{},
		bus, monitor.NewMetrics(),
	)

	s.RunCycle(context.Background())
	select {
	case ev := <-completed:
		t.Fatalf("idle tick published %v, expected silence", ev)
	default:
	}
	if got := len(s.History()); got != 1 {
		t.Fatalf("history length=%d, expected the idle record retained", got)
	}
}

func TestCycleWithAccountsIsAnnouncedOnBus(t *testing.T) {
	bus := events.NewBus()
	completed, unsub := bus.Subscribe(events.TopicCycleCompleted, 4)
	defer unsub()

	rec := &passRecorder{}
	s := New(time.Minute, 8,
		[]registry.Source{&fakeSource{ns: registry.NamespaceWorker, refs: workerRefs("alpha")}},
		map[registry.Namespace]PassFunc{registry.NamespaceWorker: rec.runner(nil)},
		bus, monitor.NewMetrics(),
	)

	s.RunCycle(context.Background())
	select {
	case ev := <-completed:
		record, ok := ev.(CycleRecord)
		if !ok {
			t.Fatalf("published %T, expected CycleRecord", ev)
		}
		if len(record.Results) != 1 {
			t.Fatalf("published record has %d results, expected 1", len(record.Results))
		}
	default:
		t.Fatal("cycle with accounts published nothing")
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
