// Package pool owns the set of running terminal workers, one per account.
// Start/stop are serialized per account id; unrelated accounts proceed
// concurrently.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"terminal-core/internal/events"
	"terminal-core/internal/terminal"
	"terminal-core/pkg/bridge"
)

var (
	ErrAlreadyRunning = errors.New("worker already running")
	ErrNotRunning     = errors.New("worker not running")
	// ErrPathConflict means two accounts resolved to one isolation path.
	// That would let two terminals share state, so it is never ignored.
	ErrPathConflict = errors.New("isolation path conflict")
)

// CredentialSource resolves bridge credentials for an account id. Implemented
// by the account configuration store.
type CredentialSource interface {
	Credentials(accountID string) (bridge.Credentials, error)
}

// Manager owns worker handles keyed by account id.
type Manager struct {
	baseDir     string
	stopTimeout time.Duration
	connect     terminal.Connector
	creds       CredentialSource
	bus         *events.Bus

	mu      sync.Mutex
	handles map[string]*Handle
	locks   map[string]*sync.Mutex // per-account lifecycle locks, created lazily
	claims  map[string]string      // isolation path -> owning account id
}

// NewManager builds an empty pool. bus may be nil.
func NewManager(baseDir string, stopTimeout time.Duration, connect terminal.Connector, creds CredentialSource, bus *events.Bus) *Manager {
	return &Manager{
		baseDir:     baseDir,
		stopTimeout: stopTimeout,
		connect:     connect,
		creds:       creds,
		bus:         bus,
		handles:     make(map[string]*Handle),
		locks:       make(map[string]*sync.Mutex),
		claims:      make(map[string]string),
	}
}

// accountLock returns the lifecycle lock for an account, creating it on first
// use. Locks are never removed; the per-account footprint is one mutex.
func (m *Manager) accountLock(accountID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[accountID] = l
	}
	return l
}

// Start opens an isolated terminal connection for the account and registers
// its handle. Fails with ErrAlreadyRunning when a handle exists.
func (m *Manager) Start(ctx context.Context, accountID string) (*Handle, error) {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if _, exists := m.handles[accountID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("account %s: %w", accountID, ErrAlreadyRunning)
	}
	path := IsolationPath(m.baseDir, accountID)
	if owner, claimed := m.claims[path]; claimed && owner != accountID {
		m.mu.Unlock()
		return nil, fmt.Errorf("account %s: path %s owned by %s: %w", accountID, path, owner, ErrPathConflict)
	}
	m.claims[path] = accountID
	m.mu.Unlock()

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("account %s: create isolation dir: %w", accountID, err)
	}

	creds, err := m.creds.Credentials(accountID)
	if err != nil {
		return nil, fmt.Errorf("account %s: resolve credentials: %w", accountID, err)
	}

	conn := terminal.New(accountID, path, creds, m.connect)
	h := newHandle(accountID, conn)

	if err := conn.Open(ctx); err != nil {
		h.setState(HandleStopped)
		return nil, err
	}

	m.reconcile(ctx, h)

	h.setState(HandleRunning)
	m.mu.Lock()
	m.handles[accountID] = h
	m.mu.Unlock()

	log.Printf("[pool] worker %s started (path=%s)", accountID, path)
	if m.bus != nil {
		m.bus.Publish(events.TopicWorkerStarted, events.WorkerEvent{AccountID: accountID, At: time.Now()})
	}
	return h, nil
}

// reconcile re-queries open positions right after connect. A prior stop may
// have force-closed the session mid-submission, so anything open now is
// surfaced before the first pass runs.
func (m *Manager) reconcile(ctx context.Context, h *Handle) {
	sess, err := h.conn.Session()
	if err != nil {
		return
	}
	positions, err := sess.GetPositions(ctx, "")
	if err != nil {
		log.Printf("[pool] worker %s: reconcile on connect failed: %v", h.accountID, err)
		return
	}
	if len(positions) > 0 {
		log.Printf("[pool] worker %s: %d open position(s) found on connect", h.accountID, len(positions))
		for _, p := range positions {
			log.Printf("[pool] worker %s: open %s %s %.2f @ %.5f (ticket %d)",
				h.accountID, p.Type, p.Symbol, p.Volume, p.PriceOpen, p.Ticket)
		}
	}
}

// Stop drains the account's in-flight pass (bounded by the stop timeout),
// then tears the connection down. The isolation directory is kept on disk so
// the account can reattach later.
func (m *Manager) Stop(ctx context.Context, accountID string) error {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	h, ok := m.handles[accountID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, ErrNotRunning)
	}

	h.setState(HandleStopping)

	forced := false
	if !h.waitIdle(m.stopTimeout) {
		// Pass still in flight: force-close. Any order submitted in that
		// pass is in an unknown state; the reconcile on next Start picks
		// it up.
		forced = true
		log.Printf("[pool] worker %s: pass still in flight after %v, force-closing", accountID, m.stopTimeout)
	}

	if err := h.conn.Close(); err != nil {
		log.Printf("[pool] worker %s: close: %v", accountID, err)
	}
	h.setState(HandleStopped)

	m.mu.Lock()
	delete(m.handles, accountID)
	m.mu.Unlock()

	log.Printf("[pool] worker %s stopped (forced=%v)", accountID, forced)
	if m.bus != nil {
		m.bus.Publish(events.TopicWorkerStopped, events.WorkerEvent{AccountID: accountID, Forced: forced, At: time.Now()})
	}
	return nil
}

// Get returns the handle for an account or ErrNotRunning.
func (m *Manager) Get(accountID string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotRunning)
	}
	return h, nil
}

// ListRunning returns the account ids whose handles are in Running state.
func (m *Manager) ListRunning() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.handles))
	for id, h := range m.handles {
		if h.State() == HandleRunning {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// StopAll stops every running worker; used on shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	for _, id := range m.ListRunning() {
		if err := m.Stop(ctx, id); err != nil && !errors.Is(err, ErrNotRunning) {
			log.Printf("[pool] stop %s: %v", id, err)
		}
	}
}
