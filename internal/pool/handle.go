package pool

import (
	"sync/atomic"
	"time"

	"terminal-core/internal/terminal"
)

// HandleState is the worker process lifecycle.
type HandleState int32

const (
	HandleStarting HandleState = iota
	HandleRunning
	HandleStopping
	HandleStopped
)

func (s HandleState) String() string {
	switch s {
	case HandleStarting:
		return "STARTING"
	case HandleRunning:
		return "RUNNING"
	case HandleStopping:
		return "STOPPING"
	case HandleStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Handle pairs an account id with its terminal connection. Owned exclusively
// by the Manager; the scheduler only borrows it for the duration of a pass.
type Handle struct {
	accountID string
	conn      *terminal.Connection
	startedAt time.Time

	state atomic.Int32

	// passSem holds at most one token: the account's in-flight trading
	// pass. Stop acquires it to wait for the pass to drain.
	passSem chan struct{}
}

func newHandle(accountID string, conn *terminal.Connection) *Handle {
	h := &Handle{
		accountID: accountID,
		conn:      conn,
		startedAt: time.Now(),
		passSem:   make(chan struct{}, 1),
	}
	h.state.Store(int32(HandleStarting))
	return h
}

func (h *Handle) AccountID() string                { return h.accountID }
func (h *Handle) Connection() *terminal.Connection { return h.conn }
func (h *Handle) StartedAt() time.Time             { return h.startedAt }

// State returns the lifecycle state.
func (h *Handle) State() HandleState {
	return HandleState(h.state.Load())
}

func (h *Handle) setState(s HandleState) {
	h.state.Store(int32(s))
}

// TryBeginPass claims the account's pass slot. It returns false when the
// worker is not running or a pass is already in flight; the caller skips the
// account rather than queueing.
func (h *Handle) TryBeginPass() bool {
	if h.State() != HandleRunning {
		return false
	}
	select {
	case h.passSem <- struct{}{}:
	default:
		return false
	}
	// Stop may have flipped the state while we were acquiring.
	if h.State() != HandleRunning {
		<-h.passSem
		return false
	}
	return true
}

// EndPass releases the pass slot claimed by TryBeginPass.
func (h *Handle) EndPass() {
	select {
	case <-h.passSem:
	default:
	}
}

// waitIdle blocks until no pass is in flight or the timeout elapses. The
// caller must have moved the handle out of Running first so no new pass can
// start while we wait.
func (h *Handle) waitIdle(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case h.passSem <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}
