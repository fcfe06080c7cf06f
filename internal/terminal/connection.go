// Package terminal models one authenticated terminal session per account,
// scoped to an isolation directory so concurrent accounts never share state.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"terminal-core/pkg/bridge"
)

// Session is the subset of bridge operations a trading pass needs. The
// concrete implementation is *bridge.Client; tests substitute fakes.
type Session interface {
	GetPositions(ctx context.Context, symbol string) ([]bridge.Position, error)
	GetQuote(ctx context.Context, symbol string) (*bridge.Quote, error)
	SubmitOrder(ctx context.Context, req bridge.OrderRequest) (*bridge.OrderResult, error)
	GetAccountInfo(ctx context.Context) (*bridge.AccountInfo, error)
	Close() error
}

// Connector opens an authenticated Session bound to an isolation path.
type Connector func(ctx context.Context, isolationPath string, creds bridge.Credentials) (Session, error)

// State is the connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var ErrNotConnected = errors.New("terminal not connected")

// Connection wraps one terminal session for one account.
type Connection struct {
	accountID     string
	isolationPath string
	creds         bridge.Credentials
	connect       Connector

	mu    sync.Mutex
	state State
	sess  Session
}

// New builds an unopened Connection.
func New(accountID, isolationPath string, creds bridge.Credentials, connect Connector) *Connection {
	return &Connection{
		accountID:     accountID,
		isolationPath: isolationPath,
		creds:         creds,
		connect:       connect,
		state:         StateDisconnected,
	}
}

func (c *Connection) AccountID() string     { return c.accountID }
func (c *Connection) IsolationPath() string { return c.isolationPath }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open authenticates the session. Calling Open on an already connected
// Connection is an error; callers go through the pool manager which
// serializes lifecycle transitions per account.
func (c *Connection) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return fmt.Errorf("terminal %s: already %s", c.accountID, c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	sess, err := c.connect(ctx, c.isolationPath, c.creds)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		return fmt.Errorf("terminal %s: connect: %w", c.accountID, err)
	}
	c.sess = sess
	c.state = StateConnected
	return nil
}

// Session returns the live session or ErrNotConnected.
func (c *Connection) Session() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.sess == nil {
		return nil, fmt.Errorf("terminal %s: %w", c.accountID, ErrNotConnected)
	}
	return c.sess, nil
}

// Close tears the session down and moves to Disconnected. Idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.Close()
}
