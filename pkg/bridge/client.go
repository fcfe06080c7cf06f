// Package bridge implements the client side of the terminal protocol bridge:
// a hand-rolled JSON request/response router exposed by the terminal process
// over a single websocket. Every request carries a correlation id; responses
// may arrive out of order.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var (
	ErrClosed         = errors.New("bridge connection closed")
	ErrSessionExpired = errors.New("bridge session expired")
)

const protocolVersion = 2

type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type hello struct {
	Version     int    `json:"version"`
	Fingerprint string `json:"fingerprint"`
}

// Options tune a bridge client.
type Options struct {
	// RateLimit caps outgoing requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
	// CallTimeout bounds each request/response round trip.
	CallTimeout time.Duration
}

// Client is one websocket session to the bridge router. Safe for concurrent
// use; writes are serialized, reads run on a single loop.
type Client struct {
	conn    *websocket.Conn
	limiter *rate.Limiter
	timeout time.Duration

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan response
	closeErr error

	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens a websocket to the bridge router and performs the hello
// handshake. The machine fingerprint lets the bridge tie sessions to a host.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", addr, err)
	}

	c := &Client{
		conn:    conn,
		timeout: opts.CallTimeout,
		pending: make(map[string]chan response),
		done:    make(chan struct{}),
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	if err := conn.WriteJSON(hello{Version: protocolVersion, Fingerprint: Fingerprint()}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bridge hello: %w", err)
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		var resp response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.shutdown(fmt.Errorf("bridge read: %w", err))
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- resp
		}
		// Responses without a matching id are dropped; the router may
		// re-send after a reconnect.
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = err
		for id, ch := range c.pending {
			delete(c.pending, id)
			close(ch)
		}
		c.mu.Unlock()
		close(c.done)
		c.conn.Close()
	})
}

// Close tears the websocket down. In-flight calls fail with ErrClosed.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

// call performs one request/response round trip.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id := uuid.NewString()
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.closeErr != nil {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(request{ID: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("bridge write %s: %w", method, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			if c.closeErr != nil {
				return c.closeErr
			}
			return ErrClosed
		}
		if !resp.OK {
			return fmt.Errorf("bridge %s: %s", method, resp.Error)
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("bridge %s: decode result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("bridge %s: %w", method, ctx.Err())
	case <-c.done:
		return ErrClosed
	}
}

// Connect binds this session to an account. The isolation path tells the
// router which terminal data directory to launch against; two accounts must
// never share one.
func (c *Client) Connect(ctx context.Context, isolationPath string, creds Credentials) (*SessionInfo, error) {
	params := struct {
		Path  string      `json:"path"`
		Creds Credentials `json:"credentials"`
	}{Path: isolationPath, Creds: creds}

	var info SessionInfo
	if err := c.call(ctx, "connect", params, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetPositions lists open positions; symbol may be empty for all.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]Position, error) {
	params := struct {
		Symbol string `json:"symbol,omitempty"`
	}{Symbol: symbol}

	var out []Position
	if err := c.call(ctx, "get_positions", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetQuote returns the latest tick for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	params := struct {
		Symbol string `json:"symbol"`
	}{Symbol: symbol}

	var q Quote
	if err := c.call(ctx, "get_quote", params, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// SubmitOrder sends an order to the terminal.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	var res OrderResult
	if err := c.call(ctx, "submit_order", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetAccountInfo returns the terminal-side account snapshot.
func (c *Client) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.call(ctx, "get_account_info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
