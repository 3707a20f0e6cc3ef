package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 16 * 1024 * 1024 // book summaries for a full chain are large
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *APIError       `json:"error"`
}

// WSClient is a JSON-RPC-over-WebSocket session with the venue. One client
// instance owns one connection and a correlation table mapping request IDs to
// pending result slots; nothing here is process-global.
type WSClient struct {
	conn   *websocket.Conn
	retry  RetryPolicy
	logger *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan rpcResponse
	closed  bool

	done chan struct{}
}

// DialWS connects to the venue WebSocket endpoint and starts the read loop.
func DialWS(ctx context.Context, wsURL string, timeout time.Duration, retryCount int, logger *zap.Logger) (*WSClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: status %d: %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	conn.SetReadLimit(wsMaxMessageSize)

	c := &WSClient{
		conn: conn,
		retry: RetryPolicy{
			MaxRetries:     retryCount,
			Backoff:        LinearBackoff(time.Second),
			AttemptTimeout: timeout,
		},
		logger:  logger,
		pending: make(map[uint64]chan rpcResponse),
		done:    make(chan struct{}),
	}

	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Fetch reads the three snapshot collections over the session. Calls run
// concurrently; responses are matched back by request ID.
func (c *WSClient) Fetch(ctx context.Context, currency string) (*Snapshot, error) {
	snap := &Snapshot{Currency: currency, FetchedAt: time.Now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var out rawIndexPrice
		err := c.callWithRetry(gctx, "public/get_index_price",
			map[string]any{"index_name": IndexName(currency)}, &out)
		if err != nil {
			return &FetchError{Op: "index price", Err: err}
		}
		if out.IndexPrice <= 0 {
			return &FetchError{Op: "index price", Err: fmt.Errorf("non-positive index price %v", out.IndexPrice)}
		}
		snap.IndexPrice = out.IndexPrice
		return nil
	})
	g.Go(func() error {
		var out []rawInstrument
		err := c.callWithRetry(gctx, "public/get_instruments",
			map[string]any{"currency": currency, "kind": "option", "expired": false}, &out)
		if err != nil {
			return &FetchError{Op: "instruments", Err: err}
		}
		snap.Instruments = make([]Instrument, 0, len(out))
		for _, r := range out {
			snap.Instruments = append(snap.Instruments, r.normalize())
		}
		return nil
	})
	g.Go(func() error {
		var out []rawBookSummary
		err := c.callWithRetry(gctx, "public/get_book_summary_by_currency",
			map[string]any{"currency": currency, "kind": "option"}, &out)
		if err != nil {
			return &FetchError{Op: "book summaries", Err: err}
		}
		snap.Quotes = make([]Quote, 0, len(out))
		for _, r := range out {
			snap.Quotes = append(snap.Quotes, r.normalize())
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// OrderBook fetches one instrument's order book over the session.
func (c *WSClient) OrderBook(ctx context.Context, instrument string) (*OrderBook, error) {
	var out OrderBook
	if err := c.callWithRetry(ctx, "public/get_order_book", map[string]any{"instrument_name": instrument}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *WSClient) callWithRetry(ctx context.Context, method string, params any, out any) error {
	return c.retry.Do(ctx, c.logger, method, func(ctx context.Context) error {
		return c.call(ctx, method, params, out)
	})
}

func (c *WSClient) call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Permanent(ErrClosed)
	}
	c.nextID++
	id := c.nextID
	ch := make(chan rpcResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := c.writeJSON(req); err != nil {
		return fmt.Errorf("writing request: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case resp := <-ch:
		if resp.Error != nil {
			return Permanent(resp.Error)
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return Permanent(fmt.Errorf("decoding result: %w", err))
		}
		return nil
	}
}

func (c *WSClient) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *WSClient) readLoop() {
	defer c.Close()

	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.logger.Debug("websocket read ended", zap.Error(err))
			return
		}
		if resp.ID == 0 {
			// Subscription notification or heartbeat; this client only
			// issues request/response calls.
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *WSClient) pingLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close tears down the session. Pending calls fail with ErrClosed.
func (c *WSClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.conn.Close()
}
