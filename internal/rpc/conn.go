package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arkeep-io/fleethub/internal/metrics"
)

const (
	// writeWait bounds how long a single frame write may take before the
	// connection is considered stalled.
	writeWait = 10 * time.Second

	// pongWait/pingPeriod: a slow peer is detected and dropped within one
	// missed pong window.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds a single inbound JSON-RPC frame. Generous
	// enough for a HardwareInfo payload or a batch of structured logs.
	maxMessageSize = 1 << 20

	// sendBufferSize is the capacity of the outbound frame channel. A
	// slow reader fills this before the connection is dropped.
	sendBufferSize = 64

	// callTimeout is the fixed timeout for outbound calls.
	callTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler dispatches an inbound Request or Notification and, for a
// Request, returns the encoded result or an *Error. Notifications receive
// no reply (method is still invoked for its side effects, if routed).
type Handler interface {
	Dispatch(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, *Error)
}

// Conn is a single bidirectional JSON-RPC connection: it owns the
// underlying WebSocket, the outbound write pump, and the table of pending
// outbound calls awaiting a response. Both the agent-facing and
// dashboard-facing listeners use the same type — the only difference is
// which Handler is attached and which RPCs that handler knows about.
type Conn struct {
	ws     *websocket.Conn
	logger *zap.Logger

	send chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	pending map[int64]chan Response
	nextID  int64

	// OnClose, if set, runs once when the connection's pumps exit for any
	// reason (remote close, write error, parse of an unsupported frame).
	OnClose func()
}

// Upgrade completes the HTTP→WebSocket handshake and returns a ready Conn.
// The caller must call Serve to start processing frames.
func Upgrade(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("rpc: upgrade failed: %w", err)
	}
	return &Conn{
		ws:      ws,
		logger:  logger,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		pending: make(map[int64]chan Response),
		nextID:  rand.Int63(),
	}, nil
}

// Serve runs the read pump on the calling goroutine and the write pump on a
// spawned goroutine; it returns when the connection closes. handler may be
// nil for a connection that only ever makes outbound calls and never
// serves inbound requests, as the agent-facing listener does.
func (c *Conn) Serve(ctx context.Context, handler Handler) {
	go c.writePump()
	c.readPump(ctx, handler)
}

// Call issues an outbound request and blocks for up to 10s for the
// matching response. Safe for concurrent use — each call gets its own
// reply channel keyed by a fresh id, so concurrent calls on one Conn never
// cross-match.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		metrics.AgentRPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal params: %w", err)
	}

	reply := make(chan Response, 1)

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	idNum := json.Number(fmt.Sprintf("%d", id))
	req := Request{JSONRPC: Version, ID: &idNum, Method: method, Params: raw}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal request: %w", err)
	}

	select {
	case c.send <- body:
	case <-c.done:
		return nil, fmt.Errorf("rpc: connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()

	select {
	case resp := <-reply:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("rpc: call %q timed out after %s", method, callTimeout)
	case <-c.done:
		return nil, fmt.Errorf("rpc: connection closed while waiting for %q", method)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget notification (no id, no reply expected).
// Used for dashboard push: node_updated / dashboard_updated.
func (c *Conn) Notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("rpc: marshal params: %w", err)
	}
	body, err := json.Marshal(Notification{JSONRPC: Version, Method: method, Params: raw})
	if err != nil {
		return fmt.Errorf("rpc: marshal notification: %w", err)
	}
	select {
	case c.send <- body:
		return nil
	case <-c.done:
		return fmt.Errorf("rpc: connection closed")
	default:
		return fmt.Errorf("rpc: send buffer full, dropping notification %q", method)
	}
}

// Close closes the connection exactly once. Idempotent — safe to call from
// both the owning actor's cleanup path and the pumps' own defers.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
		if c.OnClose != nil {
			c.OnClose()
		}
	})
}

// CloseWithReason sends a close control frame carrying code and reason
// before tearing down the connection, used by agent session cleanup to
// distinguish an error exit from a clean one.
func (c *Conn) CloseWithReason(code int, reason string) {
	c.once.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(writeWait))
		close(c.done)
		_ = c.ws.Close()
		if c.OnClose != nil {
			c.OnClose()
		}
	})
}

func (c *Conn) readPump(ctx context.Context, handler Handler) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warn("rpc: unexpected close", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.logger.Warn("rpc: rejecting binary frame")
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "binary frames not supported"),
				time.Now().Add(writeWait))
			return
		}

		c.handleFrame(ctx, data, handler)
	}
}

func (c *Conn) handleFrame(ctx context.Context, data []byte, handler Handler) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn("rpc: parse error", zap.Error(err))
		c.replyParseError()
		return
	}

	// A response has a result or error and no method — route it to the
	// waiting caller.
	if f.Method == nil && (f.Result != nil || f.Error != nil) {
		c.routeResponse(f)
		return
	}

	if f.Method == nil {
		c.logger.Warn("rpc: frame has neither method nor result/error, dropping")
		return
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		c.replyParseError()
		return
	}

	if handler == nil {
		return
	}

	result, rpcErr := handler.Dispatch(ctx, req.Method, req.Params)

	// A Notification (no id) never gets a reply, even on error.
	if req.ID == nil {
		return
	}

	resp := Response{JSONRPC: Version, ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	body, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("rpc: marshal response failed", zap.Error(err))
		return
	}
	select {
	case c.send <- body:
	case <-c.done:
	}
}

func (c *Conn) routeResponse(f frame) {
	if f.ID == nil {
		c.logger.Warn("rpc: response with null id, dropping")
		return
	}
	var id int64
	if _, err := fmt.Sscanf(f.ID.String(), "%d", &id); err != nil {
		c.logger.Warn("rpc: response with non-numeric id, dropping", zap.String("id", f.ID.String()))
		return
	}

	c.mu.Lock()
	reply, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("rpc: response with unknown id, dropping", zap.Int64("id", id))
		return
	}

	resp := Response{ID: f.ID, Result: f.Result, Error: f.Error}
	select {
	case reply <- resp:
	default:
	}
}

func (c *Conn) replyParseError() {
	// A nil ID marshals as the JSON null the protocol prescribes for
	// unparseable frames.
	body, _ := json.Marshal(Response{
		JSONRPC: Version,
		Error:   newRawError(CodeParseError, "parse error"),
	})
	select {
	case c.send <- body:
	case <-c.done:
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Warn("rpc: write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("rpc: ping error", zap.Error(err))
				return
			}

		case <-c.done:
			return
		}
	}
}
