package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newServerConn spins up an httptest server that upgrades the single inbound
// connection to a *Conn and serves it with no inbound handler (this test
// only exercises outbound Call multiplexing), returning that Conn and a
// plain client-side websocket.Conn to drive replies manually.
func newServerConn(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r, zap.NewNop())
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		connCh <- c
		c.Serve(context.Background(), nil)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server := <-connCh
	t.Cleanup(server.Close)
	return server, client
}

// TestCallMultiplexing: two concurrent Calls on one Conn never
// cross-match, even when the remote peer answers them out of request
// order.
func TestCallMultiplexing(t *testing.T) {
	server, client := newServerConn(t)

	type received struct {
		id     json.Number
		method string
	}
	gotReqs := make(chan received, 2)

	// Drive the client side: read both inbound requests, then reply to them
	// in reverse order of arrival, keyed by id, to prove routing doesn't
	// depend on response order.
	go func() {
		for i := 0; i < 2; i++ {
			_, data, err := client.ReadMessage()
			if err != nil {
				return
			}
			var req Request
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}
			gotReqs <- received{id: *req.ID, method: req.Method}
		}

		var reqs []received
		for i := 0; i < 2; i++ {
			reqs = append(reqs, <-gotReqs)
		}
		// Reply in reverse order.
		for i := len(reqs) - 1; i >= 0; i-- {
			r := reqs[i]
			result, _ := json.Marshal(map[string]string{"echo": r.method})
			resp := Response{JSONRPC: Version, ID: &r.id, Result: result}
			body, _ := json.Marshal(resp)
			_ = client.WriteMessage(websocket.TextMessage, body)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make(map[string]string)
	var mu sync.Mutex
	for _, method := range []string{"method_a", "method_b"} {
		wg.Add(1)
		go func(method string) {
			defer wg.Done()
			raw, err := server.Call(ctx, method, map[string]string{})
			if !assert.NoError(t, err, "Call(%s)", method) {
				return
			}
			var out struct {
				Echo string `json:"echo"`
			}
			if !assert.NoError(t, json.Unmarshal(raw, &out), "Call(%s) unmarshal", method) {
				return
			}
			mu.Lock()
			results[method] = out.Echo
			mu.Unlock()
		}(method)
	}
	wg.Wait()

	assert.Equal(t, "method_a", results["method_a"], "method_a got cross-matched")
	assert.Equal(t, "method_b", results["method_b"], "method_b got cross-matched")
}

// TestCallUnknownResponseIDIsDropped confirms a response carrying an id no
// pending call registered is dropped rather than delivered to some other
// waiter, and that the real waiter still times out cleanly.
func TestCallUnknownResponseIDIsDropped(t *testing.T) {
	server, client := newServerConn(t)

	go func() {
		_, _, _ = client.ReadMessage()
		// Reply with an id nothing is waiting on — must be silently dropped,
		// not delivered to some other pending call.
		bogusID := json.Number(strconv.FormatInt(999999, 10))
		bogus := Response{JSONRPC: Version, ID: &bogusID, Result: json.RawMessage("null")}
		body, _ := json.Marshal(bogus)
		_ = client.WriteMessage(websocket.TextMessage, body)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := server.Call(ctx, "whoami", nil)
	require.Error(t, err, "expected Call to time out waiting for its own reply")
}
