package agentsession

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arkeep-io/fleethub/internal/rpc"
)

// newRPCPair spins up a real rpc.Conn over a websocket, handing the test a
// CodeChainRPC bound to the server side and a plain client.Conn to script
// replies with — the same harness style internal/rpc's own tests use.
func newRPCPair(t *testing.T) (*CodeChainRPC, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *rpc.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := rpc.Upgrade(w, r, zap.NewNop())
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
	return NewCodeChainRPC(server), client
}

// TestCallRPCProxiesThroughCodechainCallRPC confirms every chain-facing
// query is carried as (method, params) inside a single codechain_callRPC
// wire call, not as its own top-level method name — the agent-facing
// surface has exactly one generic proxy.
func TestCallRPCProxiesThroughCodechainCallRPC(t *testing.T) {
	client, clientConn := newRPCPair(t)

	reqCh := make(chan rpc.Request, 1)
	go func() {
		_, data, err := clientConn.ReadMessage()
		if err != nil {
			return
		}
		var req rpc.Request
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		reqCh <- req
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan struct {
		peers []string
		err   error
	}, 1)
	go func() {
		peers, err := client.GetEstablishedPeers(ctx)
		resultCh <- struct {
			peers []string
			err   error
		}{peers, err}
	}()

	req := <-reqCh
	require.Equal(t, "codechain_callRPC", req.Method, "chain query must ride the single wire proxy, not its own method name")

	var args [2]json.RawMessage
	require.NoError(t, json.Unmarshal(req.Params, &args))
	var inner string
	require.NoError(t, json.Unmarshal(args[0], &inner))
	require.Equal(t, "net_getEstablishedPeers", inner, "inner method name must be forwarded as codechain_callRPC's first positional arg")

	innerResult, _ := json.Marshal([]string{"peer-a", "peer-b"})
	innerOutput, _ := json.Marshal(jsonrpcOutput{Result: innerResult})
	wireResult, _ := json.Marshal(codeChainCallRPCResponse{InnerResponse: innerOutput})
	resp := rpc.Response{JSONRPC: rpc.Version, ID: req.ID, Result: wireResult}
	body, _ := json.Marshal(resp)
	require.NoError(t, clientConn.WriteMessage(websocket.TextMessage, body))

	got := <-resultCh
	require.NoError(t, got.err)
	require.Equal(t, []string{"peer-a", "peer-b"}, got.peers)
}

// TestCallRPCSurfacesInnerJSONRPCError confirms an inner JSON-RPC error
// (the node itself rejecting the forwarded call) is surfaced to the caller
// as a Go error rather than silently discarded or decoded as a result.
func TestCallRPCSurfacesInnerJSONRPCError(t *testing.T) {
	client, clientConn := newRPCPair(t)

	reqCh := make(chan rpc.Request, 1)
	go func() {
		_, data, err := clientConn.ReadMessage()
		if err != nil {
			return
		}
		var req rpc.Request
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		reqCh <- req
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Version(ctx)
		errCh <- err
	}()

	req := <-reqCh
	innerOutput, _ := json.Marshal(jsonrpcOutput{Error: &rpc.Error{Code: -32000, Message: "node unreachable"}})
	wireResult, _ := json.Marshal(codeChainCallRPCResponse{InnerResponse: innerOutput})
	resp := rpc.Response{JSONRPC: rpc.Version, ID: req.ID, Result: wireResult}
	body, _ := json.Marshal(resp)
	require.NoError(t, clientConn.WriteMessage(websocket.TextMessage, body))

	err := <-errCh
	require.Error(t, err)
	require.Contains(t, err.Error(), "node unreachable")
}
