package dashboard

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

	"github.com/arkeep-io/fleethub/internal/agentsession"
	"github.com/arkeep-io/fleethub/internal/fleetdb"
	"github.com/arkeep-io/fleethub/internal/rpc"
)

// emptyDB satisfies DB with a fleet that has no rows: every lookup misses,
// every list is empty. node_update only consults GetClientExtra.
type emptyDB struct{}

func (emptyDB) GetClients(context.Context) ([]fleetdb.ClientQueryResult, error) { return nil, nil }
func (emptyDB) GetClient(context.Context, string) (fleetdb.ClientQueryResult, bool, error) {
	return fleetdb.ClientQueryResult{}, false, nil
}
func (emptyDB) GetConnections(context.Context) ([]fleetdb.Connection, error) { return nil, nil }
func (emptyDB) GetClientExtra(context.Context, string) (fleetdb.NodeExtra, bool, error) {
	return fleetdb.NodeExtra{}, false, nil
}
func (emptyDB) GetLogs(context.Context, fleetdb.LogFilter) ([]fleetdb.LogRecord, error) {
	return nil, nil
}
func (emptyDB) GetLogTargets(context.Context) ([]string, error) { return nil, nil }
func (emptyDB) GraphNetworkOutAllNode(context.Context, fleetdb.GraphCommonArgs) ([]fleetdb.GraphRow, error) {
	return nil, nil
}
func (emptyDB) GraphNetworkOutAllNodeAvg(context.Context, fleetdb.GraphCommonArgs) ([]fleetdb.GraphRow, error) {
	return nil, nil
}
func (emptyDB) GraphNetworkOutNodeExtension(context.Context, string, fleetdb.GraphCommonArgs) ([]fleetdb.GraphRow, error) {
	return nil, nil
}
func (emptyDB) GraphNetworkOutNodePeer(context.Context, string, fleetdb.GraphCommonArgs) ([]fleetdb.GraphRow, error) {
	return nil, nil
}

type fixedRegistry struct {
	sess *agentsession.Session
}

func (r *fixedRegistry) LookupByName(context.Context, string) (*agentsession.Session, error) {
	return r.sess, nil
}

// newAgentPair stands up a live agent session over a real rpc.Conn,
// returning the session handle and the scripted agent side of the socket —
// the same harness style internal/rpc's own tests use.
func newAgentPair(t *testing.T) (*agentsession.Session, *websocket.Conn) {
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
	agent, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { agent.Close() })

	conn := <-connCh
	t.Cleanup(conn.Close)

	// The session's DB/registry/notifier are never touched by the control
	// path under test.
	sess := agentsession.New(1, conn, nil, nil, nil, agentsession.Config{}, zap.NewNop())
	return sess, agent
}

// TestNodeUpdateDefaultsEmptyStartOption: node_update for a node with no
// saved start option sends shell_updateCodeChain with an empty env/args
// start pair plus the requested Git source.
func TestNodeUpdateDefaultsEmptyStartOption(t *testing.T) {
	sess, agent := newAgentPair(t)

	reqCh := make(chan rpc.Request, 1)
	go func() {
		_, data, err := agent.ReadMessage()
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

	resCh := make(chan error, 1)
	go func() {
		_, err := handleNodeUpdate(ctx, &Context{DB: emptyDB{}, Registry: &fixedRegistry{sess: sess}},
			NodeUpdateArgs{Name: "Nx", Git: &agentsession.GitUpdate{CommitHash: "deadbeef"}})
		resCh <- err
	}()

	req := <-reqCh
	require.Equal(t, "shell_updateCodeChain", req.Method)

	var args [2]json.RawMessage
	require.NoError(t, json.Unmarshal(req.Params, &args))

	var start struct {
		Env  string `json:"env"`
		Args string `json:"args"`
	}
	require.NoError(t, json.Unmarshal(args[0], &start))
	require.Empty(t, start.Env, "expected the start option to default to an empty env")
	require.Empty(t, start.Args, "expected the start option to default to empty args")

	var source map[string]any
	require.NoError(t, json.Unmarshal(args[1], &source))
	require.Equal(t, "Git", source["type"])
	require.Equal(t, "deadbeef", source["commitHash"])

	reply := rpc.Response{JSONRPC: rpc.Version, ID: req.ID, Result: json.RawMessage("null")}
	body, _ := json.Marshal(reply)
	require.NoError(t, agent.WriteMessage(websocket.TextMessage, body))

	require.NoError(t, <-resCh)
}
