package fanout

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

	"github.com/arkeep-io/fleethub/internal/fleetdb"
	"github.com/arkeep-io/fleethub/internal/rpc"
)

// newDashboardPair starts an httptest server that upgrades its single
// inbound connection to a *rpc.Conn and registers it on hub, returning a
// plain client-side websocket.Conn the test can read broadcast
// notifications from.
func newDashboardPair(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	ready := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := rpc.Upgrade(w, r, zap.NewNop())
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		hub.AddWS(c)
		close(ready)
		c.Serve(context.Background(), nil)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	<-ready
	return client
}

func readNotification(t *testing.T, client *websocket.Conn) (string, map[string]any) {
	t.Helper()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err, "read notification")
	var n rpc.Notification
	require.NoError(t, json.Unmarshal(data, &n), "unmarshal notification envelope")
	var params map[string]any
	require.NoError(t, json.Unmarshal(n.Params, &params), "unmarshal notification params")
	return n.Method, params
}

// TestClientUpdatedDiffMinimality: when only peers
// changed between before/after, the emitted node_updated diff carries only
// "name" and "peers" — not the other eight ClientQueryResult fields.
func TestClientUpdatedDiffMinimality(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := newDashboardPair(t, hub)
	p := NewPropagator(hub)

	before := fleetdb.ClientQueryResult{
		Name:    "node-a",
		Address: "10.0.0.1:30303",
		Status:  fleetdb.StatusRun,
		Peers:   []string{"10.0.0.2:30303"},
	}
	after := before.Clone()
	after.Peers = []string{"10.0.0.2:30303", "10.0.0.3:30303"}

	p.OnEvent(fleetdb.ClientUpdated{Before: &before, After: after})

	// dashboard_updated arrives first, then node_updated — both carry the
	// same sparse diff; only the second is checked here for content, the
	// first is drained so it doesn't leak into the next read.
	method, _ := readNotification(t, client)
	require.Equal(t, "dashboard_updated", method)
	method, params := readNotification(t, client)
	require.Equal(t, "node_updated", method)

	require.Len(t, params, 2, "expected exactly 2 keys (name, peers), got %v", params)
	require.Contains(t, params, "name")
	require.Contains(t, params, "peers")
	require.NotContains(t, params, "status", "diff unexpectedly includes unchanged field status")
}

// TestClientUpdatedNoOpSuppressed confirms that a ClientUpdated event whose
// only change is UpdatedAt (nothing the dashboard renders) produces no
// notification at all.
func TestClientUpdatedNoOpSuppressed(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := newDashboardPair(t, hub)
	p := NewPropagator(hub)

	before := fleetdb.ClientQueryResult{Name: "node-a", Address: "10.0.0.1:30303", Status: fleetdb.StatusRun}
	after := before
	after.UpdatedAt = time.Now().UTC()

	p.OnEvent(fleetdb.ClientUpdated{Before: &before, After: after})

	// Prove silence by racing a short deadline against a real send: follow
	// the no-op event with one that does produce a notification, and check
	// that's the first (only) thing the client receives.
	after2 := after
	after2.Status = fleetdb.StatusStop
	p.OnEvent(fleetdb.ClientUpdated{Before: &after, After: after2})

	method, _ := readNotification(t, client)
	require.Equal(t, "dashboard_updated", method, "expected dashboard_updated from the second event")
	method, params := readNotification(t, client)
	require.Equal(t, "node_updated", method, "expected node_updated from the second event")
	require.Equal(t, string(fleetdb.StatusStop), params["status"])
}
