package dashboard

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arkeep-io/fleethub/internal/fanout"
)

// TestWrongPassphraseRejectedBeforeUpgrade: a dashboard connecting with
// the wrong path passphrase is turned away with 401 before any WebSocket
// handshake, and is never registered with the fan-out hub; the correct
// passphrase upgrades and registers.
func TestWrongPassphraseRejectedBeforeUpgrade(t *testing.T) {
	hub := fanout.NewHub(zap.NewNop())
	// DB and registry are never reached on the rejection path, and the
	// authorized path below only exercises registration.
	srv := NewServer(nil, nil, hub, "secret", zap.NewNop())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws/wrong", nil)
	require.Error(t, err, "expected the handshake to be refused")
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, hub.ConnectedCount(), "a rejected dashboard must never reach the fan-out hub")

	client, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/secret", nil)
	require.NoError(t, err, "expected the correct passphrase to upgrade")
	t.Cleanup(func() { client.Close() })

	require.Eventually(t, func() bool { return hub.ConnectedCount() == 1 },
		time.Second, 10*time.Millisecond, "authorized dashboard should register with the hub")
}
