// Package fanout implements the dashboard push side: a broadcast registry
// of connected dashboard sockets plus the DB-event subscriber that turns
// mutations into sparse `dashboard_updated`/`node_updated` notifications.
// The registry is a mutex-guarded set with no event-loop goroutine, and it
// is one implicit broadcast set rather than topic-keyed pub/sub — every
// connected dashboard socket receives every event.
package fanout

import (
	"sync"

	"go.uber.org/zap"

	"github.com/arkeep-io/fleethub/internal/metrics"
	"github.com/arkeep-io/fleethub/internal/rpc"
)

// Hub is the central broadcast broker for dashboard connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[*rpc.Conn]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*rpc.Conn]struct{}),
		logger:  logger.Named("fanout"),
	}
}

// AddWS registers conn to receive every future broadcast notification.
func (h *Hub) AddWS(conn *rpc.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.ConnectedDashboards.Set(float64(n))
}

// RemoveWS deregisters conn, called when its dashboard session closes.
func (h *Hub) RemoveWS(conn *rpc.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.ConnectedDashboards.Set(float64(n))
}

// SendEvent broadcasts method/params to every connected dashboard socket
// as a JSON-RPC notification. A per-socket send error is logged and never
// blocks delivery to the remaining sockets.
func (h *Hub) SendEvent(method string, params any) {
	h.mu.RLock()
	targets := make([]*rpc.Conn, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Notify(method, params); err != nil {
			h.logger.Warn("error sending event to dashboard", zap.Error(err))
		}
	}
}

// ConnectedCount returns the number of currently registered dashboard
// sockets.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
