// Package dashboard implements the dashboard-facing RPC surface:
// passphrase-gated session registration with the fan-out hub and the full
// `dashboard_*`/`node_*`/`log_*`/`graph_*` handler table.
package dashboard

import (
	"context"

	"github.com/arkeep-io/fleethub/internal/agentsession"
	"github.com/arkeep-io/fleethub/internal/fleetdb"
)

// DB is the subset of *fleetdb.Actor the dashboard handlers need.
type DB interface {
	GetClients(ctx context.Context) ([]fleetdb.ClientQueryResult, error)
	GetClient(ctx context.Context, name string) (fleetdb.ClientQueryResult, bool, error)
	GetConnections(ctx context.Context) ([]fleetdb.Connection, error)
	GetClientExtra(ctx context.Context, name string) (fleetdb.NodeExtra, bool, error)
	GetLogs(ctx context.Context, filter fleetdb.LogFilter) ([]fleetdb.LogRecord, error)
	GetLogTargets(ctx context.Context) ([]string, error)
	GraphNetworkOutAllNode(ctx context.Context, args fleetdb.GraphCommonArgs) ([]fleetdb.GraphRow, error)
	GraphNetworkOutAllNodeAvg(ctx context.Context, args fleetdb.GraphCommonArgs) ([]fleetdb.GraphRow, error)
	GraphNetworkOutNodeExtension(ctx context.Context, node string, args fleetdb.GraphCommonArgs) ([]fleetdb.GraphRow, error)
	GraphNetworkOutNodePeer(ctx context.Context, node string, args fleetdb.GraphCommonArgs) ([]fleetdb.GraphRow, error)
}

// AgentRegistry is the subset of *registry.Registry the dashboard handlers
// need — a name-keyed lookup returning a live agent session to call out to.
type AgentRegistry interface {
	LookupByName(ctx context.Context, name string) (*agentsession.Session, error)
}

// Context is the per-connection value threaded through every dashboard RPC
// handler.
type Context struct {
	DB       DB
	Registry AgentRegistry
}
