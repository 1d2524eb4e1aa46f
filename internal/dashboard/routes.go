package dashboard

import (
	"context"

	"github.com/arkeep-io/fleethub/internal/agentsession"
	"github.com/arkeep-io/fleethub/internal/rpc"
)

// clientNotFound is the reserved -1 "client not found" error code,
// returned by node_getInfo when name is not in the DB snapshot and by the
// node control RPCs when name has no live agent session.
func clientNotFound(name string) *rpc.Error {
	return rpc.ServerError(-1, "no client named "+name)
}

// AddRoutes registers the full dashboard_*/node_*/log_*/graph_* handler
// table.
func AddRoutes(r *rpc.Router[*Context]) {
	rpc.HandleNoArgs(r, "ping", func(ctx context.Context, c *Context) (string, error) {
		return "pong", nil
	})

	rpc.HandleNoArgs(r, "dashboard_getNetwork", handleGetNetwork)

	rpc.Handle(r, "node_getInfo", handleNodeGetInfo)
	rpc.Handle(r, "node_start", handleNodeStart)
	rpc.Handle(r, "node_stop", handleNodeStop)
	rpc.Handle(r, "node_update", handleNodeUpdate)

	rpc.HandleNoArgs(r, "log_getTargets", handleLogGetTargets)
	rpc.Handle(r, "log_get", handleLogGet)

	rpc.Handle(r, "graph_network_out_all_node", handleGraphAllNode)
	rpc.Handle(r, "graph_network_out_all_node_avg", handleGraphAllNodeAvg)
	rpc.Handle(r, "graph_network_out_node_extension", handleGraphNodeExtension)
	// The query method itself (GraphNetworkOutNodePeer) already exists on
	// the DB actor, so it gets an RPC route too.
	rpc.Handle(r, "graph_network_out_node_peer", handleGraphNodePeer)
}

func handleGetNetwork(ctx context.Context, c *Context) (DashboardGetNetworkResponse, error) {
	clients, err := c.DB.GetClients(ctx)
	if err != nil {
		return DashboardGetNetworkResponse{}, err
	}
	conns, err := c.DB.GetConnections(ctx)
	if err != nil {
		return DashboardGetNetworkResponse{}, err
	}
	resp := DashboardGetNetworkResponse{
		Nodes:       make([]DashboardNode, len(clients)),
		Connections: make([]NodeConnection, len(conns)),
	}
	for i, cl := range clients {
		resp.Nodes[i] = dashboardNodeFrom(cl)
	}
	for i, cn := range conns {
		resp.Connections[i] = nodeConnectionFrom(cn)
	}
	return resp, nil
}

func handleNodeGetInfo(ctx context.Context, c *Context, args NodeNameArgs) (NodeGetInfoResponse, error) {
	client, found, err := c.DB.GetClient(ctx, args.Name)
	if err != nil {
		return NodeGetInfoResponse{}, err
	}
	if !found {
		return NodeGetInfoResponse{}, clientNotFound(args.Name)
	}
	extra, hasExtra, err := c.DB.GetClientExtra(ctx, args.Name)
	if err != nil {
		return NodeGetInfoResponse{}, err
	}
	return nodeGetInfoFrom(client, extra, hasExtra), nil
}

func handleNodeStart(ctx context.Context, c *Context, args NodeStartArgs) (bool, error) {
	sess, err := c.Registry.LookupByName(ctx, args.Name)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, clientNotFound(args.Name)
	}
	if err := sess.Start(ctx, args.Request); err != nil {
		return false, err
	}
	return true, nil
}

func handleNodeStop(ctx context.Context, c *Context, args NodeNameArgs) (bool, error) {
	sess, err := c.Registry.LookupByName(ctx, args.Name)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, clientNotFound(args.Name)
	}
	if err := sess.Stop(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func handleNodeUpdate(ctx context.Context, c *Context, args NodeUpdateArgs) (bool, error) {
	sess, err := c.Registry.LookupByName(ctx, args.Name)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, clientNotFound(args.Name)
	}

	extra, found, err := c.DB.GetClientExtra(ctx, args.Name)
	if err != nil {
		return false, err
	}
	start := agentsession.ShellStartCodeChainRequest{}
	if found {
		start.Env = extra.PrevEnv
		start.Args = extra.PrevArgs
	}

	req := agentsession.ShellUpdateCodeChainRequest{
		Start:  start,
		Git:    args.Git,
		Binary: args.Binary,
	}
	if err := sess.Update(ctx, req); err != nil {
		return false, err
	}
	return true, nil
}

func handleLogGetTargets(ctx context.Context, c *Context) (LogGetTargetsResponse, error) {
	targets, err := c.DB.GetLogTargets(ctx)
	if err != nil {
		return LogGetTargetsResponse{}, err
	}
	return LogGetTargetsResponse{Targets: targets}, nil
}

func handleLogGet(ctx context.Context, c *Context, args LogGetRequest) (LogGetResponse, error) {
	filter, err := args.toFilter()
	if err != nil {
		return LogGetResponse{}, rpc.ServerError(rpc.CodeInvalidParams, err.Error())
	}
	logs, err := c.DB.GetLogs(ctx, filter)
	if err != nil {
		return LogGetResponse{}, err
	}
	out := make([]LogEntry, len(logs))
	for i, l := range logs {
		out[i] = logEntryFrom(l)
	}
	return LogGetResponse{Logs: out}, nil
}

func handleGraphAllNode(ctx context.Context, c *Context, args GraphArgsWire) (GraphResponse, error) {
	a, err := args.toArgs()
	if err != nil {
		return GraphResponse{}, rpc.ServerError(rpc.CodeInvalidParams, err.Error())
	}
	rows, err := c.DB.GraphNetworkOutAllNode(ctx, a)
	if err != nil {
		return GraphResponse{}, err
	}
	return GraphResponse{Rows: graphRowsFrom(rows)}, nil
}

func handleGraphAllNodeAvg(ctx context.Context, c *Context, args GraphArgsWire) (GraphResponse, error) {
	a, err := args.toArgs()
	if err != nil {
		return GraphResponse{}, rpc.ServerError(rpc.CodeInvalidParams, err.Error())
	}
	rows, err := c.DB.GraphNetworkOutAllNodeAvg(ctx, a)
	if err != nil {
		return GraphResponse{}, err
	}
	return GraphResponse{Rows: graphRowsFrom(rows)}, nil
}

func handleGraphNodeExtension(ctx context.Context, c *Context, args GraphNodeArgsWire) (GraphResponse, error) {
	a, err := args.GraphArgsWire.toArgs()
	if err != nil {
		return GraphResponse{}, rpc.ServerError(rpc.CodeInvalidParams, err.Error())
	}
	rows, err := c.DB.GraphNetworkOutNodeExtension(ctx, args.Node, a)
	if err != nil {
		return GraphResponse{}, err
	}
	return GraphResponse{Rows: graphRowsFrom(rows)}, nil
}

func handleGraphNodePeer(ctx context.Context, c *Context, args GraphNodeArgsWire) (GraphResponse, error) {
	a, err := args.GraphArgsWire.toArgs()
	if err != nil {
		return GraphResponse{}, rpc.ServerError(rpc.CodeInvalidParams, err.Error())
	}
	rows, err := c.DB.GraphNetworkOutNodePeer(ctx, args.Node, a)
	if err != nil {
		return GraphResponse{}, err
	}
	return GraphResponse{Rows: graphRowsFrom(rows)}, nil
}
