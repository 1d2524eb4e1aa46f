package dashboard

import (
	"github.com/arkeep-io/fleethub/internal/agentsession"
	"github.com/arkeep-io/fleethub/internal/fleetdb"
)

// DashboardNode is one row of dashboard_getNetwork's node list — the
// summary subset of a node's state, without the heavyweight peer/hardware
// detail node_getInfo carries.
type DashboardNode struct {
	Name    string               `json:"name"`
	Status  fleetdb.NodeStatus   `json:"status"`
	Address string               `json:"address,omitempty"`
	Version *fleetdb.NodeVersion `json:"version,omitempty"`
	Best    *fleetdb.BlockID     `json:"bestBlockId,omitempty"`
}

func dashboardNodeFrom(c fleetdb.ClientQueryResult) DashboardNode {
	return DashboardNode{
		Name:    c.Name,
		Status:  c.Status,
		Address: c.Address,
		Version: &c.Version,
		Best:    c.Best,
	}
}

type NodeConnection struct {
	NodeA string `json:"nodeA"`
	NodeB string `json:"nodeB"`
}

func nodeConnectionFrom(c fleetdb.Connection) NodeConnection {
	return NodeConnection{NodeA: c.NodeA, NodeB: c.NodeB}
}

type DashboardGetNetworkResponse struct {
	Nodes       []DashboardNode  `json:"nodes"`
	Connections []NodeConnection `json:"connections"`
}

type StartOption struct {
	Env  string `json:"env"`
	Args string `json:"args"`
}

// NodeGetInfoResponse is node_getInfo's result.
type NodeGetInfoResponse struct {
	Name           string               `json:"name"`
	Status         fleetdb.NodeStatus   `json:"status"`
	StartOption    *StartOption         `json:"startOption,omitempty"`
	Address        string               `json:"address,omitempty"`
	Version        *fleetdb.NodeVersion `json:"version,omitempty"`
	Best           *fleetdb.BlockID     `json:"bestBlockId,omitempty"`
	PendingParcels []string             `json:"pendingParcels"`
	Peers          []string             `json:"peers"`
	Whitelist      fleetdb.NameList     `json:"whitelist"`
	Blacklist      fleetdb.NameList     `json:"blacklist"`
	Hardware       *fleetdb.HardwareInfo `json:"hardware,omitempty"`
}

func nodeGetInfoFrom(c fleetdb.ClientQueryResult, extra fleetdb.NodeExtra, hasExtra bool) NodeGetInfoResponse {
	resp := NodeGetInfoResponse{
		Name:           c.Name,
		Status:         c.Status,
		Address:        c.Address,
		Version:        &c.Version,
		Best:           c.Best,
		PendingParcels: c.PendingParcels,
		Peers:          c.Peers,
		Whitelist:      c.Whitelist,
		Blacklist:      c.Blacklist,
		Hardware:       c.Hardware,
	}
	if hasExtra {
		resp.StartOption = &StartOption{Env: extra.PrevEnv, Args: extra.PrevArgs}
	}
	return resp
}

type LogGetTargetsResponse struct {
	Targets []string `json:"targets"`
}

// LogGetRequest is the wire shape of a log_get call's filter parameters.
type LogGetRequest struct {
	Filter struct {
		NodeNames  []string `json:"nodeNames,omitempty"`
		Levels     []string `json:"levels,omitempty"`
		Targets    []string `json:"targets,omitempty"`
		ThreadName string   `json:"threadName,omitempty"`
	} `json:"filter"`
	Search string `json:"search,omitempty"`
	Time   struct {
		From *string `json:"from,omitempty"`
		To   *string `json:"to,omitempty"`
	} `json:"time"`
	OrderBy     string `json:"orderBy,omitempty"`
	ItemPerPage int    `json:"itemPerPage,omitempty"`
	Page        int    `json:"page,omitempty"`
}

func (r LogGetRequest) toFilter() (fleetdb.LogFilter, error) {
	filter := fleetdb.LogFilter{
		NodeNames:   r.Filter.NodeNames,
		Levels:      r.Filter.Levels,
		Targets:     r.Filter.Targets,
		ThreadName:  r.Filter.ThreadName,
		Search:      r.Search,
		OrderBy:     fleetdb.LogOrder(r.OrderBy),
		ItemPerPage: r.ItemPerPage,
		Page:        r.Page,
	}
	if t, err := parseOptionalTime(r.Time.From); err != nil {
		return filter, err
	} else {
		filter.From = t
	}
	if t, err := parseOptionalTime(r.Time.To); err != nil {
		return filter, err
	} else {
		filter.To = t
	}
	return filter, nil
}

type LogEntry struct {
	Node      string `json:"node"`
	Level     string `json:"level"`
	Target    string `json:"target"`
	Thread    string `json:"thread"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func logEntryFrom(r fleetdb.LogRecord) LogEntry {
	return LogEntry{
		Node:      r.Node,
		Level:     r.Level,
		Target:    r.Target,
		Thread:    r.Thread,
		Message:   r.Message,
		Timestamp: r.Timestamp.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
	}
}

type LogGetResponse struct {
	Logs []LogEntry `json:"logs"`
}

// GraphArgsWire is GraphCommonArgs's wire shape.
type GraphArgsWire struct {
	Period string `json:"period"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (w GraphArgsWire) toArgs() (fleetdb.GraphCommonArgs, error) {
	from, err := parseTime(w.From)
	if err != nil {
		return fleetdb.GraphCommonArgs{}, err
	}
	to, err := parseTime(w.To)
	if err != nil {
		return fleetdb.GraphCommonArgs{}, err
	}
	return fleetdb.GraphCommonArgs{Period: fleetdb.GraphPeriod(w.Period), From: from, To: to}, nil
}

type GraphRowWire struct {
	Key   string  `json:"key"`
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

func graphRowsFrom(rows []fleetdb.GraphRow) []GraphRowWire {
	out := make([]GraphRowWire, len(rows))
	for i, r := range rows {
		out[i] = GraphRowWire{Key: r.Key, Time: r.Time, Value: r.Value}
	}
	return out
}

type GraphResponse struct {
	Rows []GraphRowWire `json:"rows"`
}

// NodeNameArgs is node_getInfo / node_stop's sole argument.
type NodeNameArgs struct {
	Name string `json:"name"`
}

// NodeStartArgs pairs a name with a start option for node_start.
type NodeStartArgs struct {
	Name    string                                  `json:"name"`
	Request agentsession.ShellStartCodeChainRequest `json:"request"`
}

// NodeUpdateArgs is node_update's argument: only the Git-commit or
// binary-checksum update source. The start option (env/args) is never sent
// by the dashboard — the hub looks up the node's last-saved extra itself
// and builds shell_updateCodeChain's Start field server-side.
type NodeUpdateArgs struct {
	Name   string                     `json:"name"`
	Git    *agentsession.GitUpdate    `json:"git,omitempty"`
	Binary *agentsession.BinaryUpdate `json:"binary,omitempty"`
}

// GraphNodeArgsWire is the argument shape of the per-node graph RPCs
// (graph_network_out_node_extension, graph_network_out_node_peer).
type GraphNodeArgsWire struct {
	Node string `json:"node"`
	GraphArgsWire
}
